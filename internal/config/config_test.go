package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	fileName := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(fileName, []byte(content), 0o600))
	return fileName
}

func Test_load_config_from_file(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfigFile(t, `
name: flow-test
server:
  addr: ":9090"
persistence:
  type: bolt
  bolt:
    path: /tmp/flow-test.db
    timeout: 2s
engine:
  scriptPoolMin: 4
  scriptPoolMax: 2
`))

	conf, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "flow-test", conf.Name)
	assert.Equal(t, ":9090", conf.Server.Addr)
	assert.Equal(t, "/", conf.Server.Context)
	assert.Equal(t, PersistenceBolt, conf.Persistence.Type)
	assert.Equal(t, "/tmp/flow-test.db", conf.Persistence.Bolt.Path)
	assert.Equal(t, 2*time.Second, conf.Persistence.Bolt.Timeout)
	assert.Equal(t, 4, conf.Engine.ScriptPoolMax)
	assert.Equal(t, 512, conf.Engine.ModelCacheSize)
	assert.Equal(t, "flow-test", conf.Tracing.Name)
}

func Test_load_config_from_env(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("REST_API_ADDR", ":7070")
	t.Setenv("ENGINE_SCRIPT_POOL_MAX", "8")
	t.Setenv("OTEL_TRANSFER_HEADERS", "X-Request-Id,X-Tenant")

	conf, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, ":7070", conf.Server.Addr)
	assert.Equal(t, PersistenceInMemory, conf.Persistence.Type)
	assert.Equal(t, 8, conf.Engine.ScriptPoolMax)
	assert.True(t, conf.Engine.CronjobsEnabled)
	assert.Equal(t, []string{"X-Request-Id", "X-Tenant"}, conf.Tracing.TransferHeaders)
	assert.Equal(t, "zenflow", conf.Tracing.Name)
}

func Test_validate_rejects_unknown_persistence(t *testing.T) {
	conf := Config{
		Persistence: Persistence{Type: "postgres"},
		Engine:      Engine{ScriptPoolMin: 0},
	}

	err := conf.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
	assert.Contains(t, err.Error(), "script pool")
}
