package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	PersistenceInMemory = "inmemory"
	PersistenceBolt     = "bolt"
)

type Config struct {
	Server      Server      `yaml:"server" json:"server"`                                  // configuration of the public REST server
	Name        string      `yaml:"name" json:"name" env:"APP_NAME" env-default:"zenflow"` // used for OTEL as an application identifier
	Persistence Persistence `yaml:"persistence" json:"persistence"`
	Engine      Engine      `yaml:"engine" json:"engine"`
	Tracing     Tracing     `yaml:"tracing" json:"tracing"`
	Audit       Audit       `yaml:"audit" json:"audit"`
}

type Server struct {
	Context string `yaml:"context" json:"context" env:"REST_API_CONTEXT" env-default:"/"`
	Addr    string `yaml:"addr" json:"addr" env:"REST_API_ADDR" env-default:":8080"`
	// AllowedOrigins lists the browser origins the REST API answers. Empty allows any origin without credentials.
	AllowedOrigins []string `yaml:"allowedOrigins" json:"allowedOrigins" env:"REST_API_ALLOWED_ORIGINS" env-separator:","`
}

type Persistence struct {
	// Type selects the storage: inmemory or bolt
	Type string `yaml:"type" json:"type" env:"PERSISTENCE_TYPE" env-default:"inmemory"`
	Bolt Bolt   `yaml:"bolt" json:"bolt"`
}

type Bolt struct {
	Path    string        `yaml:"path" json:"path" env:"PERSISTENCE_BOLT_PATH" env-default:"zenflow.db"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"PERSISTENCE_BOLT_TIMEOUT" env-default:"5s"`
}

type Engine struct {
	ScriptPoolMin  int `yaml:"scriptPoolMin" json:"scriptPoolMin" env:"ENGINE_SCRIPT_POOL_MIN" env-default:"2"`
	ScriptPoolMax  int `yaml:"scriptPoolMax" json:"scriptPoolMax" env:"ENGINE_SCRIPT_POOL_MAX" env-default:"16"`
	ModelCacheSize int `yaml:"modelCacheSize" json:"modelCacheSize" env:"ENGINE_MODEL_CACHE_SIZE" env-default:"512"`
	// a yaml false is overridden by env-default; disable through the env var
	ResumeOnStart   bool `yaml:"resumeOnStart" json:"resumeOnStart" env:"ENGINE_RESUME_ON_START" env-default:"true"`
	CronjobsEnabled bool `yaml:"cronjobsEnabled" json:"cronjobsEnabled" env:"ENGINE_CRONJOBS_ENABLED" env-default:"true"`
}

type Tracing struct {
	Enabled         bool     `yaml:"enabled" json:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Name            string   `yaml:"name" json:"name" env:"OTEL_NAME"`
	Endpoint        string   `yaml:"endpoint" json:"endpoint" env:"OTEL_ENDPOINT" env-default:"localhost:4318"`
	TransferHeaders []string `yaml:"transferHeaders" json:"transferHeaders" env:"OTEL_TRANSFER_HEADERS" env-separator:","`
}

// Audit enables the zap exporter which logs every engine event.
type Audit struct {
	Enabled     bool `yaml:"enabled" json:"enabled" env:"AUDIT_ENABLED" env-default:"false"`
	Development bool `yaml:"development" json:"development" env:"AUDIT_DEVELOPMENT" env-default:"false"`
}

func (c Config) defaults() Config {
	if c.Tracing.Name == "" {
		c.Tracing.Name = c.Name
	}
	if c.Engine.ScriptPoolMax < c.Engine.ScriptPoolMin {
		c.Engine.ScriptPoolMax = c.Engine.ScriptPoolMin
	}
	return c
}

// Validate reports configuration values the application cannot start with.
func (c Config) Validate() error {
	var errJoin error
	switch c.Persistence.Type {
	case PersistenceInMemory, PersistenceBolt:
	default:
		errJoin = errors.Join(errJoin, fmt.Errorf("unknown persistence type %q", c.Persistence.Type))
	}
	if c.Persistence.Type == PersistenceBolt && c.Persistence.Bolt.Path == "" {
		errJoin = errors.Join(errJoin, errors.New("bolt persistence requires a path"))
	}
	if c.Engine.ScriptPoolMin < 1 {
		errJoin = errors.Join(errJoin, fmt.Errorf("script pool minimum must be positive, got %d", c.Engine.ScriptPoolMin))
	}
	return errJoin
}

func InitConfig() Config {
	c, err := LoadConfig()
	if err != nil {
		fmt.Printf("Error occurred while reading the configuration: %s\n", err)
		panic(err)
	}
	return c
}

// LoadConfig reads CONFIG_FILE, or conf.yaml in the working directory, and
// falls back to environment variables when the file does not exist.
func LoadConfig() (Config, error) {
	c := Config{}
	var fileName string
	confFile := os.Getenv("CONFIG_FILE")
	if confFile == "" {
		wd, err := os.Getwd()
		if err != nil {
			return c, err
		}
		fileName = fmt.Sprintf("%s/conf.yaml", wd)
	} else {
		fileName = confFile
	}
	var err error
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(&c)
		fmt.Printf("Configuration file %s not found. Reading config from ENV.\n", fileName)
	} else {
		err = cleanenv.ReadConfig(fileName, &c)
	}
	if err != nil {
		return c, err
	}
	c = c.defaults()
	return c, c.Validate()
}
