package bolt_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/pbinitiative/zenflow/pkg/storage/bolt"
	"github.com/pbinitiative/zenflow/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStorage(t *testing.T) *bolt.Storage {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "zenflow.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func Test_bolt_storage(t *testing.T) {
	var store storage.Storage = openStorage(t)

	tester := storagetest.StorageTester{}

	tests := tester.GetTests()
	tester.PrepareTestData(store, t)
	for name, testFunc := range tests {
		t.Run(name, testFunc(store, t))
	}
}

func Test_bolt_storage_survives_reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zenflow.db")
	store, err := bolt.Open(path, time.Second)
	require.NoError(t, err)
	err = store.SaveCorrelation(t.Context(), runtime.Correlation{
		ProcessInstanceId: "pi-1",
		CorrelationId:     "c-1",
		State:             runtime.CorrelationRunning,
		StartPayload:      map[string]any{"v": 2},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := bolt.Open(path, time.Second)
	require.NoError(t, err)
	defer reopened.Close()
	correlation, err := reopened.FindCorrelationByProcessInstanceId(t.Context(), "pi-1")

	assert.NoError(t, err)
	assert.Equal(t, "c-1", correlation.CorrelationId)
	assert.Equal(t, map[string]any{"v": float64(2)}, correlation.StartPayload)
}
