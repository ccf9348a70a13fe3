package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct{ id int }

func (countingRunner) Runner() {}

type countingFactory struct{ created *int }

func (f countingFactory) NewRunner() Runner {
	*f.created++
	return countingRunner{id: *f.created}
}

func Test_pool_starts_minimum_runners(t *testing.T) {
	created := 0
	pool, err := NewRunnerPool(t.Context(), countingFactory{&created}, 4, 2)

	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, pool.ActiveRunners())
}

func Test_pool_grows_up_to_maximum(t *testing.T) {
	created := 0
	pool, err := NewRunnerPool(t.Context(), countingFactory{&created}, 3, 1)
	require.NoError(t, err)

	a := pool.GetRunnerFromPool()
	b := pool.GetRunnerFromPool()
	c := pool.GetRunnerFromPool()

	assert.Equal(t, 3, created)
	assert.Equal(t, 3, pool.ActiveRunners())

	pool.ReturnRunnerToPool(a)
	pool.ReturnRunnerToPool(b)
	pool.ReturnRunnerToPool(c)
	d := pool.GetRunnerFromPool()
	assert.NotNil(t, d)
	assert.Equal(t, 3, created)
}

func Test_pool_shrinks_to_minimum(t *testing.T) {
	created := 0
	pool, err := NewRunnerPool(t.Context(), countingFactory{&created}, 3, 1)
	require.NoError(t, err)
	runners := []Runner{pool.GetRunnerFromPool(), pool.GetRunnerFromPool(), pool.GetRunnerFromPool()}
	for _, r := range runners {
		pool.ReturnRunnerToPool(r)
	}

	pool.shrink()

	assert.Equal(t, 1, pool.ActiveRunners())
	assert.Len(t, pool.pool, 1)
}

func Test_pool_rejects_invalid_sizes(t *testing.T) {
	created := 0
	_, err := NewRunnerPool(t.Context(), countingFactory{&created}, 1, 2)
	assert.Error(t, err)
}
