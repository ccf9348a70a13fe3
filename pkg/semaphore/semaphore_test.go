package semaphore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_named_locks_are_exclusive_per_name(t *testing.T) {
	locks := NewNamedLocks()
	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(t.Context(), "join")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, locks.Len())
}

func Test_named_locks_different_names_do_not_block(t *testing.T) {
	locks := NewNamedLocks()
	unlockA, err := locks.Lock(t.Context(), "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locks.Lock(t.Context(), "b")
	require.NoError(t, err)
	unlockB()
	assert.Equal(t, 1, locks.Len())
}

func Test_named_locks_canceled_wait(t *testing.T) {
	locks := NewNamedLocks()
	unlock, err := locks.Lock(t.Context(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, locks.Len())
}

func Test_semaphore_without_limit(t *testing.T) {
	var s Semaphore
	assert.Equal(t, 0, s.Limit())
	assert.NoError(t, s.Acquire(t.Context()))
	s.Release()

	limited := New(2)
	assert.Equal(t, 2, limited.Limit())
}
