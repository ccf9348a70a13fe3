package semaphore

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Semaphore limits the number of callers that can hold it concurrently.
type Semaphore struct {
	n   int
	sem *semaphore.Weighted
}

// New returns a semaphore that allows n concurrent holders.
func New(n int) Semaphore {
	return Semaphore{
		n,
		semaphore.NewWeighted(int64(n)),
	}
}

// Limit returns the number of concurrent holders.
//
// It returns 0 if there is no limit.
func (s *Semaphore) Limit() int {
	if s.sem == nil {
		return 0
	}
	return s.n
}

// Acquire blocks until the caller may proceed, or until ctx is canceled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if s.sem == nil {
		return nil
	}
	return s.sem.Acquire(ctx, 1)
}

func (s *Semaphore) Release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

// NamedLocks hands out one mutual-exclusion lock per name. A lock exists only
// while somebody holds or waits for it.
type NamedLocks struct {
	mu    sync.Mutex
	locks map[string]*namedLock
}

type namedLock struct {
	sem  Semaphore
	refs int
}

func NewNamedLocks() *NamedLocks {
	return &NamedLocks{locks: map[string]*namedLock{}}
}

// Lock blocks until the lock for name is held or ctx is canceled. The returned
// function releases the lock and must be called exactly once.
func (l *NamedLocks) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[name]
	if !ok {
		lock = &namedLock{sem: New(1)}
		l.locks[name] = lock
	}
	lock.refs++
	l.mu.Unlock()

	if err := lock.sem.Acquire(ctx); err != nil {
		l.release(name, lock, false)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(name, lock, true) })
	}, nil
}

func (l *NamedLocks) release(name string, lock *namedLock, held bool) {
	if held {
		lock.sem.Release()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, name)
	}
}

// Len returns the number of names currently held or waited for.
func (l *NamedLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
