package script

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Runner interface {
	Runner()
}

type RunnerFactory interface {
	NewRunner() Runner
}

const poolCleanupInterval = 10 * time.Minute

type RunnerPool struct {
	pool               chan Runner
	runnerFactory      RunnerFactory
	activeRunnersCount int
	activeRunnersMu    *sync.Mutex
	maxVmPoolSize      int // max amount of active runners
	minVmPoolSize      int // min amount of active runners
}

func NewRunnerPool(ctx context.Context, runnerFactory RunnerFactory, maxVmPoolSize int, minVmPoolSize int) (*RunnerPool, error) {
	if maxVmPoolSize < minVmPoolSize || maxVmPoolSize < 1 {
		return nil, fmt.Errorf("invalid vm pool size: min %d, max %d", minVmPoolSize, maxVmPoolSize)
	}

	runtime := RunnerPool{
		pool:               make(chan Runner, maxVmPoolSize),
		runnerFactory:      runnerFactory,
		activeRunnersCount: 0,
		activeRunnersMu:    &sync.Mutex{},
		maxVmPoolSize:      maxVmPoolSize,
		minVmPoolSize:      minVmPoolSize,
	}

	//start min amount of runners
	for i := 0; i < minVmPoolSize; i++ {
		runtime.pool <- runtime.runnerFactory.NewRunner()
		runtime.activeRunnersCount++
	}

	//idle runners above the minimum are dropped periodically
	go func() {
		ticker := time.NewTicker(poolCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runtime.shrink()
			case <-ctx.Done():
				return
			}
		}
	}()
	return &runtime, nil
}

func (r *RunnerPool) shrink() {
	for len(r.pool) > r.minVmPoolSize {
		select {
		case <-r.pool:
			r.activeRunnersMu.Lock()
			r.activeRunnersCount--
			r.activeRunnersMu.Unlock()
		default:
			return
		}
	}
}

// GetRunnerFromPool returns an idle runner, creates one while below the
// maximum, or waits for a runner to be returned.
func (r *RunnerPool) GetRunnerFromPool() Runner {
	var runner Runner
	select {
	case runner = <-r.pool:
	default:
		r.activeRunnersMu.Lock()
		if r.activeRunnersCount < r.maxVmPoolSize {
			runner = r.runnerFactory.NewRunner()
			r.activeRunnersCount++
		}
		r.activeRunnersMu.Unlock()
		if runner == nil {
			runner = <-r.pool
		}
	}
	return runner
}

func (r *RunnerPool) ReturnRunnerToPool(runner Runner) {
	select {
	case r.pool <- runner:
	default:
		//delete runner if pool is full
		r.activeRunnersMu.Lock()
		r.activeRunnersCount--
		r.activeRunnersMu.Unlock()
	}
}

// ActiveRunners returns the number of runners created and not yet dropped.
func (r *RunnerPool) ActiveRunners() int {
	r.activeRunnersMu.Lock()
	defer r.activeRunnersMu.Unlock()
	return r.activeRunnersCount
}
