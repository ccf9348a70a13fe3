package bpmn

import (
	"context"
	"fmt"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

// correlationService owns the instance-level outcome records.
type correlationService struct {
	store storage.CorrelationStorage
	now   func() time.Time
}

func newCorrelationService(store storage.CorrelationStorage) *correlationService {
	return &correlationService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *correlationService) CreateEntry(ctx context.Context, correlation runtime.Correlation) error {
	correlation.State = runtime.CorrelationRunning
	if correlation.CreatedAt.IsZero() {
		correlation.CreatedAt = s.now()
	}
	if err := s.store.SaveCorrelation(ctx, correlation); err != nil {
		return fmt.Errorf("failed to create correlation for process instance %s: %w", correlation.ProcessInstanceId, err)
	}
	return nil
}

func (s *correlationService) FinishProcessInstanceInCorrelation(ctx context.Context, processInstanceId string) error {
	return s.finish(ctx, processInstanceId, runtime.CorrelationFinished, nil)
}

func (s *correlationService) FinishProcessInstanceInCorrelationWithError(ctx context.Context, processInstanceId string, reason error) error {
	return s.finish(ctx, processInstanceId, runtime.CorrelationError, reason)
}

func (s *correlationService) TerminateProcessInstanceInCorrelation(ctx context.Context, processInstanceId string, reason error) error {
	return s.finish(ctx, processInstanceId, runtime.CorrelationTerminated, reason)
}

func (s *correlationService) finish(ctx context.Context, processInstanceId string, state runtime.CorrelationState, reason error) error {
	correlation, err := s.store.FindCorrelationByProcessInstanceId(ctx, processInstanceId)
	if err != nil {
		return fmt.Errorf("failed to find correlation of process instance %s: %w", processInstanceId, err)
	}
	if correlation.State != runtime.CorrelationRunning {
		return nil
	}
	finishedAt := s.now()
	correlation.State = state
	correlation.FinishedAt = &finishedAt
	correlation.Error = toFlowNodeFailure(reason)
	if err := s.store.SaveCorrelation(ctx, correlation); err != nil {
		return fmt.Errorf("failed to finish correlation of process instance %s: %w", processInstanceId, err)
	}
	return nil
}

func (s *correlationService) GetProcessInstancesByState(ctx context.Context, state runtime.CorrelationState) ([]runtime.Correlation, error) {
	return s.store.FindCorrelationsByState(ctx, state)
}

func (s *correlationService) GetByProcessInstanceId(ctx context.Context, processInstanceId string) (runtime.Correlation, error) {
	return s.store.FindCorrelationByProcessInstanceId(ctx, processInstanceId)
}

func (s *correlationService) GetByCorrelationId(ctx context.Context, correlationId string) ([]runtime.Correlation, error) {
	return s.store.FindCorrelationsByCorrelationId(ctx, correlationId)
}

func (s *correlationService) GetSubprocessesForProcessInstance(ctx context.Context, processInstanceId string) ([]runtime.Correlation, error) {
	return s.store.FindCorrelationsByParentProcessInstanceId(ctx, processInstanceId)
}

// GetByParentFlowNodeInstanceId returns the nested instance started by a
// sub-process or call activity instance.
func (s *correlationService) GetByParentFlowNodeInstanceId(ctx context.Context, parentProcessInstanceId, flowNodeInstanceId string) (*runtime.Correlation, error) {
	nested, err := s.GetSubprocessesForProcessInstance(ctx, parentProcessInstanceId)
	if err != nil {
		return nil, err
	}
	for i := range nested {
		if nested[i].ParentFlowNodeInstanceId == flowNodeInstanceId {
			return &nested[i], nil
		}
	}
	return nil, nil
}
