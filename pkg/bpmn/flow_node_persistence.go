package bpmn

import (
	"context"
	"fmt"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

// flowNodePersistenceFacade records the lifecycle transitions of flow node
// instances. Transitions out of a terminal state are no-ops.
type flowNodePersistenceFacade struct {
	store      storage.FlowNodeInstanceStorage
	generateId func() string
	now        func() time.Time
}

func newFlowNodePersistenceFacade(store storage.FlowNodeInstanceStorage, generateId func() string) *flowNodePersistenceFacade {
	return &flowNodePersistenceFacade{
		store:      store,
		generateId: generateId,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// PersistOnEnter creates the instance record. template provides the flow node
// and process identifiers.
func (p *flowNodePersistenceFacade) PersistOnEnter(ctx context.Context, template runtime.FlowNodeInstance, payload any, previous []string) (*runtime.FlowNodeInstance, error) {
	now := p.now()
	instance := template
	if instance.Id == "" {
		instance.Id = p.generateId()
	}
	instance.State = runtime.FlowNodeRunning
	instance.PreviousFlowNodeInstanceIds = append([]string(nil), previous...)
	instance.Tokens = []runtime.FlowNodeToken{{Type: runtime.TokenOnEnter, Payload: runtime.DeepCopy(payload), CreatedAt: now}}
	instance.CreatedAt = now
	instance.UpdatedAt = now
	if err := p.store.SaveFlowNodeInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to persist onEnter of %s: %w", instance.FlowNodeId, err)
	}
	return &instance, nil
}

func (p *flowNodePersistenceFacade) PersistOnSuspend(ctx context.Context, instance *runtime.FlowNodeInstance, payload any) error {
	return p.transition(ctx, instance, runtime.FlowNodeSuspended, runtime.TokenOnSuspend, payload, nil)
}

func (p *flowNodePersistenceFacade) PersistOnResume(ctx context.Context, instance *runtime.FlowNodeInstance, payload any) error {
	return p.transition(ctx, instance, runtime.FlowNodeRunning, runtime.TokenOnResume, payload, nil)
}

// PersistOnExit records the routing decision next so replay cannot take a
// different path.
func (p *flowNodePersistenceFacade) PersistOnExit(ctx context.Context, instance *runtime.FlowNodeInstance, payload any, next []string) error {
	return p.transition(ctx, instance, runtime.FlowNodeFinished, runtime.TokenOnExit, payload, func(i *runtime.FlowNodeInstance) {
		i.NextFlowNodeIds = append([]string(nil), next...)
	})
}

func (p *flowNodePersistenceFacade) PersistOnTerminate(ctx context.Context, instance *runtime.FlowNodeInstance, payload any, reason error) error {
	return p.transition(ctx, instance, runtime.FlowNodeTerminated, runtime.TokenOnExit, payload, func(i *runtime.FlowNodeInstance) {
		i.Error = toFlowNodeFailure(reason)
	})
}

func (p *flowNodePersistenceFacade) PersistOnError(ctx context.Context, instance *runtime.FlowNodeInstance, payload any, reason error, next []string) error {
	return p.transition(ctx, instance, runtime.FlowNodeError, runtime.TokenOnExit, payload, func(i *runtime.FlowNodeInstance) {
		i.Error = toFlowNodeFailure(reason)
		i.NextFlowNodeIds = append([]string(nil), next...)
	})
}

// PersistPredecessors saves a grown predecessor list of a running instance.
func (p *flowNodePersistenceFacade) PersistPredecessors(ctx context.Context, instance *runtime.FlowNodeInstance) error {
	if instance.State.IsTerminal() {
		return nil
	}
	instance.UpdatedAt = p.now()
	if err := p.store.SaveFlowNodeInstance(ctx, *instance); err != nil {
		return fmt.Errorf("failed to persist predecessors of %s: %w", instance.FlowNodeId, err)
	}
	return nil
}

func (p *flowNodePersistenceFacade) transition(ctx context.Context, instance *runtime.FlowNodeInstance, state runtime.FlowNodeInstanceState, tokenType runtime.FlowNodeTokenType, payload any, mutate func(*runtime.FlowNodeInstance)) error {
	if instance == nil {
		return newEngineErrorf("no flow node instance to transition to %s", state)
	}
	if instance.State.IsTerminal() {
		return nil
	}
	updated := *instance
	updated.Tokens = append(append([]runtime.FlowNodeToken(nil), instance.Tokens...), runtime.FlowNodeToken{
		Type:      tokenType,
		Payload:   runtime.DeepCopy(payload),
		CreatedAt: p.now(),
	})
	updated.State = state
	updated.UpdatedAt = p.now()
	if mutate != nil {
		mutate(&updated)
	}
	if err := p.store.SaveFlowNodeInstance(ctx, updated); err != nil {
		return fmt.Errorf("failed to persist %s of %s: %w", tokenType, instance.FlowNodeId, err)
	}
	*instance = updated
	return nil
}

func (p *flowNodePersistenceFacade) QueryByProcessInstance(ctx context.Context, processInstanceId string) ([]runtime.FlowNodeInstance, error) {
	return p.store.FindFlowNodeInstancesByProcessInstanceId(ctx, processInstanceId)
}

func (p *flowNodePersistenceFacade) QueryByProcessModel(ctx context.Context, processModelId string) ([]runtime.FlowNodeInstance, error) {
	return p.store.FindFlowNodeInstancesByProcessModelId(ctx, processModelId)
}

func (p *flowNodePersistenceFacade) QueryByState(ctx context.Context, state runtime.FlowNodeInstanceState) ([]runtime.FlowNodeInstance, error) {
	return p.store.FindFlowNodeInstancesByState(ctx, state)
}

func (p *flowNodePersistenceFacade) QueryById(ctx context.Context, id string) (runtime.FlowNodeInstance, error) {
	return p.store.FindFlowNodeInstanceById(ctx, id)
}
