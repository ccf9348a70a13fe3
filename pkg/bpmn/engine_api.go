package bpmn

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	otelPkg "github.com/pbinitiative/zenflow/pkg/otel"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

// TerminateProcessInstance stops every handler of a running process instance
// and of the instances nested in it.
func (engine *Engine) TerminateProcessInstance(ctx context.Context, processInstanceId, reason string) (retErr error) {
	_, span := engine.tracer.Start(ctx, "process-instance:terminate", trace.WithAttributes(
		attribute.String(otelPkg.AttributeProcessInstanceId, processInstanceId),
	))
	defer func() { endSpan(span, retErr) }()

	if !engine.instances.isRunning(processInstanceId) {
		return newValidationErrorf("process instance %s is not running", processInstanceId)
	}
	engine.aggregator.Publish(messaging.ProcessInstanceTerminatedTopic(processInstanceId), messaging.Message{
		ProcessInstanceId: processInstanceId,
		Err:               &TerminationError{ProcessInstanceId: processInstanceId, Reason: reason},
	})
	return nil
}

// FinishUserTask resumes the user task instance flowNodeInstanceId with payload
// as its result.
func (engine *Engine) FinishUserTask(ctx context.Context, correlationId, processInstanceId, flowNodeInstanceId string, payload any) error {
	return engine.finishWaitingTask(ctx, messaging.UserTaskFinishedTopic(correlationId, processInstanceId, flowNodeInstanceId), correlationId, processInstanceId, flowNodeInstanceId, payload)
}

func (engine *Engine) FinishManualTask(ctx context.Context, correlationId, processInstanceId, flowNodeInstanceId string, payload any) error {
	return engine.finishWaitingTask(ctx, messaging.ManualTaskFinishedTopic(correlationId, processInstanceId, flowNodeInstanceId), correlationId, processInstanceId, flowNodeInstanceId, payload)
}

func (engine *Engine) FinishEmptyActivity(ctx context.Context, correlationId, processInstanceId, flowNodeInstanceId string, payload any) error {
	return engine.finishWaitingTask(ctx, messaging.EmptyActivityFinishedTopic(correlationId, processInstanceId, flowNodeInstanceId), correlationId, processInstanceId, flowNodeInstanceId, payload)
}

func (engine *Engine) finishWaitingTask(ctx context.Context, topic, correlationId, processInstanceId, flowNodeInstanceId string, payload any) (retErr error) {
	_, span := engine.tracer.Start(ctx, "flow-node:finish", trace.WithAttributes(
		attribute.String(otelPkg.AttributeProcessInstanceId, processInstanceId),
		attribute.String(otelPkg.AttributeFlowNodeInstanceId, flowNodeInstanceId),
		attribute.String(otelPkg.AttributeCorrelationId, correlationId),
	))
	defer func() { endSpan(span, retErr) }()

	delivered := engine.aggregator.Publish(topic, messaging.Message{
		CorrelationId:      correlationId,
		ProcessInstanceId:  processInstanceId,
		FlowNodeInstanceId: flowNodeInstanceId,
		Payload:            payload,
	})
	if delivered == 0 {
		return newValidationErrorf("flow node instance %s of process instance %s is not waiting", flowNodeInstanceId, processInstanceId)
	}
	return nil
}

// TriggerMessageEvent publishes a message and returns how many waiting
// handlers received it.
func (engine *Engine) TriggerMessageEvent(_ context.Context, messageName string, payload any) int {
	return engine.aggregator.Publish(messaging.MessageTopic(messageName), messaging.Message{Payload: payload})
}

// TriggerSignalEvent broadcasts a signal and returns how many waiting
// handlers received it.
func (engine *Engine) TriggerSignalEvent(_ context.Context, signalName string, payload any) int {
	return engine.aggregator.Publish(messaging.SignalTopic(signalName), messaging.Message{Payload: payload})
}

// GetSuspendedFlowNodeInstances returns the flow node instances waiting for
// an external resume, optionally restricted to one process model.
func (engine *Engine) GetSuspendedFlowNodeInstances(ctx context.Context, processModelId string) ([]runtime.FlowNodeInstance, error) {
	suspended, err := engine.flowNodes.QueryByState(ctx, runtime.FlowNodeSuspended)
	if err != nil {
		return nil, err
	}
	if processModelId == "" {
		return suspended, nil
	}
	filtered := make([]runtime.FlowNodeInstance, 0, len(suspended))
	for _, instance := range suspended {
		if instance.ProcessModelId == processModelId {
			filtered = append(filtered, instance)
		}
	}
	return filtered, nil
}

func (engine *Engine) GetFlowNodeInstances(ctx context.Context, processInstanceId string) ([]runtime.FlowNodeInstance, error) {
	return engine.flowNodes.QueryByProcessInstance(ctx, processInstanceId)
}

func (engine *Engine) GetFlowNodeInstance(ctx context.Context, flowNodeInstanceId string) (runtime.FlowNodeInstance, error) {
	instance, err := engine.flowNodes.QueryById(ctx, flowNodeInstanceId)
	if errors.Is(err, storage.ErrNotFound) {
		return runtime.FlowNodeInstance{}, errors.Join(newValidationErrorf("flow node instance %s does not exist", flowNodeInstanceId), err)
	}
	return instance, err
}

func (engine *Engine) GetCorrelation(ctx context.Context, processInstanceId string) (runtime.Correlation, error) {
	correlation, err := engine.correlations.GetByProcessInstanceId(ctx, processInstanceId)
	if errors.Is(err, storage.ErrNotFound) {
		return runtime.Correlation{}, errors.Join(newValidationErrorf("process instance %s does not exist", processInstanceId), err)
	}
	return correlation, err
}

func (engine *Engine) GetCorrelationsByCorrelationId(ctx context.Context, correlationId string) ([]runtime.Correlation, error) {
	correlations, err := engine.correlations.GetByCorrelationId(ctx, correlationId)
	if err != nil {
		return nil, fmt.Errorf("failed to find correlation %s: %w", correlationId, err)
	}
	return correlations, nil
}

// GetProcessDefinition returns the latest deployment of a process.
func (engine *Engine) GetProcessDefinition(ctx context.Context, processModelId string) (*runtime.ProcessDefinition, error) {
	return engine.findDefinition(ctx, processModelId, "")
}

func (engine *Engine) GetProcessDefinitions(ctx context.Context) ([]runtime.ProcessDefinition, error) {
	return engine.persistence.FindAllLatestProcessDefinitions(ctx)
}

// RunningProcessInstances returns the ids of the instances this engine runs.
func (engine *Engine) RunningProcessInstances() []string {
	return engine.instances.runningIds()
}
