package bpmn

import (
	"context"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// START_EVENT_EXECUTOR ==============================================

// startEventExecutor waits for duration and date timers. Cyclic timers are
// driven by the cronjob service and pass through here.
type startEventExecutor struct {
	event *bpmn20.TStartEvent
}

func (e *startEventExecutor) executeHandler(ctx context.Context, exec *execution) ([]nextStep, error) {
	if timer := e.event.TimerEventDefinition; timer != nil && timer.IsEnabled() && !e.event.HasCyclicTimer() {
		if err := exec.suspendAndWaitTimer(ctx, timer); err != nil {
			return nil, err
		}
	}
	return exec.complete(ctx, exec.token.Payload, exec.modelFacade.GetNextFlowNodes(e.event))
}

func (e *startEventExecutor) continueAfterSuspend(ctx context.Context, exec *execution) ([]nextStep, error) {
	return e.executeHandler(ctx, exec)
}

func (e *startEventExecutor) continueAfterResume(ctx context.Context, exec *execution, onResume runtime.FlowNodeToken) ([]nextStep, error) {
	return exec.complete(ctx, runtime.DeepCopy(onResume.Payload), exec.modelFacade.GetNextFlowNodes(e.event))
}

// END_EVENT_EXECUTOR ==============================================

type endEventExecutor struct {
	event *bpmn20.TEndEvent
}

func (e *endEventExecutor) executeHandler(ctx context.Context, exec *execution) ([]nextStep, error) {
	payload := exec.token.Payload
	switch e.event.GetEventDefinitionType() {
	case bpmn20.EventDefinitionMessage:
		name := exec.modelFacade.GetMessageName(e.event.MessageEventDefinition.MessageRef)
		exec.engine.aggregator.Publish(messaging.MessageTopic(name), exec.message(payload))
	case bpmn20.EventDefinitionSignal:
		name := exec.modelFacade.GetSignalName(e.event.SignalEventDefinition.SignalRef)
		exec.engine.aggregator.Publish(messaging.SignalTopic(name), exec.message(payload))
	case bpmn20.EventDefinitionError:
		return nil, bpmnErrorFor(exec.modelFacade, e.event.ErrorEventDefinition.ErrorRef)
	case bpmn20.EventDefinitionTerminate:
		return nil, e.terminate(ctx, exec)
	}
	steps, err := exec.complete(ctx, payload, nil)
	if err != nil {
		return nil, err
	}
	msg := exec.message(payload)
	exec.engine.aggregator.Publish(messaging.EndEventReachedTopic(exec.token.ProcessInstanceId), msg)
	exec.engine.aggregator.Publish(messaging.EndEventReachedByIdTopic(exec.token.ProcessInstanceId, e.event.Id), msg)
	exec.engine.exportElementEvent(exec.token, e.event, exec.instance.Id, exporter.EndEventReached)
	return steps, nil
}

// terminate persists onTerminate and broadcasts the termination so every
// other branch of the instance stops.
func (e *endEventExecutor) terminate(ctx context.Context, exec *execution) error {
	termination := &TerminationError{
		ProcessInstanceId: exec.token.ProcessInstanceId,
		FlowNodeId:        e.event.Id,
		Reason:            "terminate end event reached",
	}
	if err := exec.engine.flowNodes.PersistOnTerminate(ctx, exec.instance, exec.token.Payload, termination); err != nil {
		return err
	}
	msg := exec.message(exec.token.Payload)
	msg.Err = termination
	exec.engine.aggregator.Publish(messaging.ProcessInstanceTerminatedTopic(exec.token.ProcessInstanceId), msg)
	return termination
}

// bpmnErrorFor resolves errorRef to the declared error. Undeclared refs are
// used as the error code.
func bpmnErrorFor(modelFacade *bpmn20.ProcessModelFacade, errorRef string) *BpmnError {
	if declared := modelFacade.FindError(errorRef); declared != nil {
		code := declared.ErrorCode
		if code == "" {
			code = declared.Id
		}
		return &BpmnError{Code: code, Name: declared.Name}
	}
	return &BpmnError{Code: errorRef}
}

// INTERMEDIATE_CATCH_EVENT_EXECUTOR ==============================================

type intermediateCatchEventExecutor struct {
	event *bpmn20.TIntermediateCatchEvent
}

func (e *intermediateCatchEventExecutor) executeHandler(ctx context.Context, exec *execution) ([]nextStep, error) {
	result, err := e.catch(ctx, exec)
	if err != nil {
		return nil, err
	}
	return exec.complete(ctx, result, exec.modelFacade.GetNextFlowNodes(e.event))
}

func (e *intermediateCatchEventExecutor) catch(ctx context.Context, exec *execution) (any, error) {
	switch e.event.GetEventDefinitionType() {
	case bpmn20.EventDefinitionMessage:
		name := exec.modelFacade.GetMessageName(e.event.MessageEventDefinition.MessageRef)
		msg, err := e.await(ctx, exec, messaging.MessageTopic(name))
		if err != nil {
			return nil, err
		}
		exec.engine.aggregator.Publish(messaging.MessageAckTopic(name), exec.message(msg.Payload))
		return exec.resultOf(msg.Payload), nil
	case bpmn20.EventDefinitionSignal:
		name := exec.modelFacade.GetSignalName(e.event.SignalEventDefinition.SignalRef)
		msg, err := e.await(ctx, exec, messaging.SignalTopic(name))
		if err != nil {
			return nil, err
		}
		return exec.resultOf(msg.Payload), nil
	case bpmn20.EventDefinitionTimer:
		if err := exec.suspendAndWaitTimer(ctx, e.event.TimerEventDefinition); err != nil {
			return nil, err
		}
	}
	return exec.token.Payload, nil
}

func (e *intermediateCatchEventExecutor) await(ctx context.Context, exec *execution, topic string) (messaging.Message, error) {
	ch, sub := messaging.AwaitOnce(exec.engine.aggregator, topic)
	return exec.suspendAndAwait(ctx, ch, sub, nil)
}

func (e *intermediateCatchEventExecutor) continueAfterSuspend(ctx context.Context, exec *execution) ([]nextStep, error) {
	return e.executeHandler(ctx, exec)
}

func (e *intermediateCatchEventExecutor) continueAfterResume(ctx context.Context, exec *execution, onResume runtime.FlowNodeToken) ([]nextStep, error) {
	return exec.complete(ctx, runtime.DeepCopy(onResume.Payload), exec.modelFacade.GetNextFlowNodes(e.event))
}

// INTERMEDIATE_THROW_EVENT_EXECUTOR ==============================================

type intermediateThrowEventExecutor struct {
	event *bpmn20.TIntermediateThrowEvent
}

func (e *intermediateThrowEventExecutor) executeHandler(ctx context.Context, exec *execution) ([]nextStep, error) {
	next, err := e.nextFlowNodes(ctx, exec)
	if err != nil {
		return nil, err
	}
	payload := exec.token.Payload
	switch e.event.GetEventDefinitionType() {
	case bpmn20.EventDefinitionMessage:
		name := exec.modelFacade.GetMessageName(e.event.MessageEventDefinition.MessageRef)
		exec.engine.aggregator.Publish(messaging.MessageTopic(name), exec.message(payload))
	case bpmn20.EventDefinitionSignal:
		name := exec.modelFacade.GetSignalName(e.event.SignalEventDefinition.SignalRef)
		exec.engine.aggregator.Publish(messaging.SignalTopic(name), exec.message(payload))
	}
	return exec.complete(ctx, payload, next)
}

// nextFlowNodes routes a link throw to its catch event.
func (e *intermediateThrowEventExecutor) nextFlowNodes(_ context.Context, exec *execution) ([]bpmn20.FlowNode, error) {
	if e.event.GetEventDefinitionType() != bpmn20.EventDefinitionLink {
		return exec.modelFacade.GetNextFlowNodes(e.event), nil
	}
	name := e.event.LinkEventDefinition.Name
	catches := exec.modelFacade.GetLinkCatchEventsByLinkName(name)
	if len(catches) != 1 {
		return nil, newValidationErrorf("link throw event %s: expected exactly one catch event for link %q, found %d", e.event.Id, name, len(catches))
	}
	return []bpmn20.FlowNode{catches[0]}, nil
}

// BOUNDARY_EVENT_EXECUTOR ==============================================

// boundaryEventExecutor continues the path of a boundary event that already
// fired. Its onEnter token carries the triggering payload.
type boundaryEventExecutor struct {
	event *bpmn20.TBoundaryEvent
}

func (e *boundaryEventExecutor) executeHandler(ctx context.Context, exec *execution) ([]nextStep, error) {
	return exec.complete(ctx, exec.token.Payload, exec.modelFacade.GetNextFlowNodes(e.event))
}

func (e *boundaryEventExecutor) continueAfterEnter(ctx context.Context, exec *execution) ([]nextStep, error) {
	payload := exec.token.Payload
	if onEnter := exec.instance.GetToken(runtime.TokenOnEnter); onEnter != nil {
		payload = runtime.DeepCopy(onEnter.Payload)
	}
	return exec.complete(ctx, payload, exec.modelFacade.GetNextFlowNodes(e.event))
}
