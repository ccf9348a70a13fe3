// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/bpmn/timer"
)

// activityBehavior is the work of one activity kind. The returned result
// becomes the activity's outcome.
type activityBehavior interface {
	execute(ctx context.Context, exec *execution) (any, error)
}

// suspendedResumer continues an activity that was waiting when the engine
// stopped without repeating the side effect that led to the wait.
type suspendedResumer interface {
	resumeSuspended(ctx context.Context, exec *execution) (any, error)
}

// activityExecutor wraps every activity kind with boundary event handling.
type activityExecutor struct {
	activity bpmn20.Activity
	behavior activityBehavior
}

func (a *activityExecutor) executeHandler(ctx context.Context, exec *execution) ([]nextStep, error) {
	return a.run(ctx, exec, a.behavior.execute)
}

func (a *activityExecutor) continueAfterSuspend(ctx context.Context, exec *execution) ([]nextStep, error) {
	if steps, ok, err := a.completePersistedInterrupt(ctx, exec); ok {
		return steps, err
	}
	if r, ok := a.behavior.(suspendedResumer); ok {
		return a.run(ctx, exec, r.resumeSuspended)
	}
	return a.run(ctx, exec, a.behavior.execute)
}

func (a *activityExecutor) continueAfterResume(ctx context.Context, exec *execution, onResume runtime.FlowNodeToken) ([]nextStep, error) {
	if steps, ok, err := a.completePersistedInterrupt(ctx, exec); ok {
		return steps, err
	}
	return exec.complete(ctx, runtime.DeepCopy(onResume.Payload), exec.modelFacade.GetNextFlowNodes(a.activity))
}

func (a *activityExecutor) continueAfterEnter(ctx context.Context, exec *execution) ([]nextStep, error) {
	if steps, ok, err := a.completePersistedInterrupt(ctx, exec); ok {
		return steps, err
	}
	return a.run(ctx, exec, a.behavior.execute)
}

// completePersistedInterrupt finishes an interruption whose boundary instance
// was persisted before the engine stopped.
func (a *activityExecutor) completePersistedInterrupt(ctx context.Context, exec *execution) ([]nextStep, bool, error) {
	for _, candidate := range exec.successors(bpmn20.ElementTypeBoundaryEvent) {
		boundary, ok := exec.modelFacade.GetFlowNodeById(candidate.FlowNodeId).(*bpmn20.TBoundaryEvent)
		if !ok || !boundary.IsInterrupting() {
			continue
		}
		steps, err := a.interrupted(ctx, exec, &boundaryInterrupt{boundary: boundary, instance: candidate})
		return steps, true, err
	}
	return nil, false, nil
}

func (a *activityExecutor) run(ctx context.Context, exec *execution, work func(context.Context, *execution) (any, error)) ([]nextStep, error) {
	activityCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	watch := &boundaryWatch{exec: exec, activity: a.activity, ctx: ctx, cancel: cancel}
	if err := watch.attach(activityCtx); err != nil {
		watch.detach()
		return nil, err
	}
	result, err := work(activityCtx, exec)
	if interrupt := watch.detach(); interrupt != nil {
		return a.interrupted(ctx, exec, interrupt)
	}
	if err != nil {
		if boundary := a.matchErrorBoundary(exec, err); boundary != nil {
			return a.caught(ctx, exec, boundary, err)
		}
		return nil, err
	}
	return exec.complete(ctx, result, exec.modelFacade.GetNextFlowNodes(a.activity))
}

// interrupted finishes the activity towards its interrupting boundary event.
func (a *activityExecutor) interrupted(ctx context.Context, exec *execution, interrupt *boundaryInterrupt) ([]nextStep, error) {
	steps, err := exec.complete(ctx, exec.token.Payload, []bpmn20.FlowNode{interrupt.boundary})
	if err != nil {
		return nil, err
	}
	instance := interrupt.instance
	steps[0].resumeInstance = &instance
	exec.engine.exportElementEvent(exec.token, interrupt.boundary, instance.Id, exporter.BoundaryEventTriggered)
	return steps, nil
}

// caught routes an activity failure to the matching error boundary event.
// The boundary instance is persisted before the activity's error record.
func (a *activityExecutor) caught(ctx context.Context, exec *execution, boundary *bpmn20.TBoundaryEvent, cause error) ([]nextStep, error) {
	persistCtx := context.WithoutCancel(ctx)
	instance, err := exec.engine.flowNodes.PersistOnEnter(persistCtx, flowNodeTemplate(boundary, exec.modelFacade, exec.token), exec.token.Payload, []string{exec.instance.Id})
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	if err := exec.engine.flowNodes.PersistOnError(persistCtx, exec.instance, exec.token.Payload, cause, []string{boundary.Id}); err != nil {
		return nil, errors.Join(cause, err)
	}
	exec.engine.exportElementEvent(exec.token, boundary, instance.Id, exporter.BoundaryEventTriggered)
	return []nextStep{{flowNode: boundary, resumeInstance: instance}}, nil
}

// matchErrorBoundary finds the error boundary catching err. Boundaries
// without an errorRef catch every failure except a termination.
func (a *activityExecutor) matchErrorBoundary(exec *execution, err error) *bpmn20.TBoundaryEvent {
	var instanceErr *ProcessInstanceError
	if isTermination(err) || isShutdown(err) || errors.As(err, &instanceErr) {
		return nil
	}
	bpmnErr, isBpmnErr := asBpmnError(err)
	for _, boundary := range exec.modelFacade.GetBoundaryEventsFor(a.activity.GetId()) {
		definition := boundary.ErrorEventDefinition
		if definition == nil {
			continue
		}
		if definition.ErrorRef == "" {
			return boundary
		}
		if !isBpmnErr {
			continue
		}
		ref := exec.modelFacade.FindError(definition.ErrorRef)
		if ref == nil {
			if bpmnErr.Code == definition.ErrorRef {
				return boundary
			}
			continue
		}
		if (ref.ErrorCode != "" && ref.ErrorCode == bpmnErr.Code) || (ref.Name != "" && ref.Name == bpmnErr.Name) {
			return boundary
		}
	}
	return nil
}

// boundaryWatch listens for the boundary events of one activity run.
type boundaryWatch struct {
	exec     *execution
	activity bpmn20.Activity
	// ctx outlives the activity so non-interrupting branches keep running.
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu            sync.Mutex
	completed     bool
	fired         *boundaryInterrupt
	subscriptions []*messaging.Subscription
	timers        []*timer.Subscription
}

func (w *boundaryWatch) attach(activityCtx context.Context) error {
	exec := w.exec
	for _, boundary := range exec.modelFacade.GetBoundaryEventsFor(w.activity.GetId()) {
		switch boundary.GetEventDefinitionType() {
		case bpmn20.EventDefinitionTimer:
			sub, err := exec.engine.timers.InitializeTimer(activityCtx, boundary.Id, *boundary.TimerEventDefinition, exec.instance.CreatedAt,
				exec.engine.expressions.timerEvaluator(activityCtx, exec.tokenFacade, exec.identity),
				func(time.Time) { w.fire(boundary, exec.token.Payload) })
			if err != nil {
				return err
			}
			w.mu.Lock()
			w.timers = append(w.timers, sub)
			w.mu.Unlock()
		case bpmn20.EventDefinitionMessage:
			w.subscribe(boundary, messaging.MessageTopic(exec.modelFacade.GetMessageName(boundary.MessageEventDefinition.MessageRef)))
		case bpmn20.EventDefinitionSignal:
			w.subscribe(boundary, messaging.SignalTopic(exec.modelFacade.GetSignalName(boundary.SignalEventDefinition.SignalRef)))
		}
	}
	return nil
}

func (w *boundaryWatch) subscribe(boundary *bpmn20.TBoundaryEvent, topic string) {
	callback := func(msg messaging.Message) { w.fire(boundary, w.exec.resultOf(msg.Payload)) }
	sub := w.exec.engine.aggregator.SubscribeOnce(topic, callback)
	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
}

func (w *boundaryWatch) fire(boundary *bpmn20.TBoundaryEvent, payload any) {
	exec := w.exec
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.completed || w.fired != nil {
		return
	}
	if !boundary.IsInterrupting() {
		facade := exec.tokenFacade.GetForkedTokenFacade()
		token := exec.token.Clone()
		token.Payload = runtime.DeepCopy(payload)
		previous := exec.instance.Id
		exec.spawn(func() error {
			handler, err := exec.engine.handlers.create(boundary, exec.modelFacade, token)
			if err != nil {
				return err
			}
			exec.engine.exportElementEvent(token, boundary, "", exporter.BoundaryEventTriggered)
			return handler.Execute(w.ctx, token, facade, exec.modelFacade, exec.identity, previous)
		})
		return
	}
	instance, err := exec.engine.flowNodes.PersistOnEnter(context.WithoutCancel(w.ctx), flowNodeTemplate(boundary, exec.modelFacade, exec.token), payload, []string{exec.instance.Id})
	if err != nil {
		exec.engine.logger.Error("failed to persist boundary event", "boundaryEventId", boundary.Id, "err", err)
		return
	}
	w.fired = &boundaryInterrupt{boundary: boundary, instance: *instance}
	w.cancel(w.fired)
}

// detach stops every watcher and returns the interrupting boundary that
// fired, if any.
func (w *boundaryWatch) detach() *boundaryInterrupt {
	w.mu.Lock()
	w.completed = true
	fired := w.fired
	subscriptions := w.subscriptions
	timers := w.timers
	w.mu.Unlock()
	for _, sub := range subscriptions {
		w.exec.engine.aggregator.Unsubscribe(sub)
	}
	for _, sub := range timers {
		w.exec.engine.timers.CancelTimerSubscription(sub)
	}
	return fired
}

// resultOf prefers a message payload over the current token payload.
func (exec *execution) resultOf(payload any) any {
	if payload != nil {
		return payload
	}
	return exec.token.Payload
}

// suspendAndAwait persists onSuspend unless the instance already waits, then
// blocks for the first message on ch. The subscription must be made before
// calling so no message published after the suspend is lost.
func (exec *execution) suspendAndAwait(ctx context.Context, ch <-chan messaging.Message, sub *messaging.Subscription, afterSuspend func()) (messaging.Message, error) {
	defer exec.engine.aggregator.Unsubscribe(sub)
	if exec.instance.State != runtime.FlowNodeSuspended {
		if err := exec.engine.flowNodes.PersistOnSuspend(ctx, exec.instance, exec.token.Payload); err != nil {
			return messaging.Message{}, err
		}
	}
	if afterSuspend != nil {
		afterSuspend()
	}
	select {
	case msg := <-ch:
		if msg.Err != nil {
			return msg, msg.Err
		}
		if err := exec.engine.flowNodes.PersistOnResume(ctx, exec.instance, exec.resultOf(msg.Payload)); err != nil {
			return msg, err
		}
		return msg, nil
	case <-ctx.Done():
		return messaging.Message{}, context.Cause(ctx)
	}
}

// suspendAndWaitTimer waits for a timer measured from the onSuspend token, so
// a resumed wait keeps its original due time.
func (exec *execution) suspendAndWaitTimer(ctx context.Context, definition *bpmn20.TTimerEventDefinition) error {
	if exec.instance.State != runtime.FlowNodeSuspended {
		if err := exec.engine.flowNodes.PersistOnSuspend(ctx, exec.instance, exec.token.Payload); err != nil {
			return err
		}
	}
	reference := exec.instance.CreatedAt
	if onSuspend := exec.instance.GetToken(runtime.TokenOnSuspend); onSuspend != nil {
		reference = onSuspend.CreatedAt
	}
	fired := make(chan struct{}, 1)
	sub, err := exec.engine.timers.InitializeTimer(ctx, exec.flowNode.GetId(), *definition, reference,
		exec.engine.expressions.timerEvaluator(ctx, exec.tokenFacade, exec.identity),
		func(time.Time) {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	if err != nil {
		return err
	}
	defer exec.engine.timers.CancelTimerSubscription(sub)
	select {
	case <-fired:
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	return exec.engine.flowNodes.PersistOnResume(ctx, exec.instance, exec.token.Payload)
}
