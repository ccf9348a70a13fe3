// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"sync"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// drive runs the instance of correlation until every branch has returned.
// Without persisted flow node instances it starts from the recorded start
// event, otherwise it replays the persisted history from its first instance.
func (engine *Engine) drive(ctx context.Context, correlation runtime.Correlation, modelFacade *bpmn20.ProcessModelFacade, tokenFacade *runtime.TokenFacade, identity runtime.Identity) error {
	instances, err := engine.flowNodes.QueryByProcessInstance(ctx, correlation.ProcessInstanceId)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		start, err := selectStartEvent(modelFacade, correlation.StartEventId)
		if err != nil {
			return err
		}
		token := tokenFacade.CreateProcessToken(runtime.DeepCopy(correlation.StartPayload))
		handler, err := engine.handlers.create(start, modelFacade, token)
		if err != nil {
			return err
		}
		return handler.Execute(ctx, token, tokenFacade, modelFacade, identity, "")
	}
	var first *runtime.FlowNodeInstance
	for i := range instances {
		instance := &instances[i]
		if instance.FlowNodeType == string(bpmn20.ElementTypeStartEvent) && len(instance.PreviousFlowNodeInstanceIds) == 0 {
			first = instance
			break
		}
	}
	if first == nil {
		return newValidationErrorf("process instance %s has no persisted start event instance", correlation.ProcessInstanceId)
	}
	start := modelFacade.GetFlowNodeById(first.FlowNodeId)
	if start == nil {
		return newValidationErrorf("start event %s of process instance %s is not part of the model", first.FlowNodeId, correlation.ProcessInstanceId)
	}
	token := tokenFromInstance(*first, identity)
	handler, err := engine.handlers.create(start, modelFacade, token)
	if err != nil {
		return err
	}
	return handler.Resume(ctx, *first, instances, tokenFacade, modelFacade, identity)
}

// endEventWatch keeps the message of the last end event an instance reaches.
type endEventWatch struct {
	aggregator messaging.EventAggregator
	sub        *messaging.Subscription

	mu      sync.Mutex
	last    messaging.Message
	reached bool
}

// watchEndEvents subscribes to the end events of an instance. Call it before
// driving the instance so no end event is missed.
func (engine *Engine) watchEndEvents(processInstanceId string) *endEventWatch {
	w := &endEventWatch{aggregator: engine.aggregator}
	w.sub = engine.aggregator.Subscribe(messaging.EndEventReachedTopic(processInstanceId), func(msg messaging.Message) {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.last = msg
		w.reached = true
	})
	return w
}

func (w *endEventWatch) stop() {
	w.aggregator.Unsubscribe(w.sub)
}

func (w *endEventWatch) latest() (messaging.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.reached
}

// instanceResult is the payload of the end event that completed the run. An
// instance whose end events all finished before a restart falls back to the
// persisted end event instances.
func (engine *Engine) instanceResult(ctx context.Context, processInstanceId string, ends *endEventWatch, tokenFacade *runtime.TokenFacade) (any, error) {
	if msg, ok := ends.latest(); ok {
		return msg.Payload, nil
	}
	var fallback any
	if latest, ok := tokenFacade.GetLatestResult(); ok {
		fallback = latest.Result
	}
	return engine.nestedResult(ctx, processInstanceId, fallback)
}

// finalizeInstance records the outcome of one run of a process instance and
// unregisters it. A shutdown leaves the correlation running.
func (engine *Engine) finalizeInstance(correlation runtime.Correlation, runErr error, result any) {
	ctx := context.Background()
	pid := correlation.ProcessInstanceId
	defer engine.instances.unregister(pid)
	defer engine.metrics.ProcessesRunning.Add(ctx, -1)

	msg := messaging.Message{
		CorrelationId:     correlation.CorrelationId,
		ProcessModelId:    correlation.ProcessModelId,
		ProcessInstanceId: pid,
		Payload:           result,
		Identity:          correlation.Identity,
	}
	var err error
	switch {
	case runErr == nil:
		err = engine.correlations.FinishProcessInstanceInCorrelation(ctx, pid)
		engine.metrics.ProcessesEnded.Add(ctx, 1)
		engine.aggregator.Publish(messaging.ProcessInstanceFinishedTopic(pid), msg)
		engine.exportProcessInstanceEvent(correlation.ProcessModelId, pid, correlation.CorrelationId, exporter.ProcessFinished, result, nil)
	case isShutdown(runErr):
		engine.logger.Info("process instance stopped", "processInstanceId", pid)
		return
	case isTermination(runErr):
		err = engine.correlations.TerminateProcessInstanceInCorrelation(ctx, pid, runErr)
		engine.metrics.ProcessesTerminated.Add(ctx, 1)
		engine.exportProcessInstanceEvent(correlation.ProcessModelId, pid, correlation.CorrelationId, exporter.ProcessTerminated, nil, runErr)
	default:
		err = engine.correlations.FinishProcessInstanceInCorrelationWithError(ctx, pid, runErr)
		engine.metrics.ProcessesFailed.Add(ctx, 1)
		// stops the branches still running next to the failed one
		msg.Err = &ProcessInstanceError{ProcessInstanceId: pid, Err: runErr}
		engine.aggregator.Publish(messaging.ProcessInstanceErrorTopic(pid), msg)
		engine.exportProcessInstanceEvent(correlation.ProcessModelId, pid, correlation.CorrelationId, exporter.ProcessError, nil, runErr)
		engine.logger.Warn("process instance failed", "processInstanceId", pid, "err", runErr)
	}
	if err != nil {
		engine.logger.Error("failed to finalize process instance", "processInstanceId", pid, "err", err)
	}
}
