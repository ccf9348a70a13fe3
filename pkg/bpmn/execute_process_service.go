// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	otelPkg "github.com/pbinitiative/zenflow/pkg/otel"
)

type StartRequest struct {
	ProcessModelId string
	// StartEventId may be empty when the process has a single start event.
	StartEventId  string
	CorrelationId string
	Payload       any
	Identity      runtime.Identity
}

type StartResult struct {
	CorrelationId     string
	ProcessInstanceId string
	ProcessModelId    string
}

type EndEventReachedMessage struct {
	CorrelationId     string
	ProcessInstanceId string
	ProcessModelId    string
	EndEventId        string
	Payload           any
}

// ExecuteProcessService starts new process instances.
type ExecuteProcessService struct {
	engine *Engine
}

func newExecuteProcessService(engine *Engine) *ExecuteProcessService {
	return &ExecuteProcessService{engine: engine}
}

type preparedInstance struct {
	ctx         context.Context
	correlation runtime.Correlation
	modelFacade *bpmn20.ProcessModelFacade
}

func (p preparedInstance) result() StartResult {
	return StartResult{
		CorrelationId:     p.correlation.CorrelationId,
		ProcessInstanceId: p.correlation.ProcessInstanceId,
		ProcessModelId:    p.correlation.ProcessModelId,
	}
}

// Start creates a process instance of the latest deployment and runs it in the
// background.
func (s *ExecuteProcessService) Start(ctx context.Context, request StartRequest) (StartResult, error) {
	prepared, err := s.prepare(ctx, request, nil)
	if err != nil {
		return StartResult{}, err
	}
	go s.run(prepared)
	return prepared.result(), nil
}

// StartAndAwaitEndEvent starts a process instance and returns once any of its
// end events is reached.
func (s *ExecuteProcessService) StartAndAwaitEndEvent(ctx context.Context, request StartRequest) (EndEventReachedMessage, error) {
	return s.startAndAwait(ctx, request, "")
}

// StartAndAwaitSpecificEndEvent starts a process instance and returns once the
// end event endEventId is reached.
func (s *ExecuteProcessService) StartAndAwaitSpecificEndEvent(ctx context.Context, request StartRequest, endEventId string) (EndEventReachedMessage, error) {
	if endEventId == "" {
		return EndEventReachedMessage{}, newValidationErrorf("end event id must not be empty")
	}
	return s.startAndAwait(ctx, request, endEventId)
}

func (s *ExecuteProcessService) startAndAwait(ctx context.Context, request StartRequest, endEventId string) (EndEventReachedMessage, error) {
	prepared, err := s.prepare(ctx, request, func(modelFacade *bpmn20.ProcessModelFacade) error {
		if endEventId != "" && modelFacade.GetEndEventById(endEventId) == nil {
			return newValidationErrorf("process %s has no end event %s", request.ProcessModelId, endEventId)
		}
		return nil
	})
	if err != nil {
		return EndEventReachedMessage{}, err
	}
	pid := prepared.correlation.ProcessInstanceId
	topic := messaging.EndEventReachedTopic(pid)
	if endEventId != "" {
		topic = messaging.EndEventReachedByIdTopic(pid, endEventId)
	}
	endCh, sub := messaging.AwaitOnce(s.engine.aggregator, topic)
	defer s.engine.aggregator.Unsubscribe(sub)

	done := make(chan error, 1)
	go func() {
		done <- s.run(prepared)
	}()
	select {
	case msg := <-endCh:
		return endEventReached(msg), nil
	case err := <-done:
		select {
		case msg := <-endCh:
			return endEventReached(msg), nil
		default:
		}
		if err != nil {
			return EndEventReachedMessage{}, err
		}
		return EndEventReachedMessage{}, newEngineErrorf("process instance %s finished without reaching the awaited end event", pid)
	case <-ctx.Done():
		return EndEventReachedMessage{}, context.Cause(ctx)
	}
}

func endEventReached(msg messaging.Message) EndEventReachedMessage {
	return EndEventReachedMessage{
		CorrelationId:     msg.CorrelationId,
		ProcessInstanceId: msg.ProcessInstanceId,
		ProcessModelId:    msg.ProcessModelId,
		EndEventId:        msg.FlowNodeId,
		Payload:           msg.Payload,
	}
}

// prepare validates the request, persists the correlation and registers the
// instance. The instance context outlives ctx but keeps its span.
func (s *ExecuteProcessService) prepare(ctx context.Context, request StartRequest, validate func(*bpmn20.ProcessModelFacade) error) (preparedInstance, error) {
	definition, err := s.engine.findDefinition(ctx, request.ProcessModelId, "")
	if err != nil {
		return preparedInstance{}, err
	}
	modelFacade := s.engine.modelFacade(definition)
	if !modelFacade.IsExecutable() {
		return preparedInstance{}, newValidationErrorf("process %s is not executable", request.ProcessModelId)
	}
	start, err := selectStartEvent(modelFacade, request.StartEventId)
	if err != nil {
		return preparedInstance{}, err
	}
	if validate != nil {
		if err := validate(modelFacade); err != nil {
			return preparedInstance{}, err
		}
	}
	correlationId := request.CorrelationId
	if correlationId == "" {
		correlationId = generateInstanceId()
	}
	correlation := runtime.Correlation{
		ProcessInstanceId: generateInstanceId(),
		CorrelationId:     correlationId,
		ProcessModelId:    definition.ProcessModelId,
		ProcessModelHash:  definition.Hash,
		Identity:          request.Identity,
		StartEventId:      start.Id,
		StartPayload:      runtime.DeepCopy(request.Payload),
	}
	if err := s.engine.correlations.CreateEntry(ctx, correlation); err != nil {
		return preparedInstance{}, fmt.Errorf("failed to create process instance of %s: %w", request.ProcessModelId, err)
	}
	instanceCtx, err := s.engine.instances.register(trace.ContextWithSpan(s.engine.ctx, trace.SpanFromContext(ctx)), correlation.ProcessInstanceId)
	if err != nil {
		return preparedInstance{}, err
	}
	s.engine.metrics.ProcessesStarted.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeProcessModelId, definition.ProcessModelId)))
	s.engine.metrics.ProcessesRunning.Add(ctx, 1)
	s.engine.exportProcessInstanceEvent(definition.ProcessModelId, correlation.ProcessInstanceId, correlationId, exporter.ProcessStarted, request.Payload, nil)
	s.engine.logger.Debug("process instance started", "processModelId", definition.ProcessModelId, "processInstanceId", correlation.ProcessInstanceId, "correlationId", correlationId)
	return preparedInstance{ctx: instanceCtx, correlation: correlation, modelFacade: modelFacade}, nil
}

func (s *ExecuteProcessService) run(prepared preparedInstance) error {
	correlation := prepared.correlation
	tokenFacade := runtime.NewTokenFacade(correlation.ProcessInstanceId, correlation.ProcessModelId, correlation.CorrelationId, correlation.Identity)
	ends := s.engine.watchEndEvents(correlation.ProcessInstanceId)
	err := s.engine.drive(prepared.ctx, correlation, prepared.modelFacade, tokenFacade, correlation.Identity)
	ends.stop()
	var result any
	if err == nil {
		result, err = s.engine.instanceResult(context.Background(), correlation.ProcessInstanceId, ends, tokenFacade)
	}
	s.engine.finalizeInstance(correlation, err, result)
	return err
}
