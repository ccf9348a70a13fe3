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
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	otelPkg "github.com/pbinitiative/zenflow/pkg/otel"
)

// FlowNodeHandler executes one flow node and everything reachable from it.
// Execute and Resume return once the reachable sub-graph has finished or
// with the error that ended it.
type FlowNodeHandler interface {
	Execute(ctx context.Context, token *runtime.ProcessToken, tokenFacade *runtime.TokenFacade, modelFacade *bpmn20.ProcessModelFacade, identity runtime.Identity, previousFlowNodeInstanceId string) error
	Resume(ctx context.Context, instance runtime.FlowNodeInstance, allInstances []runtime.FlowNodeInstance, tokenFacade *runtime.TokenFacade, modelFacade *bpmn20.ProcessModelFacade, identity runtime.Identity) error
	FlowNode() bpmn20.FlowNode
	FlowNodeInstanceId() string
}

// nextStep is a flow node to continue with. resumeInstance is set when a
// persisted instance of the flow node already lists the current instance as
// predecessor.
type nextStep struct {
	flowNode       bpmn20.FlowNode
	resumeInstance *runtime.FlowNodeInstance
}

// flowNodeExecutor is the kind-specific part of a handler. executeHandler
// runs after onEnter has been persisted.
type flowNodeExecutor interface {
	executeHandler(ctx context.Context, exec *execution) ([]nextStep, error)
}

type suspendContinuer interface {
	continueAfterSuspend(ctx context.Context, exec *execution) ([]nextStep, error)
}

type resumeContinuer interface {
	continueAfterResume(ctx context.Context, exec *execution, onResume runtime.FlowNodeToken) ([]nextStep, error)
}

type enterContinuer interface {
	continueAfterEnter(ctx context.Context, exec *execution) ([]nextStep, error)
}

// nextFlowNodesResolver routes a finished instance that has no recorded
// routing decision.
type nextFlowNodesResolver interface {
	nextFlowNodes(ctx context.Context, exec *execution) ([]bpmn20.FlowNode, error)
}

// execution is the state of one handler run.
type execution struct {
	engine       *Engine
	flowNode     bpmn20.FlowNode
	modelFacade  *bpmn20.ProcessModelFacade
	tokenFacade  *runtime.TokenFacade
	token        *runtime.ProcessToken
	identity     runtime.Identity
	instance     *runtime.FlowNodeInstance
	allInstances []runtime.FlowNodeInstance

	spawned sync.WaitGroup
	failed  chan error
}

func newExecution(engine *Engine, flowNode bpmn20.FlowNode, token *runtime.ProcessToken, tokenFacade *runtime.TokenFacade, modelFacade *bpmn20.ProcessModelFacade, identity runtime.Identity) *execution {
	return &execution{
		engine:      engine,
		flowNode:    flowNode,
		modelFacade: modelFacade,
		tokenFacade: tokenFacade,
		token:       token,
		identity:    identity,
		failed:      make(chan error, 1),
	}
}

// resuming reports whether the run replays a persisted instance.
func (exec *execution) resuming() bool {
	return exec.allInstances != nil
}

// spawn runs fn as an extra branch of this execution.
func (exec *execution) spawn(fn func() error) {
	exec.spawned.Add(1)
	go func() {
		defer exec.spawned.Done()
		if err := fn(); err != nil {
			select {
			case exec.failed <- err:
			default:
			}
		}
	}()
}

// awaitSpawned returns the first error of a spawned branch as soon as it
// arrives, nil once every branch has finished.
func (exec *execution) awaitSpawned() error {
	done := make(chan struct{})
	go func() {
		exec.spawned.Wait()
		close(done)
	}()
	select {
	case err := <-exec.failed:
		return err
	case <-done:
		select {
		case err := <-exec.failed:
			return err
		default:
			return nil
		}
	}
}

// complete records result as the outcome of the instance and persists onExit
// with next as the routing decision.
func (exec *execution) complete(ctx context.Context, result any, next []bpmn20.FlowNode) ([]nextStep, error) {
	exec.token.Payload = result
	exec.tokenFacade.AddResultForFlowNode(exec.flowNode.GetId(), exec.instance.Id, result)
	nextIds := make([]string, 0, len(next))
	for _, node := range next {
		nextIds = append(nextIds, node.GetId())
	}
	if err := exec.engine.flowNodes.PersistOnExit(ctx, exec.instance, result, nextIds); err != nil {
		return nil, err
	}
	exec.engine.exportElementEvent(exec.token, exec.flowNode, exec.instance.Id, exporter.ElementCompleted)
	return exec.resolveSteps(next), nil
}

// resolveSteps pairs next nodes with persisted instances that already continue
// from this instance.
func (exec *execution) resolveSteps(next []bpmn20.FlowNode) []nextStep {
	steps := make([]nextStep, 0, len(next))
	for _, node := range next {
		step := nextStep{flowNode: node}
		for i := range exec.allInstances {
			candidate := exec.allInstances[i]
			if candidate.FlowNodeId == node.GetId() && candidate.HasPredecessor(exec.instance.Id) {
				step.resumeInstance = &candidate
				break
			}
		}
		steps = append(steps, step)
	}
	return steps
}

// successors returns the persisted instances that list this instance as predecessor.
func (exec *execution) successors(flowNodeType bpmn20.ElementType) []runtime.FlowNodeInstance {
	var found []runtime.FlowNodeInstance
	for _, candidate := range exec.allInstances {
		if candidate.FlowNodeType == string(flowNodeType) && candidate.HasPredecessor(exec.instance.Id) {
			found = append(found, candidate)
		}
	}
	return found
}

func flowNodeTemplate(flowNode bpmn20.FlowNode, modelFacade *bpmn20.ProcessModelFacade, token *runtime.ProcessToken) runtime.FlowNodeInstance {
	return runtime.FlowNodeInstance{
		FlowNodeId:        flowNode.GetId(),
		FlowNodeType:      string(flowNode.GetType()),
		FlowNodeLane:      modelFacade.GetLaneForFlowNode(flowNode.GetId()),
		CorrelationId:     token.CorrelationId,
		ProcessModelId:    token.ProcessModelId,
		ProcessInstanceId: token.ProcessInstanceId,
	}
}

// flowNodeHandler is the lifecycle shared by every flow node kind.
type flowNodeHandler struct {
	engine   *Engine
	flowNode bpmn20.FlowNode
	executor flowNodeExecutor

	mu         sync.Mutex
	instanceId string
}

func newFlowNodeHandler(engine *Engine, flowNode bpmn20.FlowNode, executor flowNodeExecutor) *flowNodeHandler {
	return &flowNodeHandler{engine: engine, flowNode: flowNode, executor: executor}
}

func (h *flowNodeHandler) FlowNode() bpmn20.FlowNode {
	return h.flowNode
}

func (h *flowNodeHandler) FlowNodeInstanceId() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instanceId
}

func (h *flowNodeHandler) setInstanceId(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.instanceId = id
}

func (h *flowNodeHandler) Execute(ctx context.Context, token *runtime.ProcessToken, tokenFacade *runtime.TokenFacade, modelFacade *bpmn20.ProcessModelFacade, identity runtime.Identity, previousFlowNodeInstanceId string) (err error) {
	ctx, span := h.startSpan(ctx, token)
	defer func() { endSpan(span, err) }()

	exec := newExecution(h.engine, h.flowNode, token, tokenFacade, modelFacade, identity)
	var previous []string
	if previousFlowNodeInstanceId != "" {
		previous = []string{previousFlowNodeInstanceId}
	}
	instance, err := h.engine.flowNodes.PersistOnEnter(ctx, flowNodeTemplate(h.flowNode, modelFacade, token), token.Payload, previous)
	if err != nil {
		return err
	}
	exec.instance = instance
	h.setInstanceId(instance.Id)
	span.SetAttributes(attribute.String(otelPkg.AttributeFlowNodeInstanceId, instance.Id))
	h.engine.metrics.FlowNodesExecuted.Add(ctx, 1, metric.WithAttributes(attribute.String(otelPkg.AttributeElementType, string(h.flowNode.GetType()))))
	h.engine.exportElementEvent(token, h.flowNode, instance.Id, exporter.ElementActivated)

	if err := h.checkLane(ctx, exec); err != nil {
		return h.handleError(ctx, exec, err)
	}
	steps, err := h.executor.executeHandler(ctx, exec)
	return h.finish(ctx, exec, steps, err)
}

func (h *flowNodeHandler) Resume(ctx context.Context, instance runtime.FlowNodeInstance, allInstances []runtime.FlowNodeInstance, tokenFacade *runtime.TokenFacade, modelFacade *bpmn20.ProcessModelFacade, identity runtime.Identity) (err error) {
	token := tokenFromInstance(instance, identity)
	ctx, span := h.startSpan(ctx, token)
	defer func() { endSpan(span, err) }()

	exec := newExecution(h.engine, h.flowNode, token, tokenFacade, modelFacade, identity)
	exec.instance = &instance
	exec.allInstances = allInstances
	if exec.allInstances == nil {
		exec.allInstances = []runtime.FlowNodeInstance{}
	}
	h.setInstanceId(instance.Id)
	span.SetAttributes(attribute.String(otelPkg.AttributeFlowNodeInstanceId, instance.Id))

	h.resumeNonInterruptingBoundaries(ctx, exec)
	steps, err := h.resumeFromState(ctx, exec)
	return h.finish(ctx, exec, steps, err)
}

// tokenFromInstance rebuilds the token a handler entered with.
func tokenFromInstance(instance runtime.FlowNodeInstance, identity runtime.Identity) *runtime.ProcessToken {
	var payload any
	if onEnter := instance.GetToken(runtime.TokenOnEnter); onEnter != nil {
		payload = runtime.DeepCopy(onEnter.Payload)
	}
	return &runtime.ProcessToken{
		Payload:           payload,
		Identity:          identity,
		CorrelationId:     instance.CorrelationId,
		ProcessInstanceId: instance.ProcessInstanceId,
		ProcessModelId:    instance.ProcessModelId,
		CurrentLane:       instance.FlowNodeLane,
	}
}

func (h *flowNodeHandler) resumeFromState(ctx context.Context, exec *execution) ([]nextStep, error) {
	instance := exec.instance
	switch instance.State {
	case runtime.FlowNodeFinished:
		var result any
		if onExit := instance.GetToken(runtime.TokenOnExit); onExit != nil {
			result = runtime.DeepCopy(onExit.Payload)
		}
		exec.token.Payload = result
		exec.tokenFacade.AddResultForFlowNode(h.flowNode.GetId(), instance.Id, result)
		next, err := h.recordedNextFlowNodes(ctx, exec)
		if err != nil {
			return nil, err
		}
		return exec.resolveSteps(next), nil
	case runtime.FlowNodeSuspended:
		if c, ok := h.executor.(suspendContinuer); ok {
			return c.continueAfterSuspend(ctx, exec)
		}
	case runtime.FlowNodeRunning:
		if onResume := instance.GetToken(runtime.TokenOnResume); onResume != nil {
			if c, ok := h.executor.(resumeContinuer); ok {
				return c.continueAfterResume(ctx, exec, *onResume)
			}
		}
		if c, ok := h.executor.(enterContinuer); ok {
			return c.continueAfterEnter(ctx, exec)
		}
	case runtime.FlowNodeError:
		for _, boundary := range exec.successors(bpmn20.ElementTypeBoundaryEvent) {
			node := exec.modelFacade.GetFlowNodeById(boundary.FlowNodeId)
			if b, ok := node.(*bpmn20.TBoundaryEvent); ok && b.IsInterrupting() {
				return []nextStep{{flowNode: node, resumeInstance: &boundary}}, nil
			}
		}
		return nil, fromFlowNodeFailure(instance.ProcessInstanceId, instance.Error)
	case runtime.FlowNodeTerminated:
		reason := ""
		if instance.Error != nil {
			reason = instance.Error.Message
		}
		return nil, &TerminationError{ProcessInstanceId: instance.ProcessInstanceId, FlowNodeId: instance.FlowNodeId, Reason: reason}
	}
	return h.executor.executeHandler(ctx, exec)
}

func (h *flowNodeHandler) recordedNextFlowNodes(ctx context.Context, exec *execution) ([]bpmn20.FlowNode, error) {
	if len(exec.instance.NextFlowNodeIds) > 0 {
		next := make([]bpmn20.FlowNode, 0, len(exec.instance.NextFlowNodeIds))
		for _, id := range exec.instance.NextFlowNodeIds {
			node := exec.modelFacade.GetFlowNodeById(id)
			if node == nil {
				return nil, newValidationErrorf("recorded next flow node %s of %s is not part of the model", id, h.flowNode.GetId())
			}
			next = append(next, node)
		}
		return next, nil
	}
	if resolver, ok := h.executor.(nextFlowNodesResolver); ok {
		return resolver.nextFlowNodes(ctx, exec)
	}
	return exec.modelFacade.GetNextFlowNodes(h.flowNode), nil
}

// resumeNonInterruptingBoundaries continues boundary branches that were
// running next to the activity.
func (h *flowNodeHandler) resumeNonInterruptingBoundaries(ctx context.Context, exec *execution) {
	for _, boundary := range exec.successors(bpmn20.ElementTypeBoundaryEvent) {
		node, ok := exec.modelFacade.GetFlowNodeById(boundary.FlowNodeId).(*bpmn20.TBoundaryEvent)
		if !ok || node.IsInterrupting() {
			continue
		}
		facade := exec.tokenFacade.GetForkedTokenFacade()
		exec.spawn(func() error {
			handler, err := h.engine.handlers.create(node, exec.modelFacade, exec.token)
			if err != nil {
				return err
			}
			return handler.Resume(ctx, boundary, exec.allInstances, facade, exec.modelFacade, exec.identity)
		})
	}
}

func (h *flowNodeHandler) finish(ctx context.Context, exec *execution, steps []nextStep, err error) error {
	if err != nil {
		return h.handleError(ctx, exec, err)
	}
	exec.spawn(func() error {
		return h.engine.continueWith(ctx, exec, steps)
	})
	return exec.awaitSpawned()
}

// handleError persists the record matching the error and returns it. A
// shutdown leaves the instance as it is so it can be resumed.
func (h *flowNodeHandler) handleError(ctx context.Context, exec *execution, err error) error {
	if exec.instance == nil || isShutdown(err) {
		return err
	}
	persistCtx := context.WithoutCancel(ctx)
	var persistErr error
	if isTermination(err) {
		persistErr = h.engine.flowNodes.PersistOnTerminate(persistCtx, exec.instance, exec.token.Payload, err)
	} else {
		persistErr = h.engine.flowNodes.PersistOnError(persistCtx, exec.instance, exec.token.Payload, err, nil)
	}
	if persistErr != nil {
		h.engine.logger.Error("failed to persist flow node failure", "flowNodeId", h.flowNode.GetId(), "flowNodeInstanceId", exec.instance.Id, "err", persistErr)
		return errors.Join(err, persistErr)
	}
	return err
}

func (h *flowNodeHandler) checkLane(ctx context.Context, exec *execution) error {
	lane := exec.instance.FlowNodeLane
	if lane == "" || lane == exec.token.CurrentLane {
		return nil
	}
	if err := h.engine.claimChecker.EnsureHasClaim(ctx, exec.identity, lane); err != nil {
		return fmt.Errorf("failed to enter lane %s: %w", lane, err)
	}
	exec.token.CurrentLane = lane
	return nil
}

func (h *flowNodeHandler) startSpan(ctx context.Context, token *runtime.ProcessToken) (context.Context, trace.Span) {
	return h.engine.tracer.Start(ctx, fmt.Sprintf("flow-node:%s", h.flowNode.GetId()), trace.WithAttributes(
		attribute.String(otelPkg.AttributeElementId, h.flowNode.GetId()),
		attribute.String(otelPkg.AttributeElementName, h.flowNode.GetName()),
		attribute.String(otelPkg.AttributeElementType, string(h.flowNode.GetType())),
		attribute.String(otelPkg.AttributeProcessInstanceId, token.ProcessInstanceId),
		attribute.String(otelPkg.AttributeProcessModelId, token.ProcessModelId),
		attribute.String(otelPkg.AttributeCorrelationId, token.CorrelationId),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// continueWith runs the next steps. A single step continues on the same token
// and facade, several steps each get a cloned token and a forked facade and
// run concurrently. The first branch error is returned without waiting for
// the other branches.
func (engine *Engine) continueWith(ctx context.Context, exec *execution, steps []nextStep) error {
	switch len(steps) {
	case 0:
		return nil
	case 1:
		return engine.runStep(ctx, exec, steps[0], exec.token, exec.tokenFacade)
	}
	errs := make(chan error, len(steps))
	for _, step := range steps {
		token := exec.token.Clone()
		facade := exec.tokenFacade.GetForkedTokenFacade()
		go func() {
			errs <- engine.runStep(ctx, exec, step, token, facade)
		}()
	}
	for range steps {
		if err := <-errs; err != nil {
			return err
		}
	}
	return nil
}

func (engine *Engine) runStep(ctx context.Context, exec *execution, step nextStep, token *runtime.ProcessToken, tokenFacade *runtime.TokenFacade) error {
	handler, err := engine.handlers.create(step.flowNode, exec.modelFacade, token)
	if err != nil {
		return err
	}
	if join, ok := handler.(*joinHandler); ok {
		return join.arrive(ctx, joinArrival{
			predecessorInstanceId: exec.instance.Id,
			predecessorFlowNodeId: exec.flowNode.GetId(),
			token:                 token,
			tokenFacade:           tokenFacade,
			modelFacade:           exec.modelFacade,
			identity:              exec.identity,
			resumeInstance:        step.resumeInstance,
			allInstances:          exec.allInstances,
		})
	}
	if step.resumeInstance != nil {
		return handler.Resume(ctx, *step.resumeInstance, exec.allInstances, tokenFacade, exec.modelFacade, exec.identity)
	}
	return handler.Execute(ctx, token, tokenFacade, exec.modelFacade, exec.identity, exec.instance.Id)
}
