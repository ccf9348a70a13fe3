package bpmn

import (
	"context"
	"fmt"
	"sync"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

type joinKey struct {
	correlationId     string
	processInstanceId string
	gatewayId         string
}

// joinRegistry keeps one join handler per gateway and process instance.
type joinRegistry struct {
	mu    sync.Mutex
	joins map[joinKey]*joinHandler
}

func newJoinRegistry() *joinRegistry {
	return &joinRegistry{joins: map[joinKey]*joinHandler{}}
}

func (r *joinRegistry) get(key joinKey, create func() *joinHandler) *joinHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	if join, ok := r.joins[key]; ok {
		return join
	}
	join := create()
	r.joins[key] = join
	return join
}

// remove drops the entry only if it still belongs to join.
func (r *joinRegistry) remove(key joinKey, join *joinHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.joins[key] == join {
		delete(r.joins, key)
	}
}

func (r *joinRegistry) removeProcessInstance(processInstanceId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.joins {
		if key.processInstanceId == processInstanceId {
			delete(r.joins, key)
		}
	}
}

func (r *joinRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.joins)
}

// joinArrival is one branch reaching the join.
type joinArrival struct {
	predecessorInstanceId string
	predecessorFlowNodeId string
	token                 *runtime.ProcessToken
	tokenFacade           *runtime.TokenFacade
	modelFacade           *bpmn20.ProcessModelFacade
	identity              runtime.Identity
	resumeInstance        *runtime.FlowNodeInstance
	allInstances          []runtime.FlowNodeInstance
}

type arrivedBranch struct {
	flowNodeId string
	payload    any
}

// joinHandler is the barrier of a converging parallel, inclusive or complex
// gateway. Only the arrival that completes the barrier continues.
type joinHandler struct {
	engine  *Engine
	gateway bpmn20.GatewayElement
	key     joinKey

	mu       sync.Mutex
	instance *runtime.FlowNodeInstance
	arrivals map[string]arrivedBranch
	order    []string
	facade   *runtime.TokenFacade
	fired    bool
}

var _ FlowNodeHandler = &joinHandler{}

func newJoinHandler(engine *Engine, gateway bpmn20.GatewayElement, key joinKey) *joinHandler {
	return &joinHandler{
		engine:   engine,
		gateway:  gateway,
		key:      key,
		arrivals: map[string]arrivedBranch{},
	}
}

func (h *joinHandler) FlowNode() bpmn20.FlowNode {
	return h.gateway
}

func (h *joinHandler) FlowNodeInstanceId() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.instance == nil {
		return ""
	}
	return h.instance.Id
}

func (h *joinHandler) Execute(ctx context.Context, token *runtime.ProcessToken, tokenFacade *runtime.TokenFacade, modelFacade *bpmn20.ProcessModelFacade, identity runtime.Identity, previousFlowNodeInstanceId string) error {
	return h.arrive(ctx, joinArrival{
		predecessorInstanceId: previousFlowNodeInstanceId,
		token:                 token,
		tokenFacade:           tokenFacade,
		modelFacade:           modelFacade,
		identity:              identity,
	})
}

// Resume adopts a persisted join instance. Branches still have to arrive
// unless the join already fired.
func (h *joinHandler) Resume(ctx context.Context, instance runtime.FlowNodeInstance, allInstances []runtime.FlowNodeInstance, tokenFacade *runtime.TokenFacade, modelFacade *bpmn20.ProcessModelFacade, identity runtime.Identity) error {
	h.mu.Lock()
	if h.instance == nil {
		h.instance = &instance
	}
	finished := h.instance.State == runtime.FlowNodeFinished && !h.fired
	if finished {
		h.fired = true
	}
	h.mu.Unlock()
	if !finished {
		return nil
	}
	return h.replayFired(ctx, joinArrival{
		token:        tokenFromInstance(instance, identity),
		tokenFacade:  tokenFacade,
		modelFacade:  modelFacade,
		identity:     identity,
		allInstances: allInstances,
	})
}

func (h *joinHandler) arrive(ctx context.Context, arrival joinArrival) error {
	if err := h.adopt(ctx, arrival); err != nil {
		return err
	}
	unlock, err := h.engine.locks.Lock(ctx, h.instanceIdLocked())
	if err != nil {
		return context.Cause(ctx)
	}
	exec, steps, replay, err := h.record(ctx, arrival)
	unlock()
	if err != nil || (exec == nil && !replay) {
		return err
	}
	if replay {
		return h.replayFired(ctx, arrival)
	}
	if h.gateway.IsParallel() || h.gateway.IsInclusive() {
		h.engine.handlers.joins.remove(h.key, h)
	}
	return h.engine.continueWith(ctx, exec, steps)
}

func (h *joinHandler) instanceIdLocked() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instance.Id
}

// adopt binds the handler to the join instance: the one being resumed, a
// running one from storage or a new one persisted by the first arrival.
func (h *joinHandler) adopt(ctx context.Context, arrival joinArrival) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.instance != nil {
		return nil
	}
	if arrival.resumeInstance != nil {
		instance := *arrival.resumeInstance
		h.instance = &instance
		return nil
	}
	instances, err := h.engine.flowNodes.QueryByProcessInstance(ctx, h.key.processInstanceId)
	if err != nil {
		return fmt.Errorf("failed to look up join %s: %w", h.gateway.GetId(), err)
	}
	for i := len(instances) - 1; i >= 0; i-- {
		if instances[i].FlowNodeId == h.gateway.GetId() && instances[i].State == runtime.FlowNodeRunning {
			instance := instances[i]
			h.instance = &instance
			return nil
		}
	}
	var previous []string
	if arrival.predecessorInstanceId != "" {
		previous = []string{arrival.predecessorInstanceId}
	}
	instance, err := h.engine.flowNodes.PersistOnEnter(ctx, flowNodeTemplate(h.gateway, arrival.modelFacade, arrival.token), arrival.token.Payload, previous)
	if err != nil {
		return err
	}
	h.instance = instance
	h.engine.exportElementEvent(arrival.token, h.gateway, instance.Id, exporter.ElementActivated)
	return nil
}

// record registers the arrival under the join lock. It returns the execution
// to continue with when this arrival completes the barrier, replay when the
// adopted instance had already fired.
func (h *joinHandler) record(ctx context.Context, arrival joinArrival) (*execution, []nextStep, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.arrivals[arrival.predecessorInstanceId] = arrivedBranch{flowNodeId: arrival.predecessorFlowNodeId, payload: arrival.token.Payload}
	h.order = append(h.order, arrival.predecessorInstanceId)
	if h.facade == nil {
		h.facade = arrival.tokenFacade.GetForkedTokenFacade()
	} else {
		h.facade.MergeTokenHistory(arrival.tokenFacade)
	}

	if h.instance.State == runtime.FlowNodeFinished {
		if h.fired || len(h.arrivals) < len(h.instance.PreviousFlowNodeInstanceIds) {
			return nil, nil, false, nil
		}
		h.fired = true
		return nil, nil, true, nil
	}

	if arrival.predecessorInstanceId != "" && !h.instance.HasPredecessor(arrival.predecessorInstanceId) {
		h.instance.PreviousFlowNodeInstanceIds = append(h.instance.PreviousFlowNodeInstanceIds, arrival.predecessorInstanceId)
		if err := h.engine.flowNodes.PersistPredecessors(ctx, h.instance); err != nil {
			return nil, nil, false, err
		}
	}
	stored, err := h.engine.persistence.FindFlowNodeInstanceById(ctx, h.instance.Id)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to read back join %s: %w", h.gateway.GetId(), err)
	}
	h.instance = &stored

	if h.fired {
		return nil, nil, false, nil
	}
	ready, err := h.ready(ctx, arrival)
	if err != nil || !ready {
		return nil, nil, false, err
	}
	h.fired = true

	payload := make(map[string]any, len(h.arrivals))
	for _, id := range h.order {
		branch := h.arrivals[id]
		payload[branch.flowNodeId] = branch.payload
	}
	token := h.facade.CreateProcessToken(nil)
	token.Identity = arrival.identity
	token.CurrentLane = arrival.token.CurrentLane
	exec := newExecution(h.engine, h.gateway, token, h.facade, arrival.modelFacade, arrival.identity)
	exec.instance = h.instance
	next, err := nextGatewayFlowNodes(ctx, exec, h.gateway)
	if err != nil {
		persistErr := h.engine.flowNodes.PersistOnError(context.WithoutCancel(ctx), h.instance, payload, err, nil)
		if persistErr != nil {
			h.engine.logger.Error("failed to persist join failure", "gatewayId", h.gateway.GetId(), "err", persistErr)
		}
		return nil, nil, false, err
	}
	steps, err := exec.complete(ctx, payload, next)
	if err != nil {
		return nil, nil, false, err
	}
	return exec, steps, false, nil
}

// ready reports whether every expected branch has arrived in this run.
func (h *joinHandler) ready(ctx context.Context, arrival joinArrival) (bool, error) {
	arrived := len(h.arrivals)
	incoming := len(arrival.modelFacade.GetIncomingSequenceFlows(h.gateway.GetId()))
	switch gateway := h.gateway.(type) {
	case *bpmn20.TInclusiveGateway:
		return arrived >= h.expectedInclusive(ctx, arrival, incoming), nil
	case *bpmn20.TComplexGateway:
		condition := gateway.ActivationCondition.GetText()
		if condition == "" {
			return arrived >= incoming, nil
		}
		scope := expressionScope(h.facade, arrival.identity)
		scope["activationCount"] = arrived
		ok, err := h.engine.expressions.evaluateCondition(ctx, condition, scope)
		if err != nil {
			return false, &ExpressionEvaluationError{Msg: fmt.Sprintf("failed to evaluate activation condition of %s", gateway.Id), Err: err}
		}
		return ok, nil
	}
	return arrived >= incoming, nil
}

// expectedInclusive returns how many branches the most recent inclusive split
// in the arriving history activated.
func (h *joinHandler) expectedInclusive(ctx context.Context, arrival joinArrival, incoming int) int {
	results := arrival.tokenFacade.GetAllResults()
	for i := len(results) - 1; i >= 0; i-- {
		node, ok := arrival.modelFacade.GetFlowNodeById(results[i].FlowNodeId).(*bpmn20.TInclusiveGateway)
		if !ok || node.Id == h.gateway.GetId() || len(arrival.modelFacade.GetOutgoingSequenceFlows(node.Id)) < 2 {
			continue
		}
		split, err := h.engine.persistence.FindFlowNodeInstanceById(ctx, results[i].FlowNodeInstanceId)
		if err != nil || len(split.NextFlowNodeIds) == 0 {
			break
		}
		return len(split.NextFlowNodeIds)
	}
	return incoming
}

// replayFired continues a join that fired before the engine stopped.
func (h *joinHandler) replayFired(ctx context.Context, arrival joinArrival) error {
	h.mu.Lock()
	instance := *h.instance
	facade := h.facade
	h.mu.Unlock()
	if facade == nil {
		facade = arrival.tokenFacade
	}
	var payload any
	if onExit := instance.GetToken(runtime.TokenOnExit); onExit != nil {
		payload = runtime.DeepCopy(onExit.Payload)
	}
	token := facade.CreateProcessToken(payload)
	token.Identity = arrival.identity
	token.CurrentLane = arrival.token.CurrentLane
	exec := newExecution(h.engine, h.gateway, token, facade, arrival.modelFacade, arrival.identity)
	exec.instance = &instance
	exec.allInstances = arrival.allInstances
	facade.AddResultForFlowNode(h.gateway.GetId(), instance.Id, payload)

	next := make([]bpmn20.FlowNode, 0, len(instance.NextFlowNodeIds))
	for _, id := range instance.NextFlowNodeIds {
		if node := arrival.modelFacade.GetFlowNodeById(id); node != nil {
			next = append(next, node)
		}
	}
	if h.gateway.IsParallel() || h.gateway.IsInclusive() {
		h.engine.handlers.joins.remove(h.key, h)
	}
	return h.engine.continueWith(ctx, exec, exec.resolveSteps(next))
}
