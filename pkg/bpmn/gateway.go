package bpmn

import (
	"context"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
)

// GATEWAY_EXECUTOR ==============================================

// gatewayExecutor runs split gateways and exclusive joins. Joins of the
// other kinds go through joinHandler.
type gatewayExecutor struct {
	gateway bpmn20.GatewayElement
}

func (e *gatewayExecutor) executeHandler(ctx context.Context, exec *execution) ([]nextStep, error) {
	next, err := nextGatewayFlowNodes(ctx, exec, e.gateway)
	if err != nil {
		return nil, err
	}
	return exec.complete(ctx, exec.token.Payload, next)
}

func (e *gatewayExecutor) nextFlowNodes(ctx context.Context, exec *execution) ([]bpmn20.FlowNode, error) {
	return nextGatewayFlowNodes(ctx, exec, e.gateway)
}

// nextGatewayFlowNodes applies the split rule of the gateway kind to its
// outgoing flows.
func nextGatewayFlowNodes(ctx context.Context, exec *execution, gateway bpmn20.GatewayElement) ([]bpmn20.FlowNode, error) {
	flows := exec.modelFacade.GetOutgoingSequenceFlows(gateway.GetId())
	if gateway.IsParallel() {
		return exec.modelFacade.GetTargetFlowNodes(flows), nil
	}
	scope := expressionScope(exec.tokenFacade, exec.identity)
	var (
		selected []*bpmn20.TSequenceFlow
		err      error
	)
	switch {
	case gateway.IsExclusive():
		selected, err = exclusivelyFilterByConditionExpression(ctx, exec.engine.expressions, flows, gateway.GetDefaultFlowId(), scope)
	default:
		selected, err = inclusivelyFilterByConditionExpression(ctx, exec.engine.expressions, gateway.GetId(), flows, gateway.GetDefaultFlowId(), scope)
	}
	if err != nil {
		return nil, err
	}
	return exec.modelFacade.GetTargetFlowNodes(selected), nil
}
