package bpmn

import (
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// handlerFactory creates the handler of a flow node. Joins are memoized per
// process instance so every arriving branch meets the same barrier.
type handlerFactory struct {
	engine *Engine
	joins  *joinRegistry
}

func newHandlerFactory(engine *Engine) *handlerFactory {
	return &handlerFactory{engine: engine, joins: newJoinRegistry()}
}

func (f *handlerFactory) create(flowNode bpmn20.FlowNode, modelFacade *bpmn20.ProcessModelFacade, token *runtime.ProcessToken) (FlowNodeHandler, error) {
	engine := f.engine
	switch node := flowNode.(type) {
	case *bpmn20.TStartEvent:
		return newFlowNodeHandler(engine, node, &startEventExecutor{event: node}), nil
	case *bpmn20.TEndEvent:
		return newFlowNodeHandler(engine, node, &endEventExecutor{event: node}), nil
	case *bpmn20.TIntermediateCatchEvent:
		return newFlowNodeHandler(engine, node, &intermediateCatchEventExecutor{event: node}), nil
	case *bpmn20.TIntermediateThrowEvent:
		return newFlowNodeHandler(engine, node, &intermediateThrowEventExecutor{event: node}), nil
	case *bpmn20.TBoundaryEvent:
		return newFlowNodeHandler(engine, node, &boundaryEventExecutor{event: node}), nil
	case *bpmn20.TUserTask:
		return f.activity(node, &waitingTaskBehavior{kind: waitingUserTask, userTask: node}), nil
	case *bpmn20.TManualTask:
		return f.activity(node, &waitingTaskBehavior{kind: waitingManualTask}), nil
	case *bpmn20.TTask:
		return f.activity(node, &waitingTaskBehavior{kind: waitingEmptyActivity}), nil
	case *bpmn20.TScriptTask:
		return f.activity(node, &scriptTaskBehavior{task: node}), nil
	case *bpmn20.TServiceTask:
		return f.activity(node, &serviceTaskBehavior{task: node}), nil
	case *bpmn20.TSendTask:
		return f.activity(node, &sendTaskBehavior{task: node}), nil
	case *bpmn20.TReceiveTask:
		return f.activity(node, &receiveTaskBehavior{task: node}), nil
	case *bpmn20.TSubProcess:
		return f.activity(node, &subProcessBehavior{subProcess: node}), nil
	case *bpmn20.TCallActivity:
		return f.activity(node, &callActivityBehavior{callActivity: node}), nil
	case *bpmn20.TExclusiveGateway:
		return newFlowNodeHandler(engine, node, &gatewayExecutor{gateway: node}), nil
	case *bpmn20.TParallelGateway:
		return f.gateway(node, modelFacade, token), nil
	case *bpmn20.TInclusiveGateway:
		return f.gateway(node, modelFacade, token), nil
	case *bpmn20.TComplexGateway:
		return f.gateway(node, modelFacade, token), nil
	}
	return nil, newValidationErrorf("unsupported flow node %s of type %s", flowNode.GetId(), flowNode.GetType())
}

func (f *handlerFactory) activity(node bpmn20.Activity, behavior activityBehavior) FlowNodeHandler {
	return newFlowNodeHandler(f.engine, node, &activityExecutor{activity: node, behavior: behavior})
}

// gateway returns the shared join handler when the gateway has more than one
// incoming flow, a split otherwise.
func (f *handlerFactory) gateway(node bpmn20.GatewayElement, modelFacade *bpmn20.ProcessModelFacade, token *runtime.ProcessToken) FlowNodeHandler {
	if len(modelFacade.GetIncomingSequenceFlows(node.GetId())) > 1 {
		key := joinKey{
			correlationId:     token.CorrelationId,
			processInstanceId: token.ProcessInstanceId,
			gatewayId:         node.GetId(),
		}
		return f.joins.get(key, func() *joinHandler {
			return newJoinHandler(f.engine, node, key)
		})
	}
	return newFlowNodeHandler(f.engine, node, &gatewayExecutor{gateway: node})
}
