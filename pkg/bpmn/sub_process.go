package bpmn

import (
	"context"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

type subProcessBehavior struct {
	subProcess *bpmn20.TSubProcess
}

func (b *subProcessBehavior) execute(ctx context.Context, exec *execution) (any, error) {
	return exec.engine.runNested(ctx, exec, nestedTarget{
		modelFacade:      exec.modelFacade.GetSubProcessModelFacade(b.subProcess),
		processModelId:   exec.token.ProcessModelId,
		processModelHash: exec.engine.processModelHash(ctx, exec.token.ProcessInstanceId),
	})
}

type callActivityBehavior struct {
	callActivity *bpmn20.TCallActivity
}

func (b *callActivityBehavior) execute(ctx context.Context, exec *execution) (any, error) {
	calledId := b.callActivity.GetCalledProcessId()
	if calledId == "" {
		return nil, newValidationErrorf("call activity %s has no called element", b.callActivity.Id)
	}
	target := nestedTarget{processModelId: calledId}
	// a resumed call keeps the deployment it was started with
	if existing, err := exec.engine.correlations.GetByParentFlowNodeInstanceId(ctx, exec.token.ProcessInstanceId, exec.instance.Id); err != nil {
		return nil, err
	} else if existing != nil {
		target.processModelHash = existing.ProcessModelHash
	}
	definition, err := exec.engine.findDefinition(ctx, calledId, target.processModelHash)
	if err != nil {
		return nil, err
	}
	modelFacade := exec.engine.modelFacade(definition)
	if !modelFacade.IsExecutable() {
		return nil, newValidationErrorf("called process %s is not executable", calledId)
	}
	target.modelFacade = modelFacade
	target.processModelHash = definition.Hash
	return exec.engine.runNested(ctx, exec, target)
}

type nestedTarget struct {
	modelFacade      *bpmn20.ProcessModelFacade
	processModelId   string
	processModelHash string
}

// processModelHash returns the deployment hash of a running instance, empty
// when the correlation cannot be read.
func (engine *Engine) processModelHash(ctx context.Context, processInstanceId string) string {
	correlation, err := engine.correlations.GetByProcessInstanceId(ctx, processInstanceId)
	if err != nil {
		return ""
	}
	return correlation.ProcessModelHash
}

// runNested starts, resumes or reads back the nested instance belonging to
// the activity instance of exec. The nested end event payload is the result.
func (engine *Engine) runNested(ctx context.Context, exec *execution, target nestedTarget) (any, error) {
	correlation, err := engine.correlations.GetByParentFlowNodeInstanceId(ctx, exec.token.ProcessInstanceId, exec.instance.Id)
	if err != nil {
		return nil, err
	}
	if correlation != nil {
		switch correlation.State {
		case runtime.CorrelationFinished:
			return engine.nestedResult(ctx, correlation.ProcessInstanceId, exec.token.Payload)
		case runtime.CorrelationError, runtime.CorrelationTerminated:
			return nil, fromFlowNodeFailure(correlation.ProcessInstanceId, correlation.Error)
		}
	} else {
		start, err := selectStartEvent(target.modelFacade, "")
		if err != nil {
			return nil, err
		}
		correlation = &runtime.Correlation{
			ProcessInstanceId:        generateInstanceId(),
			CorrelationId:            exec.token.CorrelationId,
			ProcessModelId:           target.processModelId,
			ProcessModelHash:         target.processModelHash,
			Identity:                 exec.identity,
			ParentProcessInstanceId:  exec.token.ProcessInstanceId,
			ParentFlowNodeInstanceId: exec.instance.Id,
			StartEventId:             start.Id,
			StartPayload:             runtime.DeepCopy(exec.token.Payload),
		}
		if err := engine.correlations.CreateEntry(ctx, *correlation); err != nil {
			return nil, err
		}
		engine.metrics.ProcessesStarted.Add(ctx, 1)
	}

	pid := correlation.ProcessInstanceId
	nestedCtx, err := engine.instances.register(ctx, pid)
	if err != nil {
		return nil, err
	}
	engine.metrics.ProcessesRunning.Add(ctx, 1)
	ends := engine.watchEndEvents(pid)

	tokenFacade := runtime.NewTokenFacade(pid, target.processModelId, correlation.CorrelationId, exec.identity)
	tokenFacade.ImportResults(exec.tokenFacade.GetAllResults())
	runErr := engine.drive(nestedCtx, *correlation, target.modelFacade, tokenFacade, exec.identity)
	ends.stop()

	var result any
	if runErr == nil {
		if msg, ok := ends.latest(); ok {
			result = exec.resultOf(msg.Payload)
		} else {
			result, runErr = engine.nestedResult(ctx, pid, exec.token.Payload)
		}
	}
	engine.finalizeInstance(*correlation, runErr, result)
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

// nestedResult reads the payload of the last end event a finished instance
// reached, fallback when there is none.
func (engine *Engine) nestedResult(ctx context.Context, processInstanceId string, fallback any) (any, error) {
	instances, err := engine.flowNodes.QueryByProcessInstance(ctx, processInstanceId)
	if err != nil {
		return nil, err
	}
	var last *runtime.FlowNodeInstance
	for i := range instances {
		instance := &instances[i]
		if instance.FlowNodeType != string(bpmn20.ElementTypeEndEvent) || instance.State != runtime.FlowNodeFinished {
			continue
		}
		if last == nil || instance.UpdatedAt.After(last.UpdatedAt) {
			last = instance
		}
	}
	if last == nil {
		return fallback, nil
	}
	if onExit := last.GetToken(runtime.TokenOnExit); onExit != nil && onExit.Payload != nil {
		return runtime.DeepCopy(onExit.Payload), nil
	}
	return fallback, nil
}

// selectStartEvent returns the start event with the given id. Without an id
// the container must have exactly one start event that is not a timer cycle.
func selectStartEvent(modelFacade *bpmn20.ProcessModelFacade, startEventId string) (*bpmn20.TStartEvent, error) {
	if startEventId != "" {
		start := modelFacade.GetStartEventById(startEventId)
		if start == nil {
			return nil, newValidationErrorf("process %s has no start event %s", modelFacade.ProcessId(), startEventId)
		}
		return start, nil
	}
	var candidates []*bpmn20.TStartEvent
	for _, start := range modelFacade.GetStartEvents() {
		if !start.HasCyclicTimer() {
			candidates = append(candidates, start)
		}
	}
	if len(candidates) != 1 {
		return nil, newValidationErrorf("process %s needs a start event id, found %d start events", modelFacade.ProcessId(), len(candidates))
	}
	return candidates[0], nil
}
