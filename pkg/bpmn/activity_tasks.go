package bpmn

import (
	"context"
	"strings"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
)

type waitingTaskKind int

const (
	waitingUserTask waitingTaskKind = iota
	waitingManualTask
	waitingEmptyActivity
)

// waitingTaskBehavior suspends until the matching Finish* call of the engine
// publishes the finish topic of the instance.
type waitingTaskBehavior struct {
	kind     waitingTaskKind
	userTask *bpmn20.TUserTask
}

func (b *waitingTaskBehavior) topic(exec *execution) string {
	cid, pid, fni := exec.token.CorrelationId, exec.token.ProcessInstanceId, exec.instance.Id
	switch b.kind {
	case waitingUserTask:
		return messaging.UserTaskFinishedTopic(cid, pid, fni)
	case waitingManualTask:
		return messaging.ManualTaskFinishedTopic(cid, pid, fni)
	default:
		return messaging.EmptyActivityFinishedTopic(cid, pid, fni)
	}
}

func (b *waitingTaskBehavior) intents() (reached, finished exporter.Intent, ok bool) {
	switch b.kind {
	case waitingUserTask:
		return exporter.UserTaskReached, exporter.UserTaskFinished, true
	case waitingManualTask:
		return exporter.ManualTaskReached, exporter.ManualTaskFinished, true
	}
	return "", "", false
}

func (b *waitingTaskBehavior) execute(ctx context.Context, exec *execution) (any, error) {
	topic := b.topic(exec)
	reached, finished, exported := b.intents()
	ch, sub := messaging.AwaitOnce(exec.engine.aggregator, topic)
	msg, err := exec.suspendAndAwait(ctx, ch, sub, func() {
		if exported {
			exec.engine.exportElementEvent(exec.token, exec.flowNode, exec.instance.Id, reached)
		}
		if b.kind == waitingUserTask {
			b.dispatch(ctx, exec, topic)
		}
	})
	if err != nil {
		return nil, err
	}
	if exported {
		exec.engine.exportElementEvent(exec.token, exec.flowNode, exec.instance.Id, finished)
	}
	return exec.resultOf(msg.Payload), nil
}

// dispatch hands the user task to a registered assignee or candidate group
// handler. Its outcome is published like an API finish.
func (b *waitingTaskBehavior) dispatch(ctx context.Context, exec *execution, topic string) {
	handler := exec.engine.findTaskHandler(b.userTask)
	if handler == nil {
		return
	}
	job := newActivatedJob(exec)
	go handler(job)
	go func() {
		select {
		case outcome := <-job.outcome:
			exec.engine.aggregator.Publish(topic, messaging.Message{
				CorrelationId:      exec.token.CorrelationId,
				ProcessModelId:     exec.token.ProcessModelId,
				ProcessInstanceId:  exec.token.ProcessInstanceId,
				FlowNodeId:         exec.flowNode.GetId(),
				FlowNodeInstanceId: exec.instance.Id,
				Payload:            outcome.result,
				Identity:           exec.identity,
				Err:                outcome.err,
			})
		case <-ctx.Done():
		}
	}()
}

type scriptTaskBehavior struct {
	task *bpmn20.TScriptTask
}

func (b *scriptTaskBehavior) execute(ctx context.Context, exec *execution) (any, error) {
	switch strings.ToLower(strings.TrimSpace(b.task.ScriptFormat)) {
	case "", "javascript", "js", "text/javascript", "application/javascript":
	default:
		return nil, newValidationErrorf("script task %s: unsupported script format %q", b.task.Id, b.task.ScriptFormat)
	}
	result, ok, err := exec.engine.jsRuntime.RunScript(ctx, b.task.Script, map[string]any{
		"token":    exec.tokenFacade.GetOldTokenFormat(),
		"identity": identityScope(exec.identity),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return exec.token.Payload, nil
	}
	return result, nil
}

type serviceTaskBehavior struct {
	task *bpmn20.TServiceTask
}

func (b *serviceTaskBehavior) execute(ctx context.Context, exec *execution) (any, error) {
	if handler := exec.engine.findTaskHandler(b.task); handler != nil {
		job := newActivatedJob(exec)
		go handler(job)
		select {
		case outcome := <-job.outcome:
			if outcome.err != nil {
				return nil, outcome.err
			}
			return exec.resultOf(outcome.result), nil
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
	topic := b.task.GetTaskType()
	if topic == "" {
		return nil, newValidationErrorf("service task %s has neither a task handler nor a task type", b.task.Id)
	}
	return exec.engine.externalTasks.run(ctx, exec, topic)
}

type sendTaskBehavior struct {
	task *bpmn20.TSendTask
}

func (b *sendTaskBehavior) execute(ctx context.Context, exec *execution) (any, error) {
	return b.await(ctx, exec, true)
}

// resumeSuspended waits for the ack only, the message was already sent.
func (b *sendTaskBehavior) resumeSuspended(ctx context.Context, exec *execution) (any, error) {
	return b.await(ctx, exec, false)
}

func (b *sendTaskBehavior) await(ctx context.Context, exec *execution, send bool) (any, error) {
	name := exec.modelFacade.GetMessageName(b.task.MessageRef)
	ch, sub := messaging.AwaitOnce(exec.engine.aggregator, messaging.MessageAckTopic(name))
	msg, err := exec.suspendAndAwait(ctx, ch, sub, func() {
		if send {
			exec.engine.aggregator.Publish(messaging.MessageTopic(name), exec.message(exec.token.Payload))
		}
	})
	if err != nil {
		return nil, err
	}
	return exec.resultOf(msg.Payload), nil
}

type receiveTaskBehavior struct {
	task *bpmn20.TReceiveTask
}

func (b *receiveTaskBehavior) execute(ctx context.Context, exec *execution) (any, error) {
	name := exec.modelFacade.GetMessageName(b.task.MessageRef)
	ch, sub := messaging.AwaitOnce(exec.engine.aggregator, messaging.MessageTopic(name))
	msg, err := exec.suspendAndAwait(ctx, ch, sub, nil)
	if err != nil {
		return nil, err
	}
	exec.engine.aggregator.Publish(messaging.MessageAckTopic(name), exec.message(msg.Payload))
	return exec.resultOf(msg.Payload), nil
}

// message addresses payload from the current flow node instance.
func (exec *execution) message(payload any) messaging.Message {
	return messaging.Message{
		CorrelationId:      exec.token.CorrelationId,
		ProcessModelId:     exec.token.ProcessModelId,
		ProcessInstanceId:  exec.token.ProcessInstanceId,
		FlowNodeId:         exec.flowNode.GetId(),
		FlowNodeInstanceId: exec.instance.Id,
		Payload:            payload,
		Identity:           exec.identity,
	}
}
