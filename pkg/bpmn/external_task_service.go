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
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

// ExternalTaskService stores the work of external service tasks and is the
// API workers fetch, lock and finish it through.
type ExternalTaskService struct {
	engine *Engine
	now    func() time.Time

	// serializes read-modify-write cycles on tasks
	mu sync.Mutex
}

func newExternalTaskService(engine *Engine) *ExternalTaskService {
	return &ExternalTaskService{
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// run is the engine side of an external service task. A task finished while
// the engine was down completes without waiting.
func (s *ExternalTaskService) run(ctx context.Context, exec *execution, topic string) (any, error) {
	ch, sub := messaging.AwaitOnce(s.engine.aggregator, messaging.ExternalTaskFinishedTopic(exec.instance.Id))
	defer s.engine.aggregator.Unsubscribe(sub)

	task, err := s.findOrCreate(ctx, exec, topic)
	if err != nil {
		return nil, err
	}
	if task.State == runtime.ExternalTaskFinished {
		return taskOutcome(task, exec.token.Payload)
	}
	msg, err := exec.suspendAndAwait(ctx, ch, sub, nil)
	if err != nil {
		if ctx.Err() != nil && !isShutdown(err) {
			if finishErr := s.FinishWithError(context.WithoutCancel(ctx), task.Id, err); finishErr != nil {
				s.engine.logger.Error("failed to finish external task", "externalTaskId", task.Id, "err", finishErr)
			}
		}
		return nil, err
	}
	return exec.resultOf(msg.Payload), nil
}

func (s *ExternalTaskService) findOrCreate(ctx context.Context, exec *execution, topic string) (runtime.ExternalTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.GetByInstanceIds(ctx, exec.instance.Id)
	if err != nil {
		return runtime.ExternalTask{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}
	task := runtime.ExternalTask{
		Id:                 s.engine.generateId(),
		Topic:              topic,
		FlowNodeInstanceId: exec.instance.Id,
		CorrelationId:      exec.token.CorrelationId,
		ProcessModelId:     exec.token.ProcessModelId,
		ProcessInstanceId:  exec.token.ProcessInstanceId,
		Payload:            runtime.DeepCopy(exec.token.Payload),
		State:              runtime.ExternalTaskPending,
		CreatedAt:          s.now(),
	}
	if err := s.Create(ctx, task); err != nil {
		return runtime.ExternalTask{}, err
	}
	return task, nil
}

// taskOutcome turns a finished task back into a result or an error.
func taskOutcome(task runtime.ExternalTask, fallback any) (any, error) {
	if task.Error != nil {
		return nil, fromFlowNodeFailure(task.ProcessInstanceId, task.Error)
	}
	if task.Result != nil {
		return runtime.DeepCopy(task.Result), nil
	}
	return fallback, nil
}

func (s *ExternalTaskService) Create(ctx context.Context, task runtime.ExternalTask) error {
	if err := s.engine.persistence.SaveExternalTask(ctx, task); err != nil {
		return fmt.Errorf("failed to create external task for flow node instance %s: %w", task.FlowNodeInstanceId, err)
	}
	s.engine.metrics.ExternalTasksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", task.Topic)))
	return nil
}

func (s *ExternalTaskService) GetByInstanceIds(ctx context.Context, flowNodeInstanceIds ...string) ([]runtime.ExternalTask, error) {
	tasks, err := s.engine.persistence.FindExternalTasksByFlowNodeInstanceIds(ctx, flowNodeInstanceIds...)
	if err != nil {
		return nil, fmt.Errorf("failed to find external tasks: %w", err)
	}
	return tasks, nil
}

func (s *ExternalTaskService) GetById(ctx context.Context, taskId string) (runtime.ExternalTask, error) {
	task, err := s.engine.persistence.FindExternalTaskById(ctx, taskId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return runtime.ExternalTask{}, errors.Join(newValidationErrorf("external task %s does not exist", taskId), err)
		}
		return runtime.ExternalTask{}, fmt.Errorf("failed to find external task %s: %w", taskId, err)
	}
	return task, nil
}

// FinishWithError marks the task finished without telling a waiting handler.
// It is used when the handler itself stopped waiting.
func (s *ExternalTaskService) FinishWithError(ctx context.Context, taskId string, reason error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.GetById(ctx, taskId)
	if err != nil {
		return err
	}
	if task.State == runtime.ExternalTaskFinished {
		return nil
	}
	return s.save(ctx, s.finished(task, nil, reason))
}

// FetchAndLockExternalTasks locks up to maxTasks pending tasks of topic to
// workerId, oldest first. Tasks locked by another worker are skipped.
func (s *ExternalTaskService) FetchAndLockExternalTasks(ctx context.Context, workerId, topic string, maxTasks int, lockDuration time.Duration) (locked []runtime.ExternalTask, retErr error) {
	ctx, span := s.startSpan(ctx, "external-task:fetch-and-lock", attribute.String("topic", topic), attribute.String("workerId", workerId))
	defer func() { endSpan(span, retErr) }()
	if workerId == "" {
		return nil, newValidationErrorf("worker id must not be empty")
	}
	if maxTasks <= 0 || lockDuration <= 0 {
		return nil, newValidationErrorf("maxTasks and lockDuration must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pending, err := s.engine.persistence.FindExternalTasksByTopic(ctx, topic, runtime.ExternalTaskPending)
	if err != nil {
		return nil, fmt.Errorf("failed to find external tasks of topic %s: %w", topic, err)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	now := s.now()
	expiry := now.Add(lockDuration)
	for _, task := range pending {
		if len(locked) == maxTasks {
			break
		}
		if task.IsLockedAt(now) {
			continue
		}
		task.WorkerId = workerId
		task.LockExpirationTime = &expiry
		if err := s.save(ctx, task); err != nil {
			return locked, err
		}
		locked = append(locked, task)
	}
	return locked, nil
}

// ExtendLock moves the lock expiration of a task the worker holds.
func (s *ExternalTaskService) ExtendLock(ctx context.Context, workerId, taskId string, lockDuration time.Duration) error {
	if lockDuration <= 0 {
		return newValidationErrorf("lockDuration must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.owned(ctx, workerId, taskId)
	if err != nil {
		return err
	}
	expiry := s.now().Add(lockDuration)
	task.LockExpirationTime = &expiry
	return s.save(ctx, task)
}

// FinishExternalTask completes the task with result and wakes the waiting
// service task.
func (s *ExternalTaskService) FinishExternalTask(ctx context.Context, workerId, taskId string, result any) (retErr error) {
	ctx, span := s.startSpan(ctx, "external-task:finish", attribute.String("externalTaskId", taskId), attribute.String("workerId", workerId))
	defer func() { endSpan(span, retErr) }()
	return s.finishOwned(ctx, workerId, taskId, result, nil)
}

// HandleBpmnError finishes the task with a business error that error
// boundary events of the service task can catch.
func (s *ExternalTaskService) HandleBpmnError(ctx context.Context, workerId, taskId, errorCode, message string) (retErr error) {
	ctx, span := s.startSpan(ctx, "external-task:bpmn-error", attribute.String("workerId", workerId), attribute.String("errorCode", errorCode))
	defer func() { endSpan(span, retErr) }()
	return s.finishOwned(ctx, workerId, taskId, nil, &BpmnError{Code: errorCode, Message: message})
}

// HandleServiceError finishes the task with a technical failure.
func (s *ExternalTaskService) HandleServiceError(ctx context.Context, workerId, taskId, message string) (retErr error) {
	ctx, span := s.startSpan(ctx, "external-task:service-error", attribute.String("workerId", workerId))
	defer func() { endSpan(span, retErr) }()
	return s.finishOwned(ctx, workerId, taskId, nil, newEngineErrorf("%s", message))
}

func (s *ExternalTaskService) finishOwned(ctx context.Context, workerId, taskId string, result any, reason error) error {
	s.mu.Lock()
	task, err := s.owned(ctx, workerId, taskId)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	task = s.finished(task, result, reason)
	err = s.save(ctx, task)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.engine.metrics.ExternalTasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", task.Topic), attribute.Bool("failed", reason != nil)))
	s.engine.aggregator.Publish(messaging.ExternalTaskFinishedTopic(task.FlowNodeInstanceId), messaging.Message{
		CorrelationId:      task.CorrelationId,
		ProcessModelId:     task.ProcessModelId,
		ProcessInstanceId:  task.ProcessInstanceId,
		FlowNodeInstanceId: task.FlowNodeInstanceId,
		Payload:            task.Result,
		Err:                reason,
	})
	return nil
}

// owned returns a pending task whose lock belongs to workerId.
func (s *ExternalTaskService) owned(ctx context.Context, workerId, taskId string) (runtime.ExternalTask, error) {
	task, err := s.GetById(ctx, taskId)
	if err != nil {
		return runtime.ExternalTask{}, err
	}
	if task.State == runtime.ExternalTaskFinished {
		return runtime.ExternalTask{}, newValidationErrorf("external task %s is already finished", taskId)
	}
	if task.WorkerId != workerId || !task.IsLockedAt(s.now()) {
		return runtime.ExternalTask{}, newValidationErrorf("external task %s is not locked by worker %s", taskId, workerId)
	}
	return task, nil
}

func (s *ExternalTaskService) finished(task runtime.ExternalTask, result any, reason error) runtime.ExternalTask {
	finishedAt := s.now()
	task.State = runtime.ExternalTaskFinished
	task.FinishedAt = &finishedAt
	task.Result = runtime.DeepCopy(result)
	task.Error = toFlowNodeFailure(reason)
	task.LockExpirationTime = nil
	return task
}

func (s *ExternalTaskService) save(ctx context.Context, task runtime.ExternalTask) error {
	if err := s.engine.persistence.SaveExternalTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save external task %s: %w", task.Id, err)
	}
	return nil
}

func (s *ExternalTaskService) startSpan(ctx context.Context, name string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.engine.tracer.Start(ctx, name, trace.WithAttributes(attributes...))
}
