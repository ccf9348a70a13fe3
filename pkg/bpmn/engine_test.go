package bpmn

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/pbinitiative/zenflow/pkg/storage/inmemory"
)

const awaitTimeout = 5 * time.Second

func newTestEngine(t *testing.T, store storage.Storage, options ...EngineOption) *Engine {
	t.Helper()
	if store == nil {
		store = inmemory.NewStorage()
	}
	engine, err := NewEngine(append([]EngineOption{EngineWithStorage(store)}, options...)...)
	require.NoError(t, err)
	t.Cleanup(engine.Stop)
	return engine
}

func deploy(t *testing.T, engine *Engine, file string) *runtime.ProcessDefinition {
	t.Helper()
	definition, err := engine.LoadFromFile(t.Context(), "./test-cases/"+file)
	require.NoError(t, err)
	return definition
}

func start(t *testing.T, engine *Engine, processModelId string, payload any) StartResult {
	t.Helper()
	started, err := engine.ExecuteProcess().Start(t.Context(), StartRequest{ProcessModelId: processModelId, Payload: payload})
	require.NoError(t, err)
	return started
}

func awaitCorrelationState(t *testing.T, engine *Engine, processInstanceId string, state runtime.CorrelationState) runtime.Correlation {
	t.Helper()
	var correlation runtime.Correlation
	require.Eventually(t, func() bool {
		var err error
		correlation, err = engine.GetCorrelation(t.Context(), processInstanceId)
		return err == nil && correlation.State == state && !engine.instances.isRunning(processInstanceId)
	}, awaitTimeout, 10*time.Millisecond, "process instance %s never became %s", processInstanceId, state)
	return correlation
}

func awaitSuspended(t *testing.T, engine *Engine, processInstanceId, flowNodeId string) runtime.FlowNodeInstance {
	t.Helper()
	var found runtime.FlowNodeInstance
	require.Eventually(t, func() bool {
		for _, instance := range instancesOf(t, engine, processInstanceId, flowNodeId) {
			if instance.State == runtime.FlowNodeSuspended {
				found = instance
				return true
			}
		}
		return false
	}, awaitTimeout, 10*time.Millisecond, "flow node %s never suspended", flowNodeId)
	return found
}

func instancesOf(t *testing.T, engine *Engine, processInstanceId, flowNodeId string) []runtime.FlowNodeInstance {
	t.Helper()
	all, err := engine.GetFlowNodeInstances(t.Context(), processInstanceId)
	require.NoError(t, err)
	var matching []runtime.FlowNodeInstance
	for _, instance := range all {
		if instance.FlowNodeId == flowNodeId {
			matching = append(matching, instance)
		}
	}
	return matching
}

func exitPayload(t *testing.T, instance runtime.FlowNodeInstance) map[string]any {
	t.Helper()
	onExit := instance.GetToken(runtime.TokenOnExit)
	require.NotNil(t, onExit, "instance %s has no onExit token", instance.FlowNodeId)
	payload, ok := onExit.Payload.(map[string]any)
	require.True(t, ok, "payload of %s is %T", instance.FlowNodeId, onExit.Payload)
	return payload
}

func Test_script_task_result_reaches_end_event(t *testing.T) {
	engine := newTestEngine(t, nil)

	// given
	deploy(t, engine, "simple-script.bpmn")

	// when
	reached, err := engine.ExecuteProcess().StartAndAwaitEndEvent(t.Context(), StartRequest{
		ProcessModelId: "simple-script",
		Payload:        map[string]any{"amount": 21},
	})

	// then
	require.NoError(t, err)
	assert.Equal(t, "end", reached.EndEventId)
	payload, ok := reached.Payload.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 42, payload["amount"])
	awaitCorrelationState(t, engine, reached.ProcessInstanceId, runtime.CorrelationFinished)
}

func Test_exclusive_gateway_routes_by_condition_and_default(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "exclusive-gateway.bpmn")

	for price, expectedEnd := range map[int]string{150: "high", 50: "low"} {
		// when
		reached, err := engine.ExecuteProcess().StartAndAwaitEndEvent(t.Context(), StartRequest{
			ProcessModelId: "exclusive-gateway",
			Payload:        map[string]any{"price": price},
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, expectedEnd, reached.EndEventId, "price %d", price)
		decide := instancesOf(t, engine, reached.ProcessInstanceId, "decide")
		require.Len(t, decide, 1)
		assert.Equal(t, []string{expectedEnd}, decide[0].NextFlowNodeIds)
	}
}

func Test_specific_end_event_must_exist_before_instance_is_created(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "exclusive-gateway.bpmn")

	// when
	_, err := engine.ExecuteProcess().StartAndAwaitSpecificEndEvent(t.Context(), StartRequest{
		ProcessModelId: "exclusive-gateway",
		CorrelationId:  "no-such-end",
	}, "missing")

	// then
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	correlations, err := engine.GetCorrelationsByCorrelationId(t.Context(), "no-such-end")
	require.NoError(t, err)
	assert.Empty(t, correlations)
}

func Test_start_of_unknown_process_fails_validation(t *testing.T) {
	engine := newTestEngine(t, nil)

	// when
	_, err := engine.ExecuteProcess().Start(t.Context(), StartRequest{ProcessModelId: "unknown"})

	// then
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func Test_parallel_join_fires_exactly_once(t *testing.T) {
	for _, branches := range []int{2, 3, 5} {
		t.Run(fmt.Sprintf("%d branches", branches), func(t *testing.T) {
			engine := newTestEngine(t, nil)
			processModelId := fmt.Sprintf("parallel-join-%d", branches)
			deploy(t, engine, processModelId+".bpmn")

			for i := 0; i < 100; i++ {
				// when
				reached, err := engine.ExecuteProcess().StartAndAwaitEndEvent(t.Context(), StartRequest{ProcessModelId: processModelId})
				require.NoError(t, err)
				awaitCorrelationState(t, engine, reached.ProcessInstanceId, runtime.CorrelationFinished)

				// then
				joins := instancesOf(t, engine, reached.ProcessInstanceId, "join")
				require.Len(t, joins, 1)
				assert.Len(t, joins[0].PreviousFlowNodeInstanceIds, branches)
				assert.Len(t, instancesOf(t, engine, reached.ProcessInstanceId, "end"), 1)
			}
			assert.Eventually(t, func() bool { return engine.handlers.joins.len() == 0 }, awaitTimeout, 10*time.Millisecond)
		})
	}
}

func Test_terminate_process_instance_stops_waiting_user_task(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "user-task.bpmn")
	started := start(t, engine, "user-task", nil)
	awaitSuspended(t, engine, started.ProcessInstanceId, "approve")

	// when
	err := engine.TerminateProcessInstance(t.Context(), started.ProcessInstanceId, "no longer needed")

	// then
	require.NoError(t, err)
	awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationTerminated)
	approve := instancesOf(t, engine, started.ProcessInstanceId, "approve")
	require.Len(t, approve, 1)
	assert.Equal(t, runtime.FlowNodeTerminated, approve[0].State)
	assert.Error(t, engine.TerminateProcessInstance(t.Context(), started.ProcessInstanceId, "again"))
}

func Test_terminate_end_event_ends_other_branches(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "terminate-end-event.bpmn")

	// when
	started := start(t, engine, "terminate-end-event", nil)

	// then
	awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationTerminated)
	assert.Eventually(t, func() bool {
		all, err := engine.GetFlowNodeInstances(t.Context(), started.ProcessInstanceId)
		if err != nil {
			return false
		}
		for _, instance := range all {
			if instance.IsActive() {
				return false
			}
		}
		return true
	}, awaitTimeout, 10*time.Millisecond)
	kill := instancesOf(t, engine, started.ProcessInstanceId, "kill")
	require.Len(t, kill, 1)
	assert.Equal(t, runtime.FlowNodeTerminated, kill[0].State)
}

func Test_user_task_is_finished_through_the_api(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "user-task.bpmn")
	started := start(t, engine, "user-task", map[string]any{"document": "contract"})
	awaitSuspended(t, engine, started.ProcessInstanceId, "approve")

	// when
	suspended, err := engine.GetSuspendedFlowNodeInstances(t.Context(), "user-task")
	require.NoError(t, err)
	require.Len(t, suspended, 1)
	task := suspended[0]
	err = engine.FinishUserTask(t.Context(), task.CorrelationId, task.ProcessInstanceId, task.Id, map[string]any{"approved": true})

	// then
	require.NoError(t, err)
	awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationFinished)
	end := instancesOf(t, engine, started.ProcessInstanceId, "end")
	require.Len(t, end, 1)
	assert.Equal(t, true, exitPayload(t, end[0])["approved"])
	assert.Error(t, engine.FinishUserTask(t.Context(), task.CorrelationId, task.ProcessInstanceId, task.Id, nil))
}

func Test_user_task_handler_by_assignee_completes_task(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "user-task.bpmn")
	engine.NewTaskHandler().Assignee("alice").Handler(func(job ActivatedJob) {
		job.Complete(map[string]any{"approvedBy": "alice", "document": job.Variable("document")})
	})

	// when
	reached, err := engine.ExecuteProcess().StartAndAwaitEndEvent(t.Context(), StartRequest{
		ProcessModelId: "user-task",
		Payload:        map[string]any{"document": "contract"},
	})

	// then
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"approvedBy": "alice", "document": "contract"}, reached.Payload)
}

func Test_service_task_handlers_match_by_id_before_type(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "service-task.bpmn")
	var byTypeCalls atomic.Int32
	engine.NewTaskHandler().Id("by-id").Handler(func(job ActivatedJob) {
		job.Complete(map[string]any{"step": job.ElementId()})
	})
	engine.NewTaskHandler().Type("enrich").Handler(func(job ActivatedJob) {
		byTypeCalls.Add(1)
		job.Complete(map[string]any{"enriched": job.Variable("step")})
	})

	// when
	reached, err := engine.ExecuteProcess().StartAndAwaitEndEvent(t.Context(), StartRequest{ProcessModelId: "service-task"})

	// then
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"enriched": "by-id"}, reached.Payload)
	assert.EqualValues(t, 1, byTypeCalls.Load())
}

func Test_service_task_handler_error_fails_instance(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "service-task.bpmn")
	engine.NewTaskHandler().Id("by-id").Handler(func(job ActivatedJob) {
		job.Fail(fmt.Errorf("backend unavailable"))
	})

	// when
	started := start(t, engine, "service-task", nil)

	// then
	correlation := awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationError)
	require.NotNil(t, correlation.Error)
	assert.Contains(t, correlation.Error.Message, "backend unavailable")
	byId := instancesOf(t, engine, started.ProcessInstanceId, "by-id")
	require.Len(t, byId, 1)
	assert.Equal(t, runtime.FlowNodeError, byId[0].State)
}

func Test_external_task_is_fetched_locked_and_finished(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "external-task.bpmn")
	started := start(t, engine, "external-task", map[string]any{"card": "visa"})
	tasks := engine.ExternalTasks()

	// when
	var locked []runtime.ExternalTask
	require.Eventually(t, func() bool {
		var err error
		locked, err = tasks.FetchAndLockExternalTasks(t.Context(), "worker-1", "payments", 10, time.Minute)
		return err == nil && len(locked) == 1
	}, awaitTimeout, 10*time.Millisecond)
	other, err := tasks.FetchAndLockExternalTasks(t.Context(), "worker-2", "payments", 10, time.Minute)
	require.NoError(t, err)

	// then
	assert.Empty(t, other)
	assert.Equal(t, map[string]any{"card": "visa"}, locked[0].Payload)
	var validation *ValidationError
	assert.ErrorAs(t, tasks.FinishExternalTask(t.Context(), "worker-2", locked[0].Id, nil), &validation)

	require.NoError(t, tasks.FinishExternalTask(t.Context(), "worker-1", locked[0].Id, map[string]any{"charged": true}))
	awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationFinished)
	end := instancesOf(t, engine, started.ProcessInstanceId, "end")
	require.Len(t, end, 1)
	assert.Equal(t, true, exitPayload(t, end[0])["charged"])
}

func Test_external_task_bpmn_error_is_caught_by_boundary(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "external-task.bpmn")
	started := start(t, engine, "external-task", nil)
	tasks := engine.ExternalTasks()
	var locked []runtime.ExternalTask
	require.Eventually(t, func() bool {
		locked, _ = tasks.FetchAndLockExternalTasks(t.Context(), "worker-1", "payments", 1, time.Minute)
		return len(locked) == 1
	}, awaitTimeout, 10*time.Millisecond)

	// when
	err := tasks.HandleBpmnError(t.Context(), "worker-1", locked[0].Id, "DECLINED", "insufficient funds")

	// then
	require.NoError(t, err)
	awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationFinished)
	assert.Len(t, instancesOf(t, engine, started.ProcessInstanceId, "declined-end"), 1)
	assert.Empty(t, instancesOf(t, engine, started.ProcessInstanceId, "end"))
	charge := instancesOf(t, engine, started.ProcessInstanceId, "charge")
	require.Len(t, charge, 1)
	assert.Equal(t, runtime.FlowNodeError, charge[0].State)
	assert.Equal(t, []string{"declined"}, charge[0].NextFlowNodeIds)
}

func Test_external_task_finished_while_engine_was_down_completes_on_resume(t *testing.T) {
	store := inmemory.NewStorage()
	first := newTestEngine(t, store)
	deploy(t, first, "external-task.bpmn")
	started := start(t, first, "external-task", nil)
	var locked []runtime.ExternalTask
	require.Eventually(t, func() bool {
		locked, _ = first.ExternalTasks().FetchAndLockExternalTasks(t.Context(), "worker-1", "payments", 1, time.Minute)
		return len(locked) == 1
	}, awaitTimeout, 10*time.Millisecond)
	awaitSuspended(t, first, started.ProcessInstanceId, "charge")
	first.Stop()

	// given
	second := newTestEngine(t, store)
	require.NoError(t, second.ExternalTasks().FinishExternalTask(t.Context(), "worker-1", locked[0].Id, map[string]any{"charged": true}))

	// when
	err := second.ResumeProcess().ResumeProcessInstanceById(t.Context(), runtime.Identity{}, started.ProcessInstanceId)

	// then
	require.NoError(t, err)
	awaitCorrelationState(t, second, started.ProcessInstanceId, runtime.CorrelationFinished)
	end := instancesOf(t, second, started.ProcessInstanceId, "end")
	require.Len(t, end, 1)
	assert.Equal(t, true, exitPayload(t, end[0])["charged"])
}

func Test_resume_replays_history_without_repeating_finished_nodes(t *testing.T) {
	store := inmemory.NewStorage()
	first := newTestEngine(t, store)
	deploy(t, first, "crash-resume.bpmn")
	started := start(t, first, "crash-resume", map[string]any{"value": 1})
	awaitSuspended(t, first, started.ProcessInstanceId, "approve")
	first.Stop()

	correlation, err := first.GetCorrelation(t.Context(), started.ProcessInstanceId)
	require.NoError(t, err)
	require.Equal(t, runtime.CorrelationRunning, correlation.State)

	// given
	second := newTestEngine(t, store)
	resumed := make(chan error, 1)
	go func() {
		resumed <- second.ResumeProcess().ResumeProcessInstanceById(t.Context(), runtime.Identity{}, started.ProcessInstanceId)
	}()

	// when
	approve := awaitSuspended(t, second, started.ProcessInstanceId, "approve")
	require.Eventually(t, func() bool {
		return second.FinishUserTask(t.Context(), approve.CorrelationId, approve.ProcessInstanceId, approve.Id, nil) == nil
	}, awaitTimeout, 10*time.Millisecond)

	// then
	select {
	case err := <-resumed:
		require.NoError(t, err)
	case <-time.After(awaitTimeout):
		t.Fatal("resumed process instance did not finish")
	}
	awaitCorrelationState(t, second, started.ProcessInstanceId, runtime.CorrelationFinished)
	assert.Len(t, instancesOf(t, second, started.ProcessInstanceId, "count"), 1)
	assert.Len(t, instancesOf(t, second, started.ProcessInstanceId, "approve"), 1)
	end := instancesOf(t, second, started.ProcessInstanceId, "end")
	require.Len(t, end, 1)
	assert.EqualValues(t, 2, exitPayload(t, end[0])["counted"])
}

func Test_resume_rejects_instances_that_are_not_interrupted(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "user-task.bpmn")
	started := start(t, engine, "user-task", nil)
	awaitSuspended(t, engine, started.ProcessInstanceId, "approve")

	// when
	running := engine.ResumeProcess().ResumeProcessInstanceById(t.Context(), runtime.Identity{}, started.ProcessInstanceId)
	missing := engine.ResumeProcess().ResumeProcessInstanceById(t.Context(), runtime.Identity{}, "missing")

	// then
	var validation *ValidationError
	assert.ErrorAs(t, running, &validation)
	assert.ErrorAs(t, missing, &validation)
}

func Test_find_and_resume_interrupted_process_instances(t *testing.T) {
	store := inmemory.NewStorage()
	first := newTestEngine(t, store)
	deploy(t, first, "user-task.bpmn")
	started := start(t, first, "user-task", nil)
	awaitSuspended(t, first, started.ProcessInstanceId, "approve")
	first.Stop()

	// when
	second := newTestEngine(t, store)
	resumed, err := second.ResumeProcess().FindAndResumeInterruptedProcessInstances(t.Context(), runtime.Identity{})

	// then
	require.NoError(t, err)
	assert.Equal(t, []string{started.ProcessInstanceId}, resumed)
	approve := awaitSuspended(t, second, started.ProcessInstanceId, "approve")
	require.Eventually(t, func() bool {
		return second.FinishUserTask(t.Context(), approve.CorrelationId, approve.ProcessInstanceId, approve.Id, nil) == nil
	}, awaitTimeout, 10*time.Millisecond)
	awaitCorrelationState(t, second, started.ProcessInstanceId, runtime.CorrelationFinished)
}

func Test_message_boundary_interrupts_user_task(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "message-boundary.bpmn")
	started := start(t, engine, "message-boundary", nil)
	awaitSuspended(t, engine, started.ProcessInstanceId, "review")

	// when
	delivered := engine.TriggerMessageEvent(t.Context(), "cancel-review", map[string]any{"reason": "withdrawn"})

	// then
	assert.Equal(t, 1, delivered)
	awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationFinished)
	cancelled := instancesOf(t, engine, started.ProcessInstanceId, "cancelled")
	require.Len(t, cancelled, 1)
	assert.Equal(t, "withdrawn", exitPayload(t, cancelled[0])["reason"])
	assert.Empty(t, instancesOf(t, engine, started.ProcessInstanceId, "reviewed"))
	review := instancesOf(t, engine, started.ProcessInstanceId, "review")
	require.Len(t, review, 1)
	assert.Equal(t, []string{"cancel"}, review[0].NextFlowNodeIds)
}

func Test_non_interrupting_signal_boundary_runs_next_to_user_task(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "non-interrupting-signal-boundary.bpmn")
	started := start(t, engine, "non-interrupting-signal-boundary", nil)
	review := awaitSuspended(t, engine, started.ProcessInstanceId, "review")

	// when
	delivered := engine.TriggerSignalEvent(t.Context(), "remind", nil)
	require.Eventually(t, func() bool {
		return len(instancesOf(t, engine, started.ProcessInstanceId, "reminded")) == 1
	}, awaitTimeout, 10*time.Millisecond)
	require.NoError(t, engine.FinishUserTask(t.Context(), review.CorrelationId, review.ProcessInstanceId, review.Id, nil))

	// then
	assert.Equal(t, 1, delivered)
	awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationFinished)
	assert.Len(t, instancesOf(t, engine, started.ProcessInstanceId, "reviewed"), 1)
	assert.Len(t, instancesOf(t, engine, started.ProcessInstanceId, "notify"), 1)
}

func Test_timer_boundary_interrupts_user_task(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "timer-boundary.bpmn")

	// when
	reached, err := engine.ExecuteProcess().StartAndAwaitEndEvent(t.Context(), StartRequest{ProcessModelId: "timer-boundary"})

	// then
	require.NoError(t, err)
	assert.Equal(t, "timed-out", reached.EndEventId)
	assert.Zero(t, engine.timers.ActiveSubscriptions())
}

func Test_error_end_event_in_sub_process_is_caught_by_boundary(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "sub-process-error.bpmn")

	for amount, expectedEnd := range map[int]string{-5: "rejected-end", 5: "accepted"} {
		// when
		reached, err := engine.ExecuteProcess().StartAndAwaitEndEvent(t.Context(), StartRequest{
			ProcessModelId: "sub-process-error",
			Payload:        map[string]any{"amount": amount},
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, expectedEnd, reached.EndEventId, "amount %d", amount)
		correlations, err := engine.GetCorrelationsByCorrelationId(t.Context(), reached.CorrelationId)
		require.NoError(t, err)
		assert.Len(t, correlations, 2)
	}
}

func Test_call_activity_returns_called_process_result(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "simple-script.bpmn")
	deploy(t, engine, "call-activity-parent.bpmn")

	// when
	reached, err := engine.ExecuteProcess().StartAndAwaitEndEvent(t.Context(), StartRequest{
		ProcessModelId: "call-activity-parent",
		Payload:        map[string]any{"amount": 4},
	})

	// then
	require.NoError(t, err)
	payload, ok := reached.Payload.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 8, payload["amount"])
	awaitCorrelationState(t, engine, reached.ProcessInstanceId, runtime.CorrelationFinished)
	correlations, err := engine.GetCorrelationsByCorrelationId(t.Context(), reached.CorrelationId)
	require.NoError(t, err)
	require.Len(t, correlations, 2)
	for _, correlation := range correlations {
		assert.Equal(t, runtime.CorrelationFinished, correlation.State)
	}
}

func Test_link_throw_continues_at_catch_event(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "link-events.bpmn")

	// when
	reached, err := engine.ExecuteProcess().StartAndAwaitEndEvent(t.Context(), StartRequest{ProcessModelId: "link-events"})

	// then
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"linked": true}, reached.Payload)
	jump := instancesOf(t, engine, reached.ProcessInstanceId, "jump")
	require.Len(t, jump, 1)
	assert.Equal(t, []string{"landing"}, jump[0].NextFlowNodeIds)
}

func Test_intermediate_message_catch_resumes_with_message_payload(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "message-catch.bpmn")
	started := start(t, engine, "message-catch", nil)
	awaitSuspended(t, engine, started.ProcessInstanceId, "await-payment")

	// when
	delivered := engine.TriggerMessageEvent(t.Context(), "payment-received", map[string]any{"paid": true})

	// then
	assert.Equal(t, 1, delivered)
	awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationFinished)
	end := instancesOf(t, engine, started.ProcessInstanceId, "end")
	require.Len(t, end, 1)
	assert.Equal(t, true, exitPayload(t, end[0])["paid"])
}

func Test_cyclic_timer_start_event_starts_instances(t *testing.T) {
	engine := newTestEngine(t, nil)

	// when
	deploy(t, engine, "cronjob.bpmn")

	// then
	assert.Equal(t, []ScheduledCronjob{{ProcessModelId: "cronjob", StartEventId: "tick", Expression: "R2/PT1S"}}, engine.Cronjobs().Scheduled())
	var history []runtime.CronjobHistoryEntry
	require.Eventually(t, func() bool {
		var err error
		history, err = engine.Persistence().FindCronjobHistory(t.Context(), "cronjob")
		return err == nil && len(history) == 2
	}, awaitTimeout, 50*time.Millisecond)
	for _, entry := range history {
		assert.Empty(t, entry.Error)
		awaitCorrelationState(t, engine, entry.ProcessInstanceId, runtime.CorrelationFinished)
	}
}

func Test_disabled_cronjobs_are_not_scheduled(t *testing.T) {
	engine := newTestEngine(t, nil, EngineWithCronjobs(false))

	// when
	deploy(t, engine, "cronjob.bpmn")

	// then
	assert.Empty(t, engine.Cronjobs().Scheduled())
}

func Test_loading_same_source_twice_keeps_version(t *testing.T) {
	engine := newTestEngine(t, nil)

	// when
	first := deploy(t, engine, "simple-script.bpmn")
	again := deploy(t, engine, "simple-script.bpmn")
	changed := deploy(t, engine, "simple-script-v2.bpmn")

	// then
	assert.EqualValues(t, 1, first.Version)
	assert.Equal(t, first.Hash, again.Hash)
	assert.EqualValues(t, 1, again.Version)
	assert.EqualValues(t, 2, changed.Version)
	assert.NotEqual(t, first.Hash, changed.Hash)
	assert.Equal(t, "simple-script-v2.bpmn", changed.ResourceName)
	versions, err := engine.FindProcessesById(t.Context(), "simple-script")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func Test_loading_invalid_xml_fails(t *testing.T) {
	engine := newTestEngine(t, nil)

	// when
	_, err := engine.LoadFromBytes(t.Context(), []byte("<definitions"), "broken.bpmn")

	// then
	var unmarshalling *BpmnEngineUnmarshallingError
	assert.ErrorAs(t, err, &unmarshalling)
}

func Test_running_instance_keeps_its_deployment(t *testing.T) {
	engine := newTestEngine(t, nil)
	deploy(t, engine, "user-task.bpmn")
	started := start(t, engine, "user-task", nil)
	approve := awaitSuspended(t, engine, started.ProcessInstanceId, "approve")

	// when
	definition, err := engine.GetProcessDefinition(t.Context(), "user-task")
	require.NoError(t, err)
	correlation, err := engine.GetCorrelation(t.Context(), started.ProcessInstanceId)
	require.NoError(t, err)
	running := engine.RunningProcessInstances()
	require.NoError(t, engine.FinishUserTask(t.Context(), approve.CorrelationId, approve.ProcessInstanceId, approve.Id, nil))

	// then
	assert.Equal(t, definition.Hash, correlation.ProcessModelHash)
	assert.Contains(t, running, started.ProcessInstanceId)
	awaitCorrelationState(t, engine, started.ProcessInstanceId, runtime.CorrelationFinished)
	assert.NotContains(t, engine.RunningProcessInstances(), started.ProcessInstanceId)
}
