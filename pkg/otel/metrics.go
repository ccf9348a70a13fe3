package otel

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

type EngineMetrics struct {
	ProcessesStarted       metric.Int64Counter
	ProcessesEnded         metric.Int64Counter
	ProcessesFailed        metric.Int64Counter
	ProcessesTerminated    metric.Int64Counter
	ProcessesRunning       metric.Int64UpDownCounter
	FlowNodesExecuted      metric.Int64Counter
	ExternalTasksCreated   metric.Int64Counter
	ExternalTasksCompleted metric.Int64Counter
	CronjobsFired          metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*EngineMetrics, error) {
	var errJoin error

	processesStartedTotal, err := meter.Int64Counter("processes_started", metric.WithDescription("Number of processes started"))
	errJoin = errors.Join(errJoin, err)

	processesCompletedTotal, err := meter.Int64Counter("processes_completed", metric.WithDescription("Number of processes completed"))
	errJoin = errors.Join(errJoin, err)

	processesFailed, err := meter.Int64Counter("processes_failed", metric.WithDescription("Number of processes finished with an error"))
	errJoin = errors.Join(errJoin, err)

	processesTerminated, err := meter.Int64Counter("processes_terminated", metric.WithDescription("Number of processes terminated"))
	errJoin = errors.Join(errJoin, err)

	processesRunning, err := meter.Int64UpDownCounter("processes_running", metric.WithDescription("Number of processes currently running"))
	errJoin = errors.Join(errJoin, err)

	flowNodesExecuted, err := meter.Int64Counter("flow_nodes_executed", metric.WithDescription("Number of flow node instances executed"))
	errJoin = errors.Join(errJoin, err)

	externalTasksCreated, err := meter.Int64Counter("external_tasks_created", metric.WithDescription("Number of external tasks created"))
	errJoin = errors.Join(errJoin, err)

	externalTasksCompleted, err := meter.Int64Counter("external_tasks_completed", metric.WithDescription("Number of external tasks completed"))
	errJoin = errors.Join(errJoin, err)

	cronjobsFired, err := meter.Int64Counter("cronjobs_fired", metric.WithDescription("Number of process instances started by cronjobs"))
	errJoin = errors.Join(errJoin, err)

	metrics := EngineMetrics{
		ProcessesStarted:       processesStartedTotal,
		ProcessesEnded:         processesCompletedTotal,
		ProcessesFailed:        processesFailed,
		ProcessesTerminated:    processesTerminated,
		ProcessesRunning:       processesRunning,
		FlowNodesExecuted:      flowNodesExecuted,
		ExternalTasksCreated:   externalTasksCreated,
		ExternalTasksCompleted: externalTasksCompleted,
		CronjobsFired:          cronjobsFired,
	}
	return &metrics, errJoin
}
