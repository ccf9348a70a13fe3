package storage

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

var ErrNotFound = errors.New("NOT_FOUND")

// Storage is the interface for all persistence the engine needs
type Storage interface {
	ProcessDefinitionStorageReader
	ProcessDefinitionStorageWriter
	FlowNodeInstanceStorageReader
	FlowNodeInstanceStorageWriter
	CorrelationStorageReader
	CorrelationStorageWriter
	ExternalTaskStorageReader
	ExternalTaskStorageWriter
	CronjobHistoryStorageReader
	CronjobHistoryStorageWriter
}

type FlowNodeInstanceStorage interface {
	FlowNodeInstanceStorageReader
	FlowNodeInstanceStorageWriter
}

type CorrelationStorage interface {
	CorrelationStorageReader
	CorrelationStorageWriter
}

type ProcessDefinitionStorageReader interface {
	// FindLatestProcessDefinitionById returns the highest version of the process
	FindLatestProcessDefinitionById(ctx context.Context, processModelId string) (runtime.ProcessDefinition, error)

	// FindProcessDefinitionsById returns all versions ordered from 1 (first) to the latest (last)
	FindProcessDefinitionsById(ctx context.Context, processModelId string) ([]runtime.ProcessDefinition, error)

	// FindAllLatestProcessDefinitions returns the latest version of every deployed process
	FindAllLatestProcessDefinitions(ctx context.Context) ([]runtime.ProcessDefinition, error)
}

type ProcessDefinitionStorageWriter interface {
	SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error
}

type FlowNodeInstanceStorageReader interface {
	FindFlowNodeInstanceById(ctx context.Context, flowNodeInstanceId string) (runtime.FlowNodeInstance, error)

	// FindFlowNodeInstancesByProcessInstanceId returns instances ordered by creation time
	FindFlowNodeInstancesByProcessInstanceId(ctx context.Context, processInstanceId string) ([]runtime.FlowNodeInstance, error)

	FindFlowNodeInstancesByProcessModelId(ctx context.Context, processModelId string) ([]runtime.FlowNodeInstance, error)

	FindFlowNodeInstancesByState(ctx context.Context, state runtime.FlowNodeInstanceState) ([]runtime.FlowNodeInstance, error)
}

type FlowNodeInstanceStorageWriter interface {
	// SaveFlowNodeInstance creates the instance or overwrites the one stored with the same id
	SaveFlowNodeInstance(ctx context.Context, instance runtime.FlowNodeInstance) error
}

type CorrelationStorageReader interface {
	FindCorrelationByProcessInstanceId(ctx context.Context, processInstanceId string) (runtime.Correlation, error)

	FindCorrelationsByCorrelationId(ctx context.Context, correlationId string) ([]runtime.Correlation, error)

	FindCorrelationsByState(ctx context.Context, state runtime.CorrelationState) ([]runtime.Correlation, error)

	FindCorrelationsByParentProcessInstanceId(ctx context.Context, parentProcessInstanceId string) ([]runtime.Correlation, error)
}

type CorrelationStorageWriter interface {
	SaveCorrelation(ctx context.Context, correlation runtime.Correlation) error
}

type ExternalTaskStorageReader interface {
	FindExternalTaskById(ctx context.Context, externalTaskId string) (runtime.ExternalTask, error)

	FindExternalTasksByFlowNodeInstanceIds(ctx context.Context, flowNodeInstanceIds ...string) ([]runtime.ExternalTask, error)

	FindExternalTasksByTopic(ctx context.Context, topic string, state runtime.ExternalTaskState) ([]runtime.ExternalTask, error)
}

type ExternalTaskStorageWriter interface {
	SaveExternalTask(ctx context.Context, task runtime.ExternalTask) error
}

type CronjobHistoryStorageReader interface {
	// FindCronjobHistory returns entries of the process ordered by execution time
	FindCronjobHistory(ctx context.Context, processModelId string) ([]runtime.CronjobHistoryEntry, error)
}

type CronjobHistoryStorageWriter interface {
	SaveCronjobHistoryEntry(ctx context.Context, entry runtime.CronjobHistoryEntry) error
}

// SortFlowNodeInstances orders instances by creation time, ties broken by id.
func SortFlowNodeInstances(instances []runtime.FlowNodeInstance) {
	slices.SortStableFunc(instances, func(a, b runtime.FlowNodeInstance) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})
}
