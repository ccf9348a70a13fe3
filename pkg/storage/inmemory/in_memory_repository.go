package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

// Storage keeps process information in memory,
// please use NewStorage to create a new object of this type.
type Storage struct {
	mu                 sync.RWMutex
	ProcessDefinitions map[string][]runtime.ProcessDefinition
	FlowNodeInstances  map[string]runtime.FlowNodeInstance
	Correlations       map[string]runtime.Correlation
	ExternalTasks      map[string]runtime.ExternalTask
	CronjobHistory     map[string][]runtime.CronjobHistoryEntry
}

func NewStorage() *Storage {
	return &Storage{
		ProcessDefinitions: make(map[string][]runtime.ProcessDefinition),
		FlowNodeInstances:  make(map[string]runtime.FlowNodeInstance),
		Correlations:       make(map[string]runtime.Correlation),
		ExternalTasks:      make(map[string]runtime.ExternalTask),
		CronjobHistory:     make(map[string][]runtime.CronjobHistoryEntry),
	}
}

var _ storage.Storage = &Storage{}

var _ storage.ProcessDefinitionStorageReader = &Storage{}

func (mem *Storage) FindLatestProcessDefinitionById(ctx context.Context, processModelId string) (runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	versions := mem.ProcessDefinitions[processModelId]
	if len(versions) == 0 {
		return runtime.ProcessDefinition{}, storage.ErrNotFound
	}
	return versions[len(versions)-1], nil
}

func (mem *Storage) FindProcessDefinitionsById(ctx context.Context, processModelId string) ([]runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	versions := mem.ProcessDefinitions[processModelId]
	if len(versions) == 0 {
		return []runtime.ProcessDefinition{}, nil
	}
	return slices.Clone(versions), nil
}

func (mem *Storage) FindAllLatestProcessDefinitions(ctx context.Context) ([]runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ProcessDefinition, 0, len(mem.ProcessDefinitions))
	for _, versions := range mem.ProcessDefinitions {
		if len(versions) > 0 {
			res = append(res, versions[len(versions)-1])
		}
	}
	slices.SortFunc(res, func(a, b runtime.ProcessDefinition) int {
		return cmp.Compare(a.ProcessModelId, b.ProcessModelId)
	})
	return res, nil
}

var _ storage.ProcessDefinitionStorageWriter = &Storage{}

func (mem *Storage) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	versions := mem.ProcessDefinitions[definition.ProcessModelId]
	for i, v := range versions {
		if v.Version == definition.Version {
			versions[i] = definition
			return nil
		}
	}
	versions = append(versions, definition)
	slices.SortFunc(versions, func(a, b runtime.ProcessDefinition) int {
		return cmp.Compare(a.Version, b.Version)
	})
	mem.ProcessDefinitions[definition.ProcessModelId] = versions
	return nil
}

var _ storage.FlowNodeInstanceStorageReader = &Storage{}

func (mem *Storage) FindFlowNodeInstanceById(ctx context.Context, flowNodeInstanceId string) (runtime.FlowNodeInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	instance, ok := mem.FlowNodeInstances[flowNodeInstanceId]
	if !ok {
		return instance, storage.ErrNotFound
	}
	return cloneFlowNodeInstance(instance), nil
}

func (mem *Storage) FindFlowNodeInstancesByProcessInstanceId(ctx context.Context, processInstanceId string) ([]runtime.FlowNodeInstance, error) {
	return mem.filterFlowNodeInstances(func(i runtime.FlowNodeInstance) bool {
		return i.ProcessInstanceId == processInstanceId
	}), nil
}

func (mem *Storage) FindFlowNodeInstancesByProcessModelId(ctx context.Context, processModelId string) ([]runtime.FlowNodeInstance, error) {
	return mem.filterFlowNodeInstances(func(i runtime.FlowNodeInstance) bool {
		return i.ProcessModelId == processModelId
	}), nil
}

func (mem *Storage) FindFlowNodeInstancesByState(ctx context.Context, state runtime.FlowNodeInstanceState) ([]runtime.FlowNodeInstance, error) {
	return mem.filterFlowNodeInstances(func(i runtime.FlowNodeInstance) bool {
		return i.State == state
	}), nil
}

func (mem *Storage) filterFlowNodeInstances(match func(runtime.FlowNodeInstance) bool) []runtime.FlowNodeInstance {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.FlowNodeInstance, 0)
	for _, instance := range mem.FlowNodeInstances {
		if match(instance) {
			res = append(res, cloneFlowNodeInstance(instance))
		}
	}
	storage.SortFlowNodeInstances(res)
	return res
}

// cloneFlowNodeInstance detaches the slices so callers cannot modify stored records.
func cloneFlowNodeInstance(instance runtime.FlowNodeInstance) runtime.FlowNodeInstance {
	instance.Tokens = slices.Clone(instance.Tokens)
	instance.PreviousFlowNodeInstanceIds = slices.Clone(instance.PreviousFlowNodeInstanceIds)
	instance.NextFlowNodeIds = slices.Clone(instance.NextFlowNodeIds)
	return instance
}

var _ storage.FlowNodeInstanceStorageWriter = &Storage{}

func (mem *Storage) SaveFlowNodeInstance(ctx context.Context, instance runtime.FlowNodeInstance) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.FlowNodeInstances[instance.Id] = cloneFlowNodeInstance(instance)
	return nil
}

var _ storage.CorrelationStorageReader = &Storage{}

func (mem *Storage) FindCorrelationByProcessInstanceId(ctx context.Context, processInstanceId string) (runtime.Correlation, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	correlation, ok := mem.Correlations[processInstanceId]
	if !ok {
		return correlation, storage.ErrNotFound
	}
	return correlation, nil
}

func (mem *Storage) FindCorrelationsByCorrelationId(ctx context.Context, correlationId string) ([]runtime.Correlation, error) {
	return mem.filterCorrelations(func(c runtime.Correlation) bool {
		return c.CorrelationId == correlationId
	}), nil
}

func (mem *Storage) FindCorrelationsByState(ctx context.Context, state runtime.CorrelationState) ([]runtime.Correlation, error) {
	return mem.filterCorrelations(func(c runtime.Correlation) bool {
		return c.State == state
	}), nil
}

func (mem *Storage) FindCorrelationsByParentProcessInstanceId(ctx context.Context, parentProcessInstanceId string) ([]runtime.Correlation, error) {
	return mem.filterCorrelations(func(c runtime.Correlation) bool {
		return c.ParentProcessInstanceId == parentProcessInstanceId
	}), nil
}

func (mem *Storage) filterCorrelations(match func(runtime.Correlation) bool) []runtime.Correlation {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.Correlation, 0)
	for _, correlation := range mem.Correlations {
		if match(correlation) {
			res = append(res, correlation)
		}
	}
	slices.SortFunc(res, func(a, b runtime.Correlation) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return res
}

var _ storage.CorrelationStorageWriter = &Storage{}

func (mem *Storage) SaveCorrelation(ctx context.Context, correlation runtime.Correlation) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.Correlations[correlation.ProcessInstanceId] = correlation
	return nil
}

var _ storage.ExternalTaskStorageReader = &Storage{}

func (mem *Storage) FindExternalTaskById(ctx context.Context, externalTaskId string) (runtime.ExternalTask, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	task, ok := mem.ExternalTasks[externalTaskId]
	if !ok {
		return task, storage.ErrNotFound
	}
	return task, nil
}

func (mem *Storage) FindExternalTasksByFlowNodeInstanceIds(ctx context.Context, flowNodeInstanceIds ...string) ([]runtime.ExternalTask, error) {
	return mem.filterExternalTasks(func(task runtime.ExternalTask) bool {
		return slices.Contains(flowNodeInstanceIds, task.FlowNodeInstanceId)
	}), nil
}

func (mem *Storage) FindExternalTasksByTopic(ctx context.Context, topic string, state runtime.ExternalTaskState) ([]runtime.ExternalTask, error) {
	return mem.filterExternalTasks(func(task runtime.ExternalTask) bool {
		return task.Topic == topic && task.State == state
	}), nil
}

func (mem *Storage) filterExternalTasks(match func(runtime.ExternalTask) bool) []runtime.ExternalTask {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ExternalTask, 0)
	for _, task := range mem.ExternalTasks {
		if match(task) {
			res = append(res, task)
		}
	}
	slices.SortFunc(res, func(a, b runtime.ExternalTask) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return res
}

var _ storage.ExternalTaskStorageWriter = &Storage{}

func (mem *Storage) SaveExternalTask(ctx context.Context, task runtime.ExternalTask) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.ExternalTasks[task.Id] = task
	return nil
}

var _ storage.CronjobHistoryStorageReader = &Storage{}

func (mem *Storage) FindCronjobHistory(ctx context.Context, processModelId string) ([]runtime.CronjobHistoryEntry, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := slices.Clone(mem.CronjobHistory[processModelId])
	if res == nil {
		res = make([]runtime.CronjobHistoryEntry, 0)
	}
	return res, nil
}

var _ storage.CronjobHistoryStorageWriter = &Storage{}

func (mem *Storage) SaveCronjobHistoryEntry(ctx context.Context, entry runtime.CronjobHistoryEntry) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.CronjobHistory[entry.ProcessModelId] = append(mem.CronjobHistory[entry.ProcessModelId], entry)
	return nil
}
