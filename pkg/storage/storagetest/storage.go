package storagetest

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	stdruntime "runtime"

	"github.com/google/uuid"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type StorageTestFunc func(s storage.Storage, t *testing.T) func(t *testing.T)

// StorageTester is the conformance suite every storage.Storage implementation runs.
type StorageTester struct {
	processDefinition runtime.ProcessDefinition
	correlation       runtime.Correlation
}

func (st *StorageTester) GetTests() map[string]StorageTestFunc {
	tests := map[string]StorageTestFunc{}

	// all test functions need to be registered here
	functions := []StorageTestFunc{
		st.TestProcessDefinitionStorageWriter,
		st.TestProcessDefinitionStorageReader,
		st.TestFlowNodeInstanceStorageWriter,
		st.TestFlowNodeInstanceStorageReader,
		st.TestCorrelationStorageWriter,
		st.TestCorrelationStorageReader,
		st.TestExternalTaskStorageWriter,
		st.TestExternalTaskStorageReader,
		st.TestCronjobHistoryStorage,
	}

	for _, function := range functions {
		funcName := getFunctionName(function)
		strippedName := funcName[strings.LastIndex(funcName, ".")+1:]
		strippedName = strings.TrimSuffix(strippedName, "-fm")
		tests[strippedName] = function
	}
	return tests
}

func getFunctionName(i any) string {
	return stdruntime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
}

func getProcessDefinition(id string, version int32) runtime.ProcessDefinition {
	data := `<?xml version="1.0" encoding="UTF-8"?><bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"><bpmn:process id="%s" isExecutable="true"></bpmn:process></bpmn:definitions>`
	return runtime.ProcessDefinition{
		ProcessModelId: id,
		Version:        version,
		Hash:           fmt.Sprintf("hash-%s-%d", id, version),
		BpmnData:       fmt.Sprintf(data, id),
		ResourceName:   fmt.Sprintf("resource-%s", id),
		DeployedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func getFlowNodeInstance(processInstanceId string, state runtime.FlowNodeInstanceState, createdAt time.Time) runtime.FlowNodeInstance {
	return runtime.FlowNodeInstance{
		Id:                uuid.NewString(),
		FlowNodeId:        "task",
		FlowNodeType:      "USER_TASK",
		State:             state,
		CorrelationId:     "correlation",
		ProcessModelId:    "model-" + processInstanceId,
		ProcessInstanceId: processInstanceId,
		Tokens: []runtime.FlowNodeToken{
			{Type: runtime.TokenOnEnter, Payload: "enter", CreatedAt: createdAt},
		},
		PreviousFlowNodeInstanceIds: []string{"a", "b"},
		CreatedAt:                   createdAt,
		UpdatedAt:                   createdAt,
	}
}

// PrepareTestData will prepare common data for the tests
func (st *StorageTester) PrepareTestData(s storage.Storage, t *testing.T) {
	st.processDefinition = getProcessDefinition("prepared-"+uuid.NewString(), 1)
	err := s.SaveProcessDefinition(t.Context(), st.processDefinition)
	assert.NoError(t, err)

	st.correlation = runtime.Correlation{
		ProcessInstanceId: uuid.NewString(),
		CorrelationId:     uuid.NewString(),
		ProcessModelId:    st.processDefinition.ProcessModelId,
		ProcessModelHash:  st.processDefinition.Hash,
		State:             runtime.CorrelationRunning,
		StartEventId:      "start",
		CreatedAt:         time.Now().UTC(),
	}
	err = s.SaveCorrelation(t.Context(), st.correlation)
	assert.NoError(t, err)
}

func (st *StorageTester) TestProcessDefinitionStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		def := getProcessDefinition(uuid.NewString(), 1)

		err := s.SaveProcessDefinition(t.Context(), def)
		assert.NoError(t, err)

		// saving the same version overwrites it
		def.ResourceName = "updated"
		err = s.SaveProcessDefinition(t.Context(), def)
		assert.NoError(t, err)

		versions, err := s.FindProcessDefinitionsById(t.Context(), def.ProcessModelId)
		assert.NoError(t, err)
		assert.Len(t, versions, 1)
		assert.Equal(t, "updated", versions[0].ResourceName)
	}
}

func (st *StorageTester) TestProcessDefinitionStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		id := uuid.NewString()
		for _, version := range []int32{2, 1, 3} {
			err := s.SaveProcessDefinition(t.Context(), getProcessDefinition(id, version))
			require.NoError(t, err)
		}

		latest, err := s.FindLatestProcessDefinitionById(t.Context(), id)
		assert.NoError(t, err)
		assert.Equal(t, int32(3), latest.Version)
		assert.Equal(t, fmt.Sprintf("hash-%s-3", id), latest.Hash)

		versions, err := s.FindProcessDefinitionsById(t.Context(), id)
		assert.NoError(t, err)
		assert.Len(t, versions, 3)
		for i, def := range versions {
			assert.Equal(t, int32(i+1), def.Version)
		}

		_, err = s.FindLatestProcessDefinitionById(t.Context(), "missing-"+id)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		none, err := s.FindProcessDefinitionsById(t.Context(), "missing-"+id)
		assert.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)

		noCorrelations, err := s.FindCorrelationsByCorrelationId(t.Context(), uuid.NewString())
		assert.NoError(t, err)
		assert.NotNil(t, noCorrelations)
		assert.Empty(t, noCorrelations)

		all, err := s.FindAllLatestProcessDefinitions(t.Context())
		assert.NoError(t, err)
		found := false
		for _, def := range all {
			if def.ProcessModelId == id {
				found = true
				assert.Equal(t, int32(3), def.Version)
			}
			assert.NotEqual(t, "", def.ProcessModelId)
		}
		assert.True(t, found)
		assert.True(t, containsDefinition(all, st.processDefinition.ProcessModelId))
	}
}

func containsDefinition(defs []runtime.ProcessDefinition, id string) bool {
	for _, def := range defs {
		if def.ProcessModelId == id {
			return true
		}
	}
	return false
}

func (st *StorageTester) TestFlowNodeInstanceStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		instance := getFlowNodeInstance(uuid.NewString(), runtime.FlowNodeRunning, time.Now().UTC())

		err := s.SaveFlowNodeInstance(t.Context(), instance)
		assert.NoError(t, err)

		instance.State = runtime.FlowNodeFinished
		instance.Tokens = append(instance.Tokens, runtime.FlowNodeToken{Type: runtime.TokenOnExit, Payload: "exit"})
		instance.NextFlowNodeIds = []string{"end"}
		err = s.SaveFlowNodeInstance(t.Context(), instance)
		assert.NoError(t, err)

		stored, err := s.FindFlowNodeInstanceById(t.Context(), instance.Id)
		assert.NoError(t, err)
		assert.Equal(t, runtime.FlowNodeFinished, stored.State)
		assert.Len(t, stored.Tokens, 2)
		assert.Equal(t, []string{"a", "b"}, stored.PreviousFlowNodeInstanceIds)
		assert.Equal(t, []string{"end"}, stored.NextFlowNodeIds)
	}
}

func (st *StorageTester) TestFlowNodeInstanceStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		processInstanceId := uuid.NewString()
		now := time.Now().UTC()
		second := getFlowNodeInstance(processInstanceId, runtime.FlowNodeSuspended, now.Add(time.Second))
		first := getFlowNodeInstance(processInstanceId, runtime.FlowNodeFinished, now)
		other := getFlowNodeInstance(uuid.NewString(), runtime.FlowNodeSuspended, now)
		for _, instance := range []runtime.FlowNodeInstance{second, first, other} {
			require.NoError(t, s.SaveFlowNodeInstance(t.Context(), instance))
		}

		instances, err := s.FindFlowNodeInstancesByProcessInstanceId(t.Context(), processInstanceId)
		assert.NoError(t, err)
		assert.Len(t, instances, 2)
		assert.Equal(t, first.Id, instances[0].Id)
		assert.Equal(t, second.Id, instances[1].Id)

		byModel, err := s.FindFlowNodeInstancesByProcessModelId(t.Context(), "model-"+processInstanceId)
		assert.NoError(t, err)
		assert.Len(t, byModel, 2)

		suspended, err := s.FindFlowNodeInstancesByState(t.Context(), runtime.FlowNodeSuspended)
		assert.NoError(t, err)
		ids := map[string]bool{}
		for _, instance := range suspended {
			assert.Equal(t, runtime.FlowNodeSuspended, instance.State)
			ids[instance.Id] = true
		}
		assert.True(t, ids[second.Id])
		assert.True(t, ids[other.Id])

		_, err = s.FindFlowNodeInstanceById(t.Context(), uuid.NewString())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		none, err := s.FindFlowNodeInstancesByProcessInstanceId(t.Context(), uuid.NewString())
		assert.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	}
}

func (st *StorageTester) TestCorrelationStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		correlation := st.correlation
		correlation.ProcessInstanceId = uuid.NewString()
		correlation.CorrelationId = uuid.NewString()
		err := s.SaveCorrelation(t.Context(), correlation)
		assert.NoError(t, err)

		finishedAt := time.Now().UTC()
		correlation.State = runtime.CorrelationError
		correlation.FinishedAt = &finishedAt
		correlation.Error = &runtime.FlowNodeFailure{Kind: runtime.ErrorKindBusiness, Code: "E1", Message: "failed"}
		err = s.SaveCorrelation(t.Context(), correlation)
		assert.NoError(t, err)

		stored, err := s.FindCorrelationByProcessInstanceId(t.Context(), correlation.ProcessInstanceId)
		assert.NoError(t, err)
		assert.Equal(t, runtime.CorrelationError, stored.State)
		assert.Equal(t, "E1", stored.Error.Code)
		assert.NotNil(t, stored.FinishedAt)
	}
}

func (st *StorageTester) TestCorrelationStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		stored, err := s.FindCorrelationByProcessInstanceId(t.Context(), st.correlation.ProcessInstanceId)
		assert.NoError(t, err)
		assert.Equal(t, st.correlation.CorrelationId, stored.CorrelationId)

		child := runtime.Correlation{
			ProcessInstanceId:        uuid.NewString(),
			CorrelationId:            st.correlation.CorrelationId,
			ProcessModelId:           st.correlation.ProcessModelId,
			State:                    runtime.CorrelationFinished,
			ParentProcessInstanceId:  st.correlation.ProcessInstanceId,
			ParentFlowNodeInstanceId: "parent-flow-node",
			CreatedAt:                st.correlation.CreatedAt.Add(time.Second),
		}
		require.NoError(t, s.SaveCorrelation(t.Context(), child))

		byCorrelation, err := s.FindCorrelationsByCorrelationId(t.Context(), st.correlation.CorrelationId)
		assert.NoError(t, err)
		assert.Len(t, byCorrelation, 2)
		assert.Equal(t, st.correlation.ProcessInstanceId, byCorrelation[0].ProcessInstanceId)

		children, err := s.FindCorrelationsByParentProcessInstanceId(t.Context(), st.correlation.ProcessInstanceId)
		assert.NoError(t, err)
		assert.Len(t, children, 1)
		assert.Equal(t, "parent-flow-node", children[0].ParentFlowNodeInstanceId)
		assert.True(t, children[0].IsNested())

		running, err := s.FindCorrelationsByState(t.Context(), runtime.CorrelationRunning)
		assert.NoError(t, err)
		for _, c := range running {
			assert.Equal(t, runtime.CorrelationRunning, c.State)
		}

		_, err = s.FindCorrelationByProcessInstanceId(t.Context(), uuid.NewString())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestExternalTaskStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		task := runtime.ExternalTask{
			Id:                 uuid.NewString(),
			Topic:              "writer-topic",
			FlowNodeInstanceId: uuid.NewString(),
			ProcessInstanceId:  st.correlation.ProcessInstanceId,
			State:              runtime.ExternalTaskPending,
			CreatedAt:          time.Now().UTC(),
		}
		err := s.SaveExternalTask(t.Context(), task)
		assert.NoError(t, err)

		task.State = runtime.ExternalTaskFinished
		task.Result = "done"
		err = s.SaveExternalTask(t.Context(), task)
		assert.NoError(t, err)

		stored, err := s.FindExternalTaskById(t.Context(), task.Id)
		assert.NoError(t, err)
		assert.Equal(t, runtime.ExternalTaskFinished, stored.State)
		assert.Equal(t, "done", stored.Result)
	}
}

func (st *StorageTester) TestExternalTaskStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		topic := "topic-" + uuid.NewString()
		now := time.Now().UTC()
		pending := runtime.ExternalTask{Id: uuid.NewString(), Topic: topic, FlowNodeInstanceId: uuid.NewString(), State: runtime.ExternalTaskPending, CreatedAt: now}
		finished := runtime.ExternalTask{Id: uuid.NewString(), Topic: topic, FlowNodeInstanceId: uuid.NewString(), State: runtime.ExternalTaskFinished, CreatedAt: now}
		require.NoError(t, s.SaveExternalTask(t.Context(), pending))
		require.NoError(t, s.SaveExternalTask(t.Context(), finished))

		byTopic, err := s.FindExternalTasksByTopic(t.Context(), topic, runtime.ExternalTaskPending)
		assert.NoError(t, err)
		assert.Len(t, byTopic, 1)
		assert.Equal(t, pending.Id, byTopic[0].Id)

		byInstance, err := s.FindExternalTasksByFlowNodeInstanceIds(t.Context(), pending.FlowNodeInstanceId, finished.FlowNodeInstanceId)
		assert.NoError(t, err)
		assert.Len(t, byInstance, 2)

		none, err := s.FindExternalTasksByFlowNodeInstanceIds(t.Context(), uuid.NewString())
		assert.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)

		_, err = s.FindExternalTaskById(t.Context(), uuid.NewString())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestCronjobHistoryStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		processModelId := uuid.NewString()
		now := time.Now().UTC()
		for i := 0; i < 3; i++ {
			err := s.SaveCronjobHistoryEntry(t.Context(), runtime.CronjobHistoryEntry{
				ProcessModelId:    processModelId,
				StartEventId:      "start",
				CrontabExpression: "* * * * *",
				ProcessInstanceId: fmt.Sprintf("pi-%d", i),
				ExecutedAt:        now.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		history, err := s.FindCronjobHistory(t.Context(), processModelId)
		assert.NoError(t, err)
		assert.Len(t, history, 3)
		assert.Equal(t, "pi-0", history[0].ProcessInstanceId)
		assert.Equal(t, "pi-2", history[2].ProcessInstanceId)

		none, err := s.FindCronjobHistory(t.Context(), uuid.NewString())
		assert.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	}
}
