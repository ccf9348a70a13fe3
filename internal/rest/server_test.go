package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbinitiative/zenflow/internal/config"
	apierror "github.com/pbinitiative/zenflow/internal/rest/error"
	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/ptr"
	"github.com/pbinitiative/zenflow/pkg/storage/inmemory"
)

const testCases = "../../pkg/bpmn/test-cases/"

type testServer struct {
	t      *testing.T
	engine *bpmn.Engine
	http   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	engine, err := bpmn.NewEngine(bpmn.EngineWithStorage(inmemory.NewStorage()))
	require.NoError(t, err)
	t.Cleanup(engine.Stop)
	conf := config.Config{
		Name:        "rest-test",
		Persistence: config.Persistence{Type: config.PersistenceInMemory},
	}
	srv := httptest.NewServer(NewServer(engine, conf).Handler())
	t.Cleanup(srv.Close)
	return &testServer{t: t, engine: engine, http: srv}
}

func (s *testServer) do(method, path, contentType string, body []byte) *http.Response {
	s.t.Helper()
	req, err := http.NewRequestWithContext(s.t.Context(), method, s.http.URL+path, bytes.NewReader(body))
	require.NoError(s.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-User-Id", "alice")
	resp, err := s.http.Client().Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) postJSON(path string, body any) *http.Response {
	s.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(s.t, err)
	return s.do(http.MethodPost, path, "application/json", data)
}

func (s *testServer) deploy(file string) ProcessDefinitionSimple {
	s.t.Helper()
	data, err := os.ReadFile(testCases + file)
	require.NoError(s.t, err)
	resp := s.do(http.MethodPost, "/v1/process-definitions?resourceName="+file, "application/xml", data)
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	return decode[ProcessDefinitionSimple](s.t, resp)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func Test_deploy_and_list_process_definitions(t *testing.T) {
	s := newTestServer(t)

	// when
	first := s.deploy("user-task.bpmn")
	again := s.deploy("user-task.bpmn")
	resp := s.do(http.MethodGet, "/v1/process-definitions", "", nil)

	// then
	assert.Equal(t, "user-task", first.ProcessModelId)
	assert.EqualValues(t, 1, first.Version)
	assert.Equal(t, first.Hash, again.Hash)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]ProcessDefinitionSimple](t, resp)
	require.Len(t, listed, 1)
	assert.Equal(t, "user-task.bpmn", listed[0].ResourceName)

	detail := s.do(http.MethodGet, "/v1/process-definitions/user-task", "", nil)
	require.Equal(t, http.StatusOK, detail.StatusCode)
	assert.Contains(t, decode[ProcessDefinitionDetail](t, detail).BpmnData, "assignmentDefinition")
}

func Test_deploy_invalid_xml_is_bad_request(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodPost, "/v1/process-definitions", "application/xml", []byte("<definitions"))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apierror.TypeBadRequest, decode[apierror.ApiError](t, resp).Type)
}

func Test_unknown_process_definition_is_not_found(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodGet, "/v1/process-definitions/missing", "", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_user_task_is_completed_through_the_api(t *testing.T) {
	s := newTestServer(t)
	s.deploy("user-task.bpmn")

	// given
	resp := s.postJSON("/v1/process-instances", StartProcessInstance{ProcessModelId: "user-task", CorrelationId: "order-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	started := decode[ProcessInstanceStarted](t, resp)

	var waiting runtime.FlowNodeInstance
	require.Eventually(t, func() bool {
		resp := s.do(http.MethodGet, "/v1/flow-node-instances?processModelId=user-task", "", nil)
		suspended := decode[[]runtime.FlowNodeInstance](t, resp)
		if len(suspended) != 1 {
			return false
		}
		waiting = suspended[0]
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "approve", waiting.FlowNodeId)
	assert.Equal(t, started.ProcessInstanceId, waiting.ProcessInstanceId)

	// when
	complete := s.postJSON("/v1/flow-node-instances/"+waiting.Id+"/complete", Payload{Payload: map[string]any{"approved": true}})

	// then
	assert.Equal(t, http.StatusNoContent, complete.StatusCode)
	require.Eventually(t, func() bool {
		resp := s.do(http.MethodGet, "/v1/process-instances/"+started.ProcessInstanceId, "", nil)
		return decode[runtime.Correlation](t, resp).State == runtime.CorrelationFinished
	}, 5*time.Second, 10*time.Millisecond)

	correlations := decode[[]runtime.Correlation](t, s.do(http.MethodGet, "/v1/correlations/order-1", "", nil))
	require.Len(t, correlations, 1)
	assert.Equal(t, "alice", correlations[0].Identity.UserId)

	again := s.postJSON("/v1/flow-node-instances/"+waiting.Id+"/complete", Payload{})
	assert.Equal(t, http.StatusBadRequest, again.StatusCode)
}

func Test_start_and_await_end_event(t *testing.T) {
	s := newTestServer(t)
	s.deploy("simple-script.bpmn")

	resp := s.postJSON("/v1/process-instances", StartProcessInstance{
		ProcessModelId: "simple-script",
		Payload:        map[string]any{"amount": 21},
		AwaitEndEvent:  true,
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	reached := decode[EndEventReached](t, resp)
	assert.Equal(t, "simple-script", reached.ProcessModelId)
	assert.NotEmpty(t, reached.EndEventId)
}

func Test_start_validation(t *testing.T) {
	s := newTestServer(t)

	missingId := s.postJSON("/v1/process-instances", StartProcessInstance{})
	unknown := s.postJSON("/v1/process-instances", StartProcessInstance{ProcessModelId: "unknown"})

	assert.Equal(t, http.StatusBadRequest, missingId.StatusCode)
	assert.Equal(t, http.StatusNotFound, unknown.StatusCode)
}

func Test_terminate_not_running_instance_is_bad_request(t *testing.T) {
	s := newTestServer(t)

	resp := s.postJSON("/v1/process-instances/missing/terminate", Terminate{Reason: "test"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_message_without_subscribers_is_not_delivered(t *testing.T) {
	s := newTestServer(t)

	resp := s.postJSON("/v1/messages", Event{Name: "nobody-listens"})
	missingName := s.postJSON("/v1/signals", Event{})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[Delivered](t, resp).Delivered)
	assert.Equal(t, http.StatusBadRequest, missingName.StatusCode)
}

func Test_external_task_worker_flow(t *testing.T) {
	s := newTestServer(t)
	s.deploy("external-task.bpmn")
	started := decode[ProcessInstanceStarted](t, s.postJSON("/v1/process-instances", StartProcessInstance{ProcessModelId: "external-task"}))

	// given
	var tasks []runtime.ExternalTask
	require.Eventually(t, func() bool {
		resp := s.postJSON("/v1/external-tasks/fetch-and-lock", FetchAndLock{WorkerId: "worker-1", Topic: "payments", MaxTasks: ptr.To(5)})
		tasks = decode[[]runtime.ExternalTask](t, resp)
		return len(tasks) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// when
	wrongWorker := s.postJSON("/v1/external-tasks/"+tasks[0].Id+"/complete", WorkerAction{WorkerId: "worker-2"})
	completed := s.postJSON("/v1/external-tasks/"+tasks[0].Id+"/complete", WorkerAction{WorkerId: "worker-1", Result: map[string]any{"charged": true}})

	// then
	assert.Equal(t, http.StatusBadRequest, wrongWorker.StatusCode)
	assert.Equal(t, http.StatusNoContent, completed.StatusCode)
	require.Eventually(t, func() bool {
		correlation, err := s.engine.GetCorrelation(t.Context(), started.ProcessInstanceId)
		return err == nil && correlation.State == runtime.CorrelationFinished
	}, 5*time.Second, 10*time.Millisecond)
}

func Test_system_endpoints(t *testing.T) {
	s := newTestServer(t)

	openApi := s.do(http.MethodGet, "/v1/openapi.json", "", nil)
	conf := s.do(http.MethodGet, "/system/config", "", nil)
	status := s.do(http.MethodGet, "/system/status", "", nil)
	metrics := s.do(http.MethodGet, "/system/metrics", "", nil)

	assert.Equal(t, http.StatusOK, openApi.StatusCode)
	assert.Equal(t, "application/json", openApi.Header.Get("Content-Type"))
	require.Equal(t, http.StatusOK, conf.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(conf.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "name: rest-test")
	require.Equal(t, http.StatusOK, status.StatusCode)
	assert.Equal(t, 0, decode[Status](t, status).RunningProcessInstances)
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}
