package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/ptr"
)

func lockDuration(ms *int64) time.Duration {
	return time.Duration(ptr.Deref(ms, defaultLockDuration.Milliseconds())) * time.Millisecond
}

func (s *Server) fetchAndLockExternalTasks(w http.ResponseWriter, r *http.Request) {
	var body FetchAndLock
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if body.WorkerId == "" || body.Topic == "" {
		writeBadRequest(w, r, errors.New("workerId and topic are required"))
		return
	}
	tasks, err := s.engine.ExternalTasks().FetchAndLockExternalTasks(r.Context(), body.WorkerId, body.Topic, ptr.Deref(body.MaxTasks, defaultMaxTasks), lockDuration(body.LockDurationMs))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []runtime.ExternalTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// workerAction decodes the body of a worker call, writing the error response
// when it is not usable.
func workerAction(w http.ResponseWriter, r *http.Request) (WorkerAction, bool) {
	var body WorkerAction
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, r, err)
		return body, false
	}
	if body.WorkerId == "" {
		writeBadRequest(w, r, errors.New("workerId is required"))
		return body, false
	}
	return body, true
}

func (s *Server) extendExternalTaskLock(w http.ResponseWriter, r *http.Request) {
	body, ok := workerAction(w, r)
	if !ok {
		return
	}
	err := s.engine.ExternalTasks().ExtendLock(r.Context(), body.WorkerId, chi.URLParam(r, "taskId"), lockDuration(body.LockDurationMs))
	writeNoContent(w, r, err)
}

func (s *Server) completeExternalTask(w http.ResponseWriter, r *http.Request) {
	body, ok := workerAction(w, r)
	if !ok {
		return
	}
	err := s.engine.ExternalTasks().FinishExternalTask(r.Context(), body.WorkerId, chi.URLParam(r, "taskId"), body.Result)
	writeNoContent(w, r, err)
}

func (s *Server) failExternalTaskWithBpmnError(w http.ResponseWriter, r *http.Request) {
	body, ok := workerAction(w, r)
	if !ok {
		return
	}
	if body.ErrorCode == "" {
		writeBadRequest(w, r, errors.New("errorCode is required"))
		return
	}
	err := s.engine.ExternalTasks().HandleBpmnError(r.Context(), body.WorkerId, chi.URLParam(r, "taskId"), body.ErrorCode, body.Message)
	writeNoContent(w, r, err)
}

func (s *Server) failExternalTask(w http.ResponseWriter, r *http.Request) {
	body, ok := workerAction(w, r)
	if !ok {
		return
	}
	err := s.engine.ExternalTasks().HandleServiceError(r.Context(), body.WorkerId, chi.URLParam(r, "taskId"), body.Message)
	writeNoContent(w, r, err)
}

func writeNoContent(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
