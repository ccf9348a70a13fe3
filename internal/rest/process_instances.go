package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenflow/internal/appcontext"
	"github.com/pbinitiative/zenflow/pkg/bpmn"
)

func (s *Server) getRunningProcessInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.RunningProcessInstances())
}

func (s *Server) createProcessInstance(w http.ResponseWriter, r *http.Request) {
	var body StartProcessInstance
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if body.ProcessModelId == "" {
		writeBadRequest(w, r, errors.New("processModelId is required"))
		return
	}
	identity, _ := appcontext.Identity(r.Context())
	request := bpmn.StartRequest{
		ProcessModelId: body.ProcessModelId,
		StartEventId:   body.StartEventId,
		CorrelationId:  body.CorrelationId,
		Payload:        body.Payload,
		Identity:       identity,
	}

	executor := s.engine.ExecuteProcess()
	switch {
	case body.EndEventId != "":
		reached, err := executor.StartAndAwaitSpecificEndEvent(r.Context(), request, body.EndEventId)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toEndEventReached(reached))
	case body.AwaitEndEvent:
		reached, err := executor.StartAndAwaitEndEvent(r.Context(), request)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toEndEventReached(reached))
	default:
		started, err := executor.Start(r.Context(), request)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ProcessInstanceStarted{
			CorrelationId:     started.CorrelationId,
			ProcessInstanceId: started.ProcessInstanceId,
			ProcessModelId:    started.ProcessModelId,
		})
	}
}

func (s *Server) resumeInterruptedProcessInstances(w http.ResponseWriter, r *http.Request) {
	identity, _ := appcontext.Identity(r.Context())
	// the resumed instances outlive the request
	resumed, err := s.engine.ResumeProcess().FindAndResumeInterruptedProcessInstances(context.WithoutCancel(r.Context()), identity)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if resumed == nil {
		resumed = []string{}
	}
	writeJSON(w, http.StatusOK, resumed)
}

func (s *Server) getProcessInstance(w http.ResponseWriter, r *http.Request) {
	correlation, err := s.engine.GetCorrelation(r.Context(), chi.URLParam(r, "processInstanceId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, correlation)
}

func (s *Server) getProcessInstanceFlowNodeInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := s.engine.GetFlowNodeInstances(r.Context(), chi.URLParam(r, "processInstanceId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func (s *Server) terminateProcessInstance(w http.ResponseWriter, r *http.Request) {
	var body Terminate
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if body.Reason == "" {
		body.Reason = "terminated through the api"
	}
	if err := s.engine.TerminateProcessInstance(r.Context(), chi.URLParam(r, "processInstanceId"), body.Reason); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getCorrelations(w http.ResponseWriter, r *http.Request) {
	correlations, err := s.engine.GetCorrelationsByCorrelationId(r.Context(), chi.URLParam(r, "correlationId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, correlations)
}
