package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

func (s *Server) getSuspendedFlowNodeInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := s.engine.GetSuspendedFlowNodeInstances(r.Context(), r.URL.Query().Get("processModelId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func (s *Server) getFlowNodeInstance(w http.ResponseWriter, r *http.Request) {
	instance, err := s.engine.GetFlowNodeInstance(r.Context(), chi.URLParam(r, "flowNodeInstanceId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

// completeFlowNodeInstance resumes a suspended user task, manual task or
// empty activity, chosen by the type of the flow node instance.
func (s *Server) completeFlowNodeInstance(w http.ResponseWriter, r *http.Request) {
	var body Payload
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	instance, err := s.engine.GetFlowNodeInstance(r.Context(), chi.URLParam(r, "flowNodeInstanceId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if instance.State != runtime.FlowNodeSuspended {
		writeBadRequest(w, r, fmt.Errorf("flow node instance %s is %s", instance.Id, instance.State))
		return
	}

	finish := s.engine.FinishEmptyActivity
	switch bpmn20.ElementType(instance.FlowNodeType) {
	case bpmn20.ElementTypeUserTask:
		finish = s.engine.FinishUserTask
	case bpmn20.ElementTypeManualTask:
		finish = s.engine.FinishManualTask
	case bpmn20.ElementTypeTask:
	default:
		writeBadRequest(w, r, fmt.Errorf("flow node instance %s of type %s can not be completed through the api", instance.Id, instance.FlowNodeType))
		return
	}
	if err := finish(r.Context(), instance.CorrelationId, instance.ProcessInstanceId, instance.Id, body.Payload); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publishMessage(w http.ResponseWriter, r *http.Request) {
	var body Event
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if body.Name == "" {
		writeBadRequest(w, r, errors.New("message name is required"))
		return
	}
	writeJSON(w, http.StatusOK, Delivered{Delivered: s.engine.TriggerMessageEvent(r.Context(), body.Name, body.Payload)})
}

func (s *Server) broadcastSignal(w http.ResponseWriter, r *http.Request) {
	var body Event
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if body.Name == "" {
		writeBadRequest(w, r, errors.New("signal name is required"))
		return
	}
	writeJSON(w, http.StatusOK, Delivered{Delivered: s.engine.TriggerSignalEvent(r.Context(), body.Name, body.Payload)})
}
