package rest

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getProcessDefinitions(w http.ResponseWriter, r *http.Request) {
	definitions, err := s.engine.GetProcessDefinitions(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	items := make([]ProcessDefinitionSimple, 0, len(definitions))
	for _, definition := range definitions {
		items = append(items, toProcessDefinitionSimple(definition))
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getProcessDefinition(w http.ResponseWriter, r *http.Request) {
	definition, err := s.engine.GetProcessDefinition(r.Context(), chi.URLParam(r, "processModelId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessDefinitionDetail{
		ProcessDefinitionSimple: toProcessDefinitionSimple(*definition),
		BpmnData:                definition.BpmnData,
	})
}

func (s *Server) createProcessDefinition(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBpmnUploadSize))
	if err != nil {
		writeBadRequest(w, r, fmt.Errorf("failed to read request body: %w", err))
		return
	}
	resourceName := r.URL.Query().Get("resourceName")
	if resourceName == "" {
		resourceName = "upload.bpmn"
	}
	definition, err := s.engine.LoadFromBytes(r.Context(), data, resourceName)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProcessDefinitionSimple(*definition))
}

func (s *Server) getCronjobs(w http.ResponseWriter, r *http.Request) {
	scheduled := s.engine.Cronjobs().Scheduled()
	items := make([]Cronjob, 0, len(scheduled))
	for _, cronjob := range scheduled {
		items = append(items, Cronjob{
			ProcessModelId: cronjob.ProcessModelId,
			StartEventId:   cronjob.StartEventId,
			Expression:     cronjob.Expression,
		})
	}
	writeJSON(w, http.StatusOK, items)
}
