package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenflow/internal/config"
	"github.com/pbinitiative/zenflow/internal/log"
	otelint "github.com/pbinitiative/zenflow/internal/otel"
	apierror "github.com/pbinitiative/zenflow/internal/rest/error"
	"github.com/pbinitiative/zenflow/internal/rest/middleware"
	"github.com/pbinitiative/zenflow/internal/rest/openapi"
	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxTasks     = 10
	defaultLockDuration = 30 * time.Second
	maxBpmnUploadSize   = 10 << 20
)

type Server struct {
	engine *bpmn.Engine
	conf   config.Config
	addr   string
	server *http.Server
}

func NewServer(engine *bpmn.Engine, conf config.Config) *Server {
	r := chi.NewRouter()
	s := Server{
		engine: engine,
		conf:   conf,
		addr:   conf.Server.Addr,
		server: &http.Server{
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           r,
			Addr:              conf.Server.Addr,
		},
	}
	if err := otelint.EnsureRequestInstruments(); err != nil {
		log.Error("failed to create request instruments: %s", err)
	}
	r.Use(middleware.Cors(conf))
	r.Use(middleware.Opentelemetry(conf))
	r.Use(middleware.StripEmptyQueryParams())
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Identity())
		r.Get("/openapi.json", s.getOpenApi)

		r.Get("/process-definitions", s.getProcessDefinitions)
		r.Post("/process-definitions", s.createProcessDefinition)
		r.Get("/process-definitions/{processModelId}", s.getProcessDefinition)
		r.Get("/cronjobs", s.getCronjobs)

		r.Get("/process-instances", s.getRunningProcessInstances)
		r.Post("/process-instances", s.createProcessInstance)
		r.Post("/process-instances/resume", s.resumeInterruptedProcessInstances)
		r.Get("/process-instances/{processInstanceId}", s.getProcessInstance)
		r.Get("/process-instances/{processInstanceId}/flow-node-instances", s.getProcessInstanceFlowNodeInstances)
		r.Post("/process-instances/{processInstanceId}/terminate", s.terminateProcessInstance)
		r.Get("/correlations/{correlationId}", s.getCorrelations)

		r.Get("/flow-node-instances", s.getSuspendedFlowNodeInstances)
		r.Get("/flow-node-instances/{flowNodeInstanceId}", s.getFlowNodeInstance)
		r.Post("/flow-node-instances/{flowNodeInstanceId}/complete", s.completeFlowNodeInstance)

		r.Post("/messages", s.publishMessage)
		r.Post("/signals", s.broadcastSignal)

		r.Post("/external-tasks/fetch-and-lock", s.fetchAndLockExternalTasks)
		r.Post("/external-tasks/{taskId}/extend-lock", s.extendExternalTaskLock)
		r.Post("/external-tasks/{taskId}/complete", s.completeExternalTask)
		r.Post("/external-tasks/{taskId}/bpmn-error", s.failExternalTaskWithBpmnError)
		r.Post("/external-tasks/{taskId}/failure", s.failExternalTask)
	})
	// register system endpoints
	r.Route("/system", func(r chi.Router) {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
		r.Get("/status", s.getStatus)
		r.Get("/config", s.getConfig)
	})
	return &s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() net.Listener {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		log.Error("failed to listen: %v", err)
		return nil
	}
	log.Info("zenflow REST server listening on %s", listener.Addr())
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Error starting server: %s", err)
		}
	}()
	return listener
}

func (s *Server) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		log.Error("Error stopping server: %s", err)
	}
}

func (s *Server) getOpenApi(w http.ResponseWriter, r *http.Request) {
	data, err := openapi.JSON(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	definitions, err := s.engine.GetProcessDefinitions(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Status{
		Name:                    s.engine.Name(),
		RunningProcessInstances: len(s.engine.RunningProcessInstances()),
		ScheduledCronjobs:       len(s.engine.Cronjobs().Scheduled()),
		DeployedProcessModels:   len(definitions),
	})
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	data, err := yaml.Marshal(s.conf)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decodeBody decodes a JSON request body into v. An empty body leaves v as is.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("failed to write response: %s", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp apierror.ApiError) {
	if status >= http.StatusInternalServerError {
		log.Errorf(r.Context(), "%s %s failed: %s", r.Method, r.URL.Path, resp.Message)
	}
	writeJSON(w, status, resp)
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := apierror.FromError(err)
	writeError(w, r, status, resp)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, apierror.ApiError{
		Message: err.Error(),
		Type:    apierror.TypeBadRequest,
	})
}
