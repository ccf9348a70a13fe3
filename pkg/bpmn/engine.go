// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/bpmn/timer"
	enginemetrics "github.com/pbinitiative/zenflow/pkg/otel"
	"github.com/pbinitiative/zenflow/pkg/script"
	"github.com/pbinitiative/zenflow/pkg/script/feel"
	"github.com/pbinitiative/zenflow/pkg/script/js"
	"github.com/pbinitiative/zenflow/pkg/semaphore"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/pbinitiative/zenflow/pkg/storage/inmemory"
)

const (
	defaultScriptPoolMin  = 2
	defaultScriptPoolMax  = 16
	defaultModelCacheSize = 128
	defaultModelCacheTTL  = time.Hour
)

type Engine struct {
	name   string
	logger hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	persistence storage.Storage
	snowflake   *snowflake.Node

	aggregator messaging.EventAggregator
	exporters  []exporter.EventExporter

	taskhandlersMu sync.RWMutex
	taskHandlers   []*taskHandler

	jsRuntime    script.JsRuntime
	feelRuntime  script.FeelRuntime
	expressions  *expressionEvaluator
	timers       *timer.Facade
	claimChecker ClaimChecker
	tracer       trace.Tracer
	metrics      *enginemetrics.EngineMetrics

	modelCache *expirable.LRU[string, *bpmn20.ProcessModelFacade]

	flowNodes     *flowNodePersistenceFacade
	correlations  *correlationService
	externalTasks *ExternalTaskService
	instances     *instanceRegistry
	handlers      *handlerFactory
	locks         *semaphore.NamedLocks

	executeProcess *ExecuteProcessService
	resumeProcess  *ResumeProcessService
	cronjobs       *CronjobService

	scriptPoolMin   int
	scriptPoolMax   int
	modelCacheSize  int
	cronjobsEnabled bool
}

// NewEngine creates a new instance of the BPMN Engine. Without options it runs
// on in-memory storage and an in-memory event aggregator.
func NewEngine(options ...EngineOption) (*Engine, error) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := &Engine{
		name:            fmt.Sprintf("Bpmn-Engine-%d", getGlobalSnowflakeIdGenerator().Generate().Int64()),
		logger:          hclog.Default(),
		ctx:             ctx,
		cancel:          cancel,
		snowflake:       getGlobalSnowflakeIdGenerator(),
		exporters:       []exporter.EventExporter{},
		taskHandlers:    []*taskHandler{},
		claimChecker:    AllowAllClaimChecker{},
		scriptPoolMin:   defaultScriptPoolMin,
		scriptPoolMax:   defaultScriptPoolMax,
		modelCacheSize:  defaultModelCacheSize,
		cronjobsEnabled: true,
	}
	for _, option := range options {
		option(engine)
	}
	if engine.persistence == nil {
		engine.persistence = inmemory.NewStorage()
	}
	if engine.aggregator == nil {
		engine.aggregator = messaging.NewEventAggregator()
	}
	engine.logger = engine.logger.Named(engine.name)

	if engine.jsRuntime == nil {
		jsRuntime, err := js.NewJsRuntime(ctx, engine.scriptPoolMax, engine.scriptPoolMin)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create js runtime: %w", err)
		}
		engine.jsRuntime = jsRuntime
	}
	if engine.feelRuntime == nil {
		engine.feelRuntime = feel.NewFeelRuntime()
	}
	engine.expressions = newExpressionEvaluator(engine.jsRuntime, engine.feelRuntime)

	metrics, err := enginemetrics.NewMetrics(otel.Meter("bpmn-engine"))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}
	engine.metrics = metrics
	engine.tracer = otel.GetTracerProvider().Tracer("bpmn-engine")

	engine.timers = timer.NewFacade(engine.logger)
	engine.modelCache = expirable.NewLRU[string, *bpmn20.ProcessModelFacade](engine.modelCacheSize, nil, defaultModelCacheTTL)
	engine.flowNodes = newFlowNodePersistenceFacade(engine.persistence, engine.generateId)
	engine.correlations = newCorrelationService(engine.persistence)
	engine.externalTasks = newExternalTaskService(engine)
	engine.locks = semaphore.NewNamedLocks()
	engine.handlers = newHandlerFactory(engine)
	engine.instances = newInstanceRegistry(engine.aggregator, engine.handlers.joins)
	engine.executeProcess = newExecuteProcessService(engine)
	engine.resumeProcess = newResumeProcessService(engine)
	engine.cronjobs = newCronjobService(engine)
	return engine, nil
}

// Start schedules the cyclic timer start events of every deployed process.
func (engine *Engine) Start(ctx context.Context) error {
	if !engine.cronjobsEnabled {
		return nil
	}
	if err := engine.cronjobs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cronjobs: %w", err)
	}
	return nil
}

// Stop cancels every running process instance. Flow nodes stay resumable.
func (engine *Engine) Stop() {
	engine.cronjobs.Stop()
	engine.cancel()
	engine.timers.Stop()
	engine.instances.waitIdle(5 * time.Second)
}

// Name returns the name of the engine, only useful in case you control multiple ones
func (engine *Engine) Name() string {
	return engine.name
}

func (engine *Engine) Persistence() storage.Storage {
	return engine.persistence
}

func (engine *Engine) EventAggregator() messaging.EventAggregator {
	return engine.aggregator
}

func (engine *Engine) ExecuteProcess() *ExecuteProcessService {
	return engine.executeProcess
}

func (engine *Engine) ResumeProcess() *ResumeProcessService {
	return engine.resumeProcess
}

func (engine *Engine) Cronjobs() *CronjobService {
	return engine.cronjobs
}

func (engine *Engine) ExternalTasks() *ExternalTaskService {
	return engine.externalTasks
}

// FindProcessesById returns all registered processes with given ID
// result array is ordered by version number, from 1 (first) and largest version (last)
func (engine *Engine) FindProcessesById(ctx context.Context, id string) ([]runtime.ProcessDefinition, error) {
	return engine.persistence.FindProcessDefinitionsById(ctx, id)
}

// modelFacade returns the cached navigation index over a deployed definition.
func (engine *Engine) modelFacade(definition *runtime.ProcessDefinition) *bpmn20.ProcessModelFacade {
	key := definition.ProcessModelId + "@" + definition.Hash
	if facade, ok := engine.modelCache.Get(key); ok {
		return facade
	}
	definitions := definition.Definitions
	facade := bpmn20.NewProcessModelFacade(&definitions)
	engine.modelCache.Add(key, facade)
	return facade
}

// findDefinition returns the deployment with hash, falling back to the latest one.
func (engine *Engine) findDefinition(ctx context.Context, processModelId, hash string) (*runtime.ProcessDefinition, error) {
	if hash != "" {
		definitions, err := engine.persistence.FindProcessDefinitionsById(ctx, processModelId)
		if err != nil {
			return nil, fmt.Errorf("failed to find process definitions of %s: %w", processModelId, err)
		}
		for i := len(definitions) - 1; i >= 0; i-- {
			if definitions[i].Hash == hash {
				return &definitions[i], nil
			}
		}
	}
	definition, err := engine.persistence.FindLatestProcessDefinitionById(ctx, processModelId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Join(newValidationErrorf("no process with id=%s was deployed", processModelId), err)
		}
		return nil, fmt.Errorf("failed to find process definition %s: %w", processModelId, err)
	}
	return &definition, nil
}
