package bpmn

import (
	"github.com/hashicorp/go-hclog"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/messaging"
	"github.com/pbinitiative/zenflow/pkg/script"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

type EngineOption = func(*Engine)

func EngineWithExporter(exporter exporter.EventExporter) EngineOption {
	return func(engine *Engine) { engine.AddEventExporter(exporter) }
}

func EngineWithStorage(persistence storage.Storage) EngineOption {
	return func(engine *Engine) {
		engine.persistence = persistence
	}
}

func EngineWithName(name string) EngineOption {
	return func(engine *Engine) {
		engine.name = name
	}
}

func EngineWithLogger(logger hclog.Logger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// EngineWithEventAggregator replaces the in-memory coordination channel.
func EngineWithEventAggregator(aggregator messaging.EventAggregator) EngineOption {
	return func(engine *Engine) {
		engine.aggregator = aggregator
	}
}

func EngineWithClaimChecker(checker ClaimChecker) EngineOption {
	return func(engine *Engine) {
		engine.claimChecker = checker
	}
}

// EngineWithScriptPool sizes the pool of JS virtual machines.
func EngineWithScriptPool(min, max int) EngineOption {
	return func(engine *Engine) {
		engine.scriptPoolMin = min
		engine.scriptPoolMax = max
	}
}

func EngineWithJsRuntime(runtime script.JsRuntime) EngineOption {
	return func(engine *Engine) {
		engine.jsRuntime = runtime
	}
}

func EngineWithModelCacheSize(size int) EngineOption {
	return func(engine *Engine) {
		if size > 0 {
			engine.modelCacheSize = size
		}
	}
}

// EngineWithCronjobs toggles scheduling of cyclic timer start events by Start.
func EngineWithCronjobs(enabled bool) EngineOption {
	return func(engine *Engine) {
		engine.cronjobsEnabled = enabled
	}
}
