package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pbinitiative/zenflow/internal/config"
	"github.com/pbinitiative/zenflow/internal/log"
	"github.com/pbinitiative/zenflow/internal/otel"
	"github.com/pbinitiative/zenflow/internal/profile"
	"github.com/pbinitiative/zenflow/internal/rest"
	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter/zaplog"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/pbinitiative/zenflow/pkg/storage/bolt"
	"github.com/pbinitiative/zenflow/pkg/storage/inmemory"
)

func main() {
	profile.InitProfile()
	log.Init()

	appContext, ctxCancel := context.WithCancel(context.Background())

	conf := config.InitConfig()

	openTelemetry, err := otel.SetupOtel(conf.Tracing)
	if err != nil {
		log.Error("Failed to set up OTEL: %s", err)
		os.Exit(1)
	}

	persistence, closeStorage, err := openStorage(conf.Persistence)
	if err != nil {
		log.Error("Failed to open storage: %s", err)
		os.Exit(1)
	}

	options := []bpmn.EngineOption{
		bpmn.EngineWithName(conf.Name),
		bpmn.EngineWithLogger(log.Named("engine")),
		bpmn.EngineWithStorage(persistence),
		bpmn.EngineWithScriptPool(conf.Engine.ScriptPoolMin, conf.Engine.ScriptPoolMax),
		bpmn.EngineWithModelCacheSize(conf.Engine.ModelCacheSize),
		bpmn.EngineWithCronjobs(conf.Engine.CronjobsEnabled),
	}
	var audit *zaplog.Exporter
	if conf.Audit.Enabled {
		audit, err = zaplog.NewDefault(conf.Audit.Development)
		if err != nil {
			log.Error("Failed to create audit exporter: %s", err)
			os.Exit(1)
		}
		options = append(options, bpmn.EngineWithExporter(audit))
	}
	engine, err := bpmn.NewEngine(options...)
	if err != nil {
		log.Error("Failed to create engine: %s", err)
		os.Exit(1)
	}
	if err := engine.Start(appContext); err != nil {
		log.Error("Failed to start engine: %s", err)
		os.Exit(1)
	}
	if conf.Engine.ResumeOnStart {
		resumed, err := engine.ResumeProcess().FindAndResumeInterruptedProcessInstances(appContext, runtime.Identity{})
		if err != nil {
			log.Error("Failed to resume interrupted process instances: %s", err)
		} else if len(resumed) > 0 {
			log.Info("Resuming %d interrupted process instances", len(resumed))
		}
	}

	// Start the public API
	svr := rest.NewServer(engine, conf)
	svr.Start()

	appStop := make(chan os.Signal, 2)
	handleSigterm(appStop, appContext)

	// cleanup
	svr.Stop(appContext)
	engine.Stop()
	ctxCancel()
	if audit != nil {
		_ = audit.Sync()
	}
	if err := closeStorage(); err != nil {
		log.Error("failed to close storage: %s", err)
	}
	openTelemetry.Stop(context.Background())
}

func openStorage(conf config.Persistence) (storage.Storage, func() error, error) {
	if conf.Type == config.PersistenceBolt {
		boltStorage, err := bolt.Open(conf.Bolt.Path, conf.Bolt.Timeout)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using bolt storage at %s", conf.Bolt.Path)
		return boltStorage, boltStorage.Close, nil
	}
	log.Warn("Using in-memory storage, process state is lost on shutdown")
	return inmemory.NewStorage(), func() error { return nil }, nil
}

func handleSigterm(appStop chan os.Signal, ctx context.Context) {
	signal.Notify(appStop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	sig := <-appStop
	log.Infof(ctx, "Received %s. Shutting down", sig.String())
}
