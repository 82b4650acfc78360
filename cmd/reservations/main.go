package main

import (
	"context"
	"slotkeeper/internal/api"
	"slotkeeper/internal/engine"
	"slotkeeper/internal/events"
	eventhandler "slotkeeper/internal/events/handler"
	"slotkeeper/internal/locks"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/repository"
	"slotkeeper/internal/repository/memory"
	"slotkeeper/pkg/app"
	"slotkeeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	if cfg.NeedsMongo() {
		cfg.SetMongo()
	}
	if cfg.NeedsRedis() {
		cfg.SetRedis()
	}

	cfg.Log.Info("Starting Reservations service")
	eng := initEngine(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)

	serverApp := app.NewApplication(cfg)
	serverApp.Stream(eventhandler.StreamPath, api.Stream(eng, cfg.Log))
	serverApp.SetApp(api.Routes(eng, cfg.Log), api.Ops(cfg.Client, cfg.Log), prometheus.DefaultGatherer)
	serverApp.OnShutdown(func(shutdownCtx context.Context) error {
		cancel()
		return eng.Stop(shutdownCtx)
	})
	serverApp.Run()
}

func initEngine(cfg *config.Config) *engine.Engine {
	engineMetrics := metrics.Default()

	var store *repository.Store
	if cfg.StoreBackend == config.BackendMemory {
		cfg.Log.Warn("Using in-memory store; state is lost on restart")
		store = memory.NewStore()
	} else {
		store = repository.NewMongoStore(cfg)
	}

	locker, err := locks.New(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to build locker", "error", err)
	}
	locker = locks.WithWaitObserver(locker, engineMetrics.ObserveLockWait)

	sinks, err := events.BuildSinks(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		cfg.Log.Fatal("Failed to build event sinks", "error", err)
	}

	eng := engine.New(cfg, engine.Options{
		Store:   store,
		Locker:  locker,
		Sinks:   sinks,
		Metrics: engineMetrics,
	})

	cfg.Log.Info("Reservation engine initialized",
		"store_backend", cfg.StoreBackend,
		"lock_backend", cfg.LockBackend,
		"sinks", len(sinks),
	)
	return eng
}
