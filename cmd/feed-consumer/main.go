package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"slotkeeper/internal/feed"
	"slotkeeper/pkg/client"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/kafka"
	kafka_config "slotkeeper/pkg/kafka/config"
	kafka_middleware "slotkeeper/pkg/kafka/middleware"
	"slotkeeper/pkg/model"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const ServiceName = "feed-consumer"

func main() {
	cfg := config.Load(ServiceName)

	kcfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid kafka configuration", "error", err)
	}
	kcfg.LogConfiguration(cfg.Log)

	handler := feed.NewHandler(
		client.NewEventsClient(cfg.APIBaseURL),
		func(_ context.Context, e model.Event) error {
			cfg.Log.Info("Event applied",
				"type", e.Type,
				"subject_id", e.SubjectID,
				"version", e.Version,
			)
			return nil
		},
		cfg.Log.Component("feed"),
		feed.OnResync(func(_ context.Context, subjectID string, version int64) {
			cfg.Log.Info("Subject resynchronized", "subject_id", subjectID, "version", version)
		}),
		feed.WithRegisterer(prometheus.DefaultRegisterer),
	)

	consumer, err := kafka.NewConsumer(kcfg, cfg.EventsTopic, handler.Handle, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create kafka consumer", "error", err)
	}
	if kcfg.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(kafka_middleware.NewMetrics(prometheus.DefaultRegisterer, "slotkeeper").ConsumerMiddleware())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.NewHttpClient(cfg.APIBaseURL).WaitForHealthy(ctx, 30*time.Second); err != nil {
		cfg.Log.Warn("Reservations API not reachable, gap recovery will retry", "api", cfg.APIBaseURL, "error", err)
	}

	cfg.Log.Info("Starting feed consumer", "topic", cfg.EventsTopic, "api", cfg.APIBaseURL)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Feed consumer stopped", "error", err)
	}
	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close consumer", "error", err)
	}
	cfg.Log.Info("Feed consumer stopped")
}
