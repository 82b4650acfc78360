package events

import (
	"fmt"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/kafka"
	kafka_config "slotkeeper/pkg/kafka/config"
	kafka_middleware "slotkeeper/pkg/kafka/middleware"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildSinks creates the external sinks named in cfg.EventSinks.
func BuildSinks(cfg *config.Config, reg prometheus.Registerer) ([]Sink, error) {
	var sinks []Sink

	for _, name := range cfg.EventSinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, NewLogSink(cfg.Log.Component("events")))

		case config.SinkKafka:
			kcfg, err := kafka_config.Load()
			if err != nil {
				return nil, fmt.Errorf("invalid kafka configuration: %w", err)
			}
			kcfg.LogConfiguration(cfg.Log)

			producer, err := kafka.NewProducer(kcfg, cfg.EventsTopic, cfg.Log)
			if err != nil {
				return nil, fmt.Errorf("failed to create kafka producer: %w", err)
			}
			if kcfg.EnableMiddleware {
				producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
				producer.Use(kafka_middleware.NewMetrics(reg, "slotkeeper").ProducerMiddleware())
			}
			sinks = append(sinks, NewKafkaSink(producer))

		case config.SinkRabbitMQ:
			sinks = append(sinks, NewRabbitMQSink(cfg.RabbitMQURL, cfg.EventsTopic, cfg.Log.Component("rabbitmq")))

		default:
			return nil, fmt.Errorf("unknown event sink %q", name)
		}
	}
	return sinks, nil
}
