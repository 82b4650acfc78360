package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"slotkeeper/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ProducerMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test")
	mw := m.ProducerMiddleware()
	msg := kafka.Message{Topic: "events", Key: "u1", Value: []byte("{}"), Headers: map[string]string{}}

	_ = mw(context.Background(), msg, func(context.Context, kafka.Message) error { return nil })
	_ = mw(context.Background(), msg, func(context.Context, kafka.Message) error { return errors.New("down") })
	_ = mw(context.Background(), msg, func(context.Context, kafka.Message) error { return nil })

	assert.Equal(t, 2.0, testutil.ToFloat64(m.published.WithLabelValues("events", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("events", "error")))
}

func TestMetrics_ConsumerMiddlewarePassesError(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test")
	want := errors.New("boom")

	err := m.ConsumerMiddleware()(context.Background(), kafka.Message{Topic: "events"}, func(context.Context, kafka.Message) error {
		return want
	})

	assert.ErrorIs(t, err, want)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.consumed.WithLabelValues("events", "error")))
}
