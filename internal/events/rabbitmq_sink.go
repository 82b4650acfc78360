package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errNotAcked = errors.New("rabbitmq broker nacked the message")

// confirmChannel publishes one message and blocks until the broker confirms it.
type confirmChannel interface {
	PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) (bool, error)
	IsClosed() bool
	Close() error
}

type dialFunc func(url, exchange string) (confirmChannel, error)

// RabbitMQSink publishes events to a durable fanout exchange in confirm mode, so a
// delivery only counts once the broker has acked it. The connection is re-dialed
// lazily after a failure.
type RabbitMQSink struct {
	url      string
	exchange string
	log      *logger.Logger
	dial     dialFunc

	mu sync.Mutex
	ch confirmChannel
}

func NewRabbitMQSink(url, exchange string, log *logger.Logger) *RabbitMQSink {
	return &RabbitMQSink{url: url, exchange: exchange, log: log, dial: dialAMQP}
}

func (s *RabbitMQSink) Name() string { return "rabbitmq" }

func (s *RabbitMQSink) channel() (confirmChannel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	s.reset()

	ch, err := s.dial(s.url, s.exchange)
	if err != nil {
		return nil, err
	}
	s.ch = ch
	s.log.Info("Connected to RabbitMQ", "exchange", s.exchange)
	return ch, nil
}

func (s *RabbitMQSink) reset() {
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
}

func (s *RabbitMQSink) Deliver(ctx context.Context, e model.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    e.Timestamp,
		AppId:        SourceName,
		Headers: amqp.Table{
			"subject_id": e.SubjectID,
			"version":    e.Version,
		},
		Body: body,
	}
	acked, err := ch.PublishConfirmed(ctx, s.exchange, e.SubjectID, pub)
	if err != nil {
		s.reset()
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	if !acked {
		return fmt.Errorf("event %s: %w", e.ID, errNotAcked)
	}
	return nil
}

func (s *RabbitMQSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// amqpChannel owns one connection and its single confirm-mode channel.
type amqpChannel struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialAMQP(url, exchange string) (confirmChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	c := &amqpChannel{conn: conn, ch: ch}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare failed: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("rabbitmq confirm mode failed: %w", err)
	}
	return c, nil
}

func (c *amqpChannel) PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) (bool, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return false, err
	}
	if dc == nil {
		return false, errors.New("channel is not in confirm mode")
	}
	return dc.WaitContext(ctx)
}

func (c *amqpChannel) IsClosed() bool {
	return c.ch.IsClosed()
}

func (c *amqpChannel) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}
