package events

import (
	"context"
	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/model"
)

type messageWriter interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaSink writes events keyed by subject id, so one subject stays on one partition.
type KafkaSink struct {
	producer messageWriter
}

func NewKafkaSink(producer *kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, e model.Event) error {
	msg, err := EncodeKafka(e)
	if err != nil {
		return err
	}
	return s.producer.Publish(ctx, msg)
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// EncodeKafka builds the wire message of e: JSON body plus routing headers.
func EncodeKafka(e model.Event) (kafka.Message, error) {
	return kafka.NewMessage().
		WithSubject(e.SubjectID).
		WithEventID(e.ID).
		WithEventType(string(e.Type)).
		WithVersion(e.Version).
		WithTimestamp(e.Timestamp).
		WithSource(SourceName).
		WithSchemaVersion(SchemaVersion).
		WithValue(e).
		Build()
}

// DecodeKafka is the inverse of EncodeKafka.
func DecodeKafka(msg kafka.Message) (model.Event, error) {
	var e model.Event
	if err := msg.DecodeValue(&e); err != nil {
		return model.Event{}, kafka.NewPermanentError("malformed event payload", err)
	}
	return e, nil
}
