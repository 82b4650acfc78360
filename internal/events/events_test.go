package events

import (
	"context"
	"errors"
	"slotkeeper/internal/repository/memory"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []model.Event
	fail func(e model.Event) error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, e model.Event) error {
	if s.fail != nil {
		if err := s.fail(e); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) versions(subject string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, e := range s.got {
		if e.SubjectID == subject {
			out = append(out, e.Version)
		}
	}
	return out
}

func publish(t *testing.T, p *Publisher, subject string, typ model.EventType) model.Event {
	t.Helper()
	e := &model.Event{Type: typ, SubjectID: subject, Timestamp: t0}
	require.NoError(t, p.Publish(context.Background(), e))
	return *e
}

func TestPublisher_AssignsConsecutiveVersionsPerSubject(t *testing.T) {
	store := memory.NewStore()
	p := NewPublisher(store.Versions, store.Outbox)

	a1 := publish(t, p, "unit-a", model.EventUnitReserved)
	b1 := publish(t, p, "unit-b", model.EventUnitReserved)
	a2 := publish(t, p, "unit-a", model.EventUnitReleased)

	assert.Equal(t, int64(1), a1.Version)
	assert.Equal(t, int64(1), b1.Version)
	assert.Equal(t, int64(2), a2.Version)
	assert.NotEmpty(t, a1.ID)

	current, err := p.CurrentVersion(context.Background(), "unit-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), current)
}

func TestPublisher_RollsBackWithTransaction(t *testing.T) {
	store := memory.NewStore()
	p := NewPublisher(store.Versions, store.Outbox)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, p.Publish(txCtx, &model.Event{Type: model.EventUnitReserved, SubjectID: "u"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := store.Outbox.Pending(ctx, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)

	e := publish(t, p, "u", model.EventUnitReserved)
	assert.Equal(t, int64(1), e.Version)
}

func TestPublisher_Notifies(t *testing.T) {
	store := memory.NewStore()
	p := NewPublisher(store.Versions, store.Outbox)
	calls := 0
	p.OnPublish(func() { calls++ })
	publish(t, p, "u", model.EventUnitReserved)
	assert.Equal(t, 1, calls)
}

func TestRelay_DeliversInVersionOrder(t *testing.T) {
	store := memory.NewStore()
	p := NewPublisher(store.Versions, store.Outbox)
	for range 3 {
		publish(t, p, "unit-a", model.EventUnitReserved)
		publish(t, p, "booking-b", model.EventBookingConfirmed)
	}

	sink := &recordingSink{name: "rec"}
	relay := NewRelay(store.Outbox, []Sink{sink}, clock.NewFixed(t0), logger.Nop(), RelayOptions{Batch: 10})

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []int64{1, 2, 3}, sink.versions("unit-a"))
	assert.Equal(t, []int64{1, 2, 3}, sink.versions("booking-b"))

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_FailureHoldsBackSubject(t *testing.T) {
	store := memory.NewStore()
	p := NewPublisher(store.Versions, store.Outbox)
	for range 3 {
		publish(t, p, "unit-a", model.EventUnitReserved)
	}
	publish(t, p, "unit-b", model.EventUnitReserved)

	failing := true
	sink := &recordingSink{name: "rec", fail: func(e model.Event) error {
		if failing && e.SubjectID == "unit-a" && e.Version == 2 {
			return errors.New("broker down")
		}
		return nil
	}}
	healthy := &recordingSink{name: "other"}
	relay := NewRelay(store.Outbox, []Sink{sink, healthy}, clock.NewFixed(t0), logger.Nop(), RelayOptions{Batch: 10})

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1}, sink.versions("unit-a"))
	assert.Equal(t, []int64{1}, sink.versions("unit-b"))
	// the healthy sink saw version 2 but it stays pending until every sink accepts it
	assert.Equal(t, []int64{1, 2}, healthy.versions("unit-a"))

	pending, err := store.Outbox.Pending(context.Background(), 10, nil)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "rec: broker down", pending[0].LastError)

	failing = false
	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2, 3}, sink.versions("unit-a"))
	assert.Equal(t, []int64{1, 2, 2, 3}, healthy.versions("unit-a"))
}

func TestRelay_StuckSubjectDoesNotStarveLaterSubjects(t *testing.T) {
	store := memory.NewStore()
	p := NewPublisher(store.Versions, store.Outbox)
	for range 5 {
		publish(t, p, "unit-a", model.EventUnitReserved)
	}
	publish(t, p, "unit-b", model.EventUnitReserved)
	publish(t, p, "unit-c", model.EventUnitReserved)

	sink := &recordingSink{name: "rec", fail: func(e model.Event) error {
		if e.SubjectID == "unit-a" {
			return errors.New("rejected")
		}
		return nil
	}}
	relay := NewRelay(store.Outbox, []Sink{sink}, clock.NewFixed(t0), logger.Nop(), RelayOptions{Batch: 3})

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, sink.versions("unit-a"))
	assert.Equal(t, []int64{1}, sink.versions("unit-b"))
	assert.Equal(t, []int64{1}, sink.versions("unit-c"))

	pending, err := store.Outbox.Pending(context.Background(), 10, nil)
	require.NoError(t, err)
	require.Len(t, pending, 5)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Zero(t, pending[1].Attempts)
}

func TestRelay_RunFlushesOnNotify(t *testing.T) {
	store := memory.NewStore()
	p := NewPublisher(store.Versions, store.Outbox)
	sink := &recordingSink{name: "rec"}
	relay := NewRelay(store.Outbox, []Sink{sink}, clock.NewSystem(), logger.Nop(), RelayOptions{Interval: time.Hour})
	p.OnPublish(relay.Notify)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	publish(t, p, "unit-a", model.EventUnitReserved)
	assert.Eventually(t, func() bool {
		return len(sink.versions("unit-a")) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestFanout_SubscribeAndCancel(t *testing.T) {
	f := NewFanout(logger.Nop())
	ch, cancel := f.Subscribe(1)

	require.NoError(t, f.Deliver(context.Background(), model.Event{SubjectID: "s", Version: 1}))
	// buffer full, dropped
	require.NoError(t, f.Deliver(context.Background(), model.Event{SubjectID: "s", Version: 2}))

	e := <-ch
	assert.Equal(t, int64(1), e.Version)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestVersionTracker(t *testing.T) {
	tr := NewVersionTracker()

	assert.Equal(t, Applied, tr.Observe("s", 1))
	assert.Equal(t, Duplicate, tr.Observe("s", 1))
	assert.Equal(t, Applied, tr.Observe("s", 2))
	assert.Equal(t, Gap, tr.Observe("s", 4))
	assert.Equal(t, int64(2), tr.Last("s"))

	tr.Reset("s", 4)
	assert.Equal(t, Duplicate, tr.Observe("s", 4))
	assert.Equal(t, Applied, tr.Observe("s", 5))

	tr.Reset("s", 1)
	assert.Equal(t, int64(5), tr.Last("s"))

	assert.Equal(t, Gap, tr.Observe("fresh", 3))
	assert.Equal(t, "gap", Gap.String())
}

func TestKafkaEncoding(t *testing.T) {
	e := model.Event{
		ID:        "evt-1",
		Type:      model.EventBookingConfirmed,
		SubjectID: "booking-1",
		Version:   7,
		Timestamp: t0,
		Payload:   map[string]any{"hold_id": "h1"},
	}
	msg, err := EncodeKafka(e)
	require.NoError(t, err)

	assert.Equal(t, "booking-1", msg.Key)
	assert.Equal(t, int64(7), msg.GetVersion())
	assert.Equal(t, "BOOKING_CONFIRMED", msg.GetEventType())
	assert.Equal(t, SourceName, msg.Headers[kafka.HeaderSource])

	back, err := DecodeKafka(msg)
	require.NoError(t, err)
	assert.Equal(t, e.SubjectID, back.SubjectID)
	assert.Equal(t, e.Version, back.Version)
	assert.Equal(t, "h1", back.Payload["hold_id"])

	_, err = DecodeKafka(kafka.Message{Value: []byte("{")})
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))
}
