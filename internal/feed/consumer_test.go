package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"slotkeeper/internal/events"
	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	versions map[string]int64
	err      error
	calls    int
}

func (f *fakeSource) SubjectVersion(_ context.Context, subjectID string) (int64, error) {
	f.calls++
	return f.versions[subjectID], f.err
}

func event(subject string, version int64) model.Event {
	return model.Event{
		ID:        fmt.Sprintf("%s-%d", subject, version),
		Type:      model.EventUnitReserved,
		SubjectID: subject,
		Version:   version,
		Timestamp: time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestHandler_AppliesInOrderAndDropsDuplicates(t *testing.T) {
	var applied []int64
	h := NewHandler(&fakeSource{}, func(_ context.Context, e model.Event) error {
		applied = append(applied, e.Version)
		return nil
	}, logger.Nop())
	ctx := context.Background()

	for _, v := range []int64{1, 2, 2, 1, 3} {
		require.NoError(t, h.HandleEvent(ctx, event("u1", v)))
	}

	assert.Equal(t, []int64{1, 2, 3}, applied)
	assert.Equal(t, int64(3), h.Tracker().Last("u1"))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.outcomes.WithLabelValues("duplicate")))
}

func TestHandler_GapRebasesOnServiceVersion(t *testing.T) {
	source := &fakeSource{versions: map[string]int64{"u1": 5}}
	var applied []int64
	var resynced int64
	h := NewHandler(source, func(_ context.Context, e model.Event) error {
		applied = append(applied, e.Version)
		return nil
	}, logger.Nop(), OnResync(func(_ context.Context, _ string, v int64) { resynced = v }))
	ctx := context.Background()

	require.NoError(t, h.HandleEvent(ctx, event("u1", 1)))
	require.NoError(t, h.HandleEvent(ctx, event("u1", 4)))
	require.NoError(t, h.HandleEvent(ctx, event("u1", 5)))
	require.NoError(t, h.HandleEvent(ctx, event("u1", 6)))

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, int64(5), resynced)
	assert.Equal(t, []int64{1, 6}, applied)
}

func TestHandler_GapAheadOfServiceAppliesEvent(t *testing.T) {
	source := &fakeSource{versions: map[string]int64{"u1": 1}}
	var applied []int64
	h := NewHandler(source, func(_ context.Context, e model.Event) error {
		applied = append(applied, e.Version)
		return nil
	}, logger.Nop())

	require.NoError(t, h.HandleEvent(context.Background(), event("u1", 3)))

	assert.Equal(t, []int64{3}, applied)
	assert.Equal(t, int64(3), h.Tracker().Last("u1"))
}

func TestHandler_FailedApplyIsRetried(t *testing.T) {
	fail := true
	var applied []int64
	h := NewHandler(&fakeSource{}, func(_ context.Context, e model.Event) error {
		if fail {
			return errors.New("downstream unavailable")
		}
		applied = append(applied, e.Version)
		return nil
	}, logger.Nop())
	ctx := context.Background()

	require.Error(t, h.HandleEvent(ctx, event("u1", 1)))
	fail = false
	require.NoError(t, h.HandleEvent(ctx, event("u1", 1)))

	assert.Equal(t, []int64{1}, applied)
}

func TestHandler_SourceFailureIsTransient(t *testing.T) {
	h := NewHandler(&fakeSource{err: errors.New("connection refused")}, nil, logger.Nop())

	err := h.HandleEvent(context.Background(), event("u1", 7))

	require.Error(t, err)
	assert.Equal(t, kafka.ErrorTypeTransient, kafka.ClassifyError(err))
	assert.Zero(t, h.Tracker().Last("u1"))
}

func TestHandler_DecodesKafkaMessages(t *testing.T) {
	reg := prometheus.NewRegistry()
	var got model.Event
	h := NewHandler(&fakeSource{}, func(_ context.Context, e model.Event) error {
		got = e
		return nil
	}, logger.Nop(), WithRegisterer(reg))

	msg, err := events.EncodeKafka(event("b1", 1))
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, "b1", got.SubjectID)

	bad := kafka.Message{Key: "b1", Value: []byte("{")}
	err = h.Handle(context.Background(), bad)
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))
}
