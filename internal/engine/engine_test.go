package engine

import (
	"context"
	"fmt"
	"slotkeeper/internal/events"
	"slotkeeper/internal/locks"
	"slotkeeper/internal/repository/memory"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)

type harness struct {
	eng   *Engine
	clock *clock.Manual
	ctx   context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		Log:               logger.Nop(),
		HoldDefaultTTL:    90 * time.Second,
		HoldMaxTTL:        120 * time.Second,
		SweepInterval:     time.Second,
		SweepBatch:        100,
		RelayInterval:     time.Hour,
		RelayBatch:        100,
		AlternativesLimit: 5,
	}
	clk := clock.NewManual(t0)
	eng := New(cfg, Options{
		Store:  memory.NewStore(),
		Locker: locks.NewMemory(2 * time.Second),
		Clock:  clk,
	})
	return &harness{eng: eng, clock: clk, ctx: context.Background()}
}

func (h *harness) unit(t *testing.T, resource string, startIn time.Duration, capacity int) *model.ResourceUnit {
	t.Helper()
	start := t0.Add(startIn)
	u := &model.ResourceUnit{
		ResourceID: resource,
		ProviderID: "provider-1",
		Category:   "consult",
		Start:      start,
		End:        start.Add(30 * time.Minute),
		Capacity:   capacity,
	}
	require.NoError(t, h.eng.Catalog.Register(h.ctx, u))
	return u
}

func (h *harness) acquire(unitID, holder string, ttlSeconds int) (*model.Hold, error) {
	return h.eng.Holds.Acquire(h.ctx, &model.AcquireHoldRequest{UnitID: unitID, HolderID: holder, TTLSeconds: ttlSeconds})
}

func (h *harness) remaining(t *testing.T, unitID string) int {
	t.Helper()
	u, err := h.eng.Catalog.Get(h.ctx, unitID)
	require.NoError(t, err)
	return u.Remaining
}

func (h *harness) holdState(t *testing.T, holdID string) model.HoldState {
	t.Helper()
	hold, err := h.eng.Holds.GetByID(h.ctx, holdID)
	require.NoError(t, err)
	return hold.State
}

func alternatives(t *testing.T, err error) []model.ResourceUnit {
	t.Helper()
	appErr := apperrors.AsAppError(err)
	alts, ok := appErr.Details["alternatives"].([]model.ResourceUnit)
	require.True(t, ok, "alternatives detail missing on %v", err)
	return alts
}

func TestConfirm_CapacityStaysSpent(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-a", 24*time.Hour, 1)

	h1, err := h.acquire(u.ID, "x", 90)
	require.NoError(t, err)
	assert.Equal(t, model.HoldActive, h1.State)
	assert.Equal(t, h1.IssuedAt.Add(90*time.Second), h1.ExpiresAt)

	_, err = h.acquire(u.ID, "y", 90)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoCapacity))

	res, err := h.eng.Bookings.Confirm(h.ctx, h1.ID, "abc")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, model.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, model.HoldConsumed, h.holdState(t, h1.ID))

	_, err = h.acquire(u.ID, "y", 90)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoCapacity))
	assert.Equal(t, 0, h.remaining(t, u.ID))
}

func TestSweep_ExpiryRestoresCapacity(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-b", 24*time.Hour, 1)

	h1, err := h.acquire(u.ID, "x", 2)
	require.NoError(t, err)

	h.clock.Advance(3 * time.Second)
	n, err := h.eng.Holds.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.HoldExpired, h.holdState(t, h1.ID))
	assert.Equal(t, 1, h.remaining(t, u.ID))

	h2, err := h.acquire(u.ID, "y", 2)
	require.NoError(t, err)
	assert.NotEqual(t, h1.ID, h2.ID)

	entries, err := h.eng.Audit.History(h.ctx, model.SubjectHold, h1.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sweeper", entries[1].Actor)
}

func TestConfirm_ReplayReturnsSameBooking(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-c", 24*time.Hour, 1)
	h1, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)

	first, err := h.eng.Bookings.Confirm(h.ctx, h1.ID, "abc")
	require.NoError(t, err)
	second, err := h.eng.Bookings.Confirm(h.ctx, h1.ID, "abc")
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Booking, second.Booking)

	stored, err := h.eng.Store.Bookings.FindByIdempotencyKey(h.ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, first.Booking.ID, stored.ID)
}

func TestAcquire_NoCapacitySuggestsSameResource(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-d", 24*time.Hour, 1)
	later := h.unit(t, "room-d", 26*time.Hour, 1)
	sooner := h.unit(t, "room-d", 25*time.Hour, 1)

	_, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)

	_, err = h.acquire(u.ID, "y", 0)
	require.True(t, apperrors.HasCode(err, apperrors.CodeNoCapacity))

	alts := alternatives(t, err)
	require.Len(t, alts, 2)
	assert.Equal(t, sooner.ID, alts[0].ID)
	assert.Equal(t, later.ID, alts[1].ID)
	for _, a := range alts {
		assert.NotEqual(t, u.ID, a.ID)
		assert.Equal(t, "room-d", a.ResourceID)
	}
}

func TestAcquire_NoOverbookingUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-e", 24*time.Hour, 3)

	var ok, full atomic.Int32
	var wg sync.WaitGroup
	for i := range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.acquire(u.ID, fmt.Sprintf("holder-%d", i), 0)
			switch {
			case err == nil:
				ok.Add(1)
			case apperrors.HasCode(err, apperrors.CodeNoCapacity):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok.Load())
	assert.Equal(t, int32(22), full.Load())
	assert.Equal(t, 0, h.remaining(t, u.ID))
}

func TestConfirm_ConcurrentSameKeyCreatesOneBooking(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-f", 24*time.Hour, 1)
	hold, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)

	var created atomic.Int32
	ids := make([]string, 10)
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.eng.Bookings.Confirm(h.ctx, hold.ID, "retry-key")
			if err != nil {
				t.Errorf("confirm: %v", err)
				return
			}
			if res.Created {
				created.Add(1)
			}
			ids[i] = res.Booking.ID
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestConfirm_KeyReusedForOtherHoldConflicts(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-g", 24*time.Hour, 2)
	h1, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)
	h2, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)

	first, err := h.eng.Bookings.Confirm(h.ctx, h1.ID, "shared-key")
	require.NoError(t, err)

	_, err = h.eng.Bookings.Confirm(h.ctx, h2.ID, "shared-key")
	require.True(t, apperrors.HasCode(err, apperrors.CodeIdempotencyConflict))
	assert.Equal(t, first.Booking.ID, apperrors.AsAppError(err).Details["booking_id"])

	assert.Equal(t, model.HoldActive, h.holdState(t, h2.ID))
	stored, err := h.eng.Bookings.GetByID(h.ctx, first.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, h1.ID, stored.HoldID)
}

func TestConfirm_RejectsClosedHolds(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-h", 24*time.Hour, 1)
	h.unit(t, "room-h", 48*time.Hour, 1)

	released, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)
	require.NoError(t, h.eng.Holds.Release(h.ctx, released.ID))

	_, err = h.eng.Bookings.Confirm(h.ctx, released.ID, "key-1")
	require.True(t, apperrors.HasCode(err, apperrors.CodeHoldInvalid))
	assert.Len(t, alternatives(t, err), 1)

	consumed, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)
	_, err = h.eng.Bookings.Confirm(h.ctx, consumed.ID, "key-2")
	require.NoError(t, err)
	_, err = h.eng.Bookings.Confirm(h.ctx, consumed.ID, "key-3")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeHoldInvalid))

	_, err = h.eng.Bookings.Confirm(h.ctx, "missing", "key-4")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeHoldNotFound))
}

func TestConfirm_ExpiredHold(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-i", 24*time.Hour, 2)
	late, err := h.acquire(u.ID, "x", 10)
	require.NoError(t, err)
	onTime, err := h.acquire(u.ID, "y", 10)
	require.NoError(t, err)

	// at exactly ExpiresAt the hold is still usable
	h.clock.Advance(10 * time.Second)
	_, err = h.eng.Bookings.Confirm(h.ctx, onTime.ID, "on-time")
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	_, err = h.eng.Bookings.Confirm(h.ctx, late.ID, "late-key")
	require.True(t, apperrors.HasCode(err, apperrors.CodeHoldExpired))
	assert.Equal(t, model.HoldActive, h.holdState(t, late.ID))

	n, err := h.eng.Holds.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = h.eng.Bookings.Confirm(h.ctx, late.ID, "late-key")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeHoldExpired))
	assert.Equal(t, model.HoldExpired, h.holdState(t, late.ID))
	assert.Equal(t, 1, h.remaining(t, u.ID))
}

func TestHold_TerminalStatesAreFinal(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-j", 24*time.Hour, 1)
	hold, err := h.acquire(u.ID, "x", 5)
	require.NoError(t, err)

	h.clock.Advance(6 * time.Second)
	_, err = h.eng.Holds.Sweep(h.ctx)
	require.NoError(t, err)

	require.NoError(t, h.eng.Holds.Release(h.ctx, hold.ID))
	assert.Equal(t, model.HoldExpired, h.holdState(t, hold.ID))
	assert.Equal(t, 1, h.remaining(t, u.ID))

	n, err := h.eng.Holds.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelease(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-k", 24*time.Hour, 1)
	hold, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)

	require.NoError(t, h.eng.Holds.Release(h.ctx, hold.ID))
	require.NoError(t, h.eng.Holds.Release(h.ctx, hold.ID))
	assert.Equal(t, model.HoldReleased, h.holdState(t, hold.ID))
	assert.Equal(t, 1, h.remaining(t, u.ID))

	err = h.eng.Holds.Release(h.ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeHoldNotFound))
}

func TestAcquire_Rejections(t *testing.T) {
	h := newHarness(t)

	_, err := h.acquire("missing", "x", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnitNotFound))

	_, err = h.acquire("", "x", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	started := h.unit(t, "room-l", time.Hour, 1)
	h.clock.Advance(2 * time.Hour)
	_, err = h.acquire(started.ID, "x", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoCapacity))
}

func TestAcquire_TTLIsClamped(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-m", 24*time.Hour, 2)

	long, err := h.acquire(u.ID, "x", 600)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, long.ExpiresAt.Sub(long.IssuedAt))

	def, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, def.ExpiresAt.Sub(def.IssuedAt))
}

func TestCancelAndRestore(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-n", 24*time.Hour, 1)
	hold, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)
	res, err := h.eng.Bookings.Confirm(h.ctx, hold.ID, "cancel-me")
	require.NoError(t, err)
	id := res.Booking.ID

	_, err = h.eng.Bookings.RestoreCapacity(h.ctx, id)
	require.True(t, apperrors.HasCode(err, apperrors.CodeRestoreRejected))

	cancelled, err := h.eng.Bookings.Cancel(h.ctx, id, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.Equal(t, 0, h.remaining(t, u.ID))

	_, err = h.eng.Bookings.Cancel(h.ctx, id, "again")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyCancelled))

	restored, err := h.eng.Bookings.RestoreCapacity(h.ctx, id)
	require.NoError(t, err)
	assert.True(t, restored.CapacityRestored)
	assert.Equal(t, 1, h.remaining(t, u.ID))

	_, err = h.eng.Bookings.RestoreCapacity(h.ctx, id)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRestoreRejected))

	_, err = h.eng.Bookings.Cancel(h.ctx, "missing", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBookingNotFound))
}

func TestRestore_RejectedAfterReschedule(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t, "room-o", 24*time.Hour, 1)
	hold, err := h.acquire(u.ID, "x", 0)
	require.NoError(t, err)
	res, err := h.eng.Bookings.Confirm(h.ctx, hold.ID, "resched")
	require.NoError(t, err)
	_, err = h.eng.Bookings.Cancel(h.ctx, res.Booking.ID, "")
	require.NoError(t, err)

	_, err = h.eng.Catalog.Reschedule(h.ctx, u.ID, model.TimeWindow{
		Start: u.Start.Add(time.Hour),
		End:   u.End.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = h.eng.Bookings.RestoreCapacity(h.ctx, res.Booking.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeRestoreRejected))
	assert.Equal(t, "unit was rescheduled", apperrors.AsAppError(err).Details["reason"])
	assert.Equal(t, 0, h.remaining(t, u.ID))
}

func TestEvents_MonotonicPerSubject(t *testing.T) {
	h := newHarness(t)
	feed, cancel := h.eng.Fanout.Subscribe(100)
	defer cancel()

	u := h.unit(t, "room-p", 24*time.Hour, 1)
	for i := range 3 {
		hold, err := h.acquire(u.ID, "x", 0)
		require.NoError(t, err)
		if i < 2 {
			require.NoError(t, h.eng.Holds.Release(h.ctx, hold.ID))
			continue
		}
		res, err := h.eng.Bookings.Confirm(h.ctx, hold.ID, "final")
		require.NoError(t, err)
		_, err = h.eng.Bookings.Cancel(h.ctx, res.Booking.ID, "")
		require.NoError(t, err)
	}

	n, err := h.eng.Relay.Flush(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	tracker := events.NewVersionTracker()
	var types []model.EventType
	for range n {
		e := <-feed
		assert.Equal(t, events.Applied, tracker.Observe(e.SubjectID, e.Version))
		if e.SubjectID == u.ID {
			types = append(types, e.Type)
		}
	}
	assert.Equal(t, []model.EventType{
		model.EventUnitReserved, model.EventUnitReleased,
		model.EventUnitReserved, model.EventUnitReleased,
		model.EventUnitReserved,
	}, types)
	assert.Equal(t, int64(5), tracker.Last(u.ID))
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(h.ctx)
	h.eng.Start(ctx)
	cancel()
	require.NoError(t, h.eng.Stop(context.Background()))
}
