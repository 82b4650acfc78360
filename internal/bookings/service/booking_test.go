package service

import (
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestUsable(t *testing.T) {
	tests := []struct {
		name  string
		hold  model.Hold
		code  string
		valid bool
	}{
		{"active", model.Hold{State: model.HoldActive, ExpiresAt: now.Add(time.Second)}, "", true},
		{"active at expiry", model.Hold{State: model.HoldActive, ExpiresAt: now}, "", true},
		{"active past expiry", model.Hold{State: model.HoldActive, ExpiresAt: now.Add(-time.Second)}, apperrors.CodeHoldExpired, false},
		{"expired", model.Hold{State: model.HoldExpired, ExpiresAt: now.Add(time.Hour)}, apperrors.CodeHoldExpired, false},
		{"released", model.Hold{State: model.HoldReleased, ExpiresAt: now.Add(time.Hour)}, apperrors.CodeHoldInvalid, false},
		{"consumed", model.Hold{State: model.HoldConsumed, ExpiresAt: now.Add(time.Hour)}, apperrors.CodeHoldInvalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := usable(&tt.hold, now)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestUnitBlocker(t *testing.T) {
	start := now.Add(24 * time.Hour)
	booking := &model.Booking{UnitStart: start, UnitEnd: start.Add(time.Hour), UnitVersion: 1}
	base := model.ResourceUnit{Start: start, End: start.Add(time.Hour), Version: 1, Capacity: 2, Remaining: 1}

	tests := []struct {
		name   string
		mutate func(u *model.ResourceUnit)
		want   string
	}{
		{"restorable", func(u *model.ResourceUnit) {}, ""},
		{"retired", func(u *model.ResourceUnit) { u.Retired = true }, "unit is retired"},
		{"started", func(u *model.ResourceUnit) { u.Start = now.Add(-time.Minute) }, "unit has already started"},
		{"version bumped", func(u *model.ResourceUnit) { u.Version = 2 }, "unit was rescheduled"},
		{"window moved", func(u *model.ResourceUnit) { u.End = u.End.Add(time.Minute) }, "unit was rescheduled"},
		{"full", func(u *model.ResourceUnit) { u.Remaining = 2 }, "unit is already at full capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := base
			tt.mutate(&u)
			assert.Equal(t, tt.want, unitBlocker(&u, booking, now))
		})
	}
}

func TestRestoreBlocker(t *testing.T) {
	assert.Equal(t, "booking is not cancelled", restoreBlocker(&model.Booking{Status: model.BookingConfirmed}))
	assert.Equal(t, "capacity already restored", restoreBlocker(&model.Booking{Status: model.BookingCancelled, CapacityRestored: true}))
	assert.Empty(t, restoreBlocker(&model.Booking{Status: model.BookingCancelled}))
}
