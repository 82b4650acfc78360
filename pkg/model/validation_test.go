package model_test

import (
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/validation"
	"testing"
	"time"
)

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestResourceUnit_Validation(t *testing.T) {
	valid := func() *model.ResourceUnit {
		return &model.ResourceUnit{
			ResourceID: "room-1",
			ProviderID: "clinic-1",
			Start:      base,
			End:        base.Add(30 * time.Minute),
			Capacity:   2,
			Remaining:  2,
		}
	}

	tests := []struct {
		name        string
		mutate      func(u *model.ResourceUnit)
		expectValid bool
	}{
		{name: "valid unit", mutate: func(u *model.ResourceUnit) {}, expectValid: true},
		{name: "missing resource", mutate: func(u *model.ResourceUnit) { u.ResourceID = "" }},
		{name: "missing provider", mutate: func(u *model.ResourceUnit) { u.ProviderID = "" }},
		{name: "end before start", mutate: func(u *model.ResourceUnit) { u.End = u.Start.Add(-time.Minute) }},
		{name: "zero capacity", mutate: func(u *model.ResourceUnit) { u.Capacity = 0; u.Remaining = 0 }},
		{name: "remaining above capacity", mutate: func(u *model.ResourceUnit) { u.Remaining = 3 }},
		{name: "negative remaining", mutate: func(u *model.ResourceUnit) { u.Remaining = -1 }},
	}

	v := validation.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := valid()
			tt.mutate(u)
			err := v.Struct(u)
			if tt.expectValid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.expectValid && err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestAcquireHoldRequest_Validation(t *testing.T) {
	tests := []struct {
		name        string
		req         model.AcquireHoldRequest
		expectValid bool
	}{
		{name: "unit only", req: model.AcquireHoldRequest{UnitID: "u1"}, expectValid: true},
		{name: "with ttl", req: model.AcquireHoldRequest{UnitID: "u1", TTLSeconds: 60}, expectValid: true},
		{name: "missing unit", req: model.AcquireHoldRequest{HolderID: "alice"}},
		{name: "negative ttl", req: model.AcquireHoldRequest{UnitID: "u1", TTLSeconds: -5}},
	}

	v := validation.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(&tt.req)
			if (err == nil) != tt.expectValid {
				t.Errorf("Struct(%+v) error = %v, expectValid %v", tt.req, err, tt.expectValid)
			}
		})
	}
}

func TestTimeWindow_Overlaps(t *testing.T) {
	w := model.TimeWindow{Start: base, End: base.Add(time.Hour)}

	tests := []struct {
		name  string
		other model.TimeWindow
		want  bool
	}{
		{name: "inside", other: model.TimeWindow{Start: base.Add(10 * time.Minute), End: base.Add(20 * time.Minute)}, want: true},
		{name: "straddles start", other: model.TimeWindow{Start: base.Add(-time.Minute), End: base.Add(time.Minute)}, want: true},
		{name: "touches end", other: model.TimeWindow{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}, want: false},
		{name: "before", other: model.TimeWindow{Start: base.Add(-2 * time.Hour), End: base.Add(-time.Hour)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Overlaps(tt.other); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResourceUnit_Available(t *testing.T) {
	u := &model.ResourceUnit{Start: base, End: base.Add(time.Hour), Capacity: 1, Remaining: 1}

	if !u.Available(base.Add(-time.Minute)) {
		t.Error("future unit with capacity should be available")
	}
	if u.Available(base) {
		t.Error("unit that has started should not be available")
	}
	u.Remaining = 0
	if u.Available(base.Add(-time.Minute)) {
		t.Error("exhausted unit should not be available")
	}
	u.Remaining = 1
	u.Retired = true
	if u.Available(base.Add(-time.Minute)) {
		t.Error("retired unit should not be available")
	}
}

func TestHold_ExpiredAt(t *testing.T) {
	h := &model.Hold{ExpiresAt: base, State: model.HoldActive}

	if h.ExpiredAt(base) {
		t.Error("hold is still usable at exactly its expiry instant")
	}
	if !h.ExpiredAt(base.Add(time.Nanosecond)) {
		t.Error("hold should be expired after its expiry instant")
	}
	if h.State.Terminal() {
		t.Error("active hold is not terminal")
	}
	for _, s := range []model.HoldState{model.HoldReleased, model.HoldExpired, model.HoldConsumed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
