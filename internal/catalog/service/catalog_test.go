package service

import (
	"context"
	"slotkeeper/internal/audit"
	"slotkeeper/internal/catalog/validator"
	"slotkeeper/internal/locks"
	"slotkeeper/internal/repository/memory"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)

func newService(t *testing.T) CatalogService {
	t.Helper()
	store := memory.NewStore()
	cfg := &config.Config{Log: logger.Nop()}
	return NewCatalogService(
		store,
		locks.NewMemory(time.Second),
		audit.NewRecorder(store.Audit),
		validator.NewUnitValidator(),
		clock.NewFixed(now),
		cfg,
	)
}

func TestRegister_AppliesDefaults(t *testing.T) {
	svc := newService(t)
	u := &model.ResourceUnit{
		ResourceID: "room-1",
		ProviderID: "p1",
		Start:      now.Add(time.Hour),
		End:        now.Add(2 * time.Hour),
		Remaining:  0,
	}
	require.NoError(t, svc.Register(context.Background(), u))

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, 1, u.Capacity)
	assert.Equal(t, 1, u.Remaining)
	assert.Equal(t, int64(1), u.Version)
	assert.Equal(t, now, u.CreatedAt)

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ResourceID, got.ResourceID)
}

func TestRegister_NormalizesInput(t *testing.T) {
	svc := newService(t)
	u := &model.ResourceUnit{
		ResourceID: " room-1 ",
		ProviderID: "p1\t",
		Category:   " Hair-Dresser ",
		Start:      now.Add(time.Hour),
		End:        now.Add(2 * time.Hour),
	}
	require.NoError(t, svc.Register(context.Background(), u))
	assert.Equal(t, "room-1", u.ResourceID)
	assert.Equal(t, "p1", u.ProviderID)
	assert.Equal(t, "hair_dresser", u.Category)

	units, err := svc.List(context.Background(), model.UnitQuery{Category: "HAIR dresser"})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, u.ID, units[0].ID)

	blank := &model.ResourceUnit{ResourceID: "   ", ProviderID: "p1", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)}
	err = svc.Register(context.Background(), blank)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestRegister_Validation(t *testing.T) {
	svc := newService(t)
	tests := []struct {
		name string
		unit model.ResourceUnit
	}{
		{"missing resource", model.ResourceUnit{ProviderID: "p", Start: now, End: now.Add(time.Hour)}},
		{"end before start", model.ResourceUnit{ResourceID: "r", ProviderID: "p", Start: now, End: now.Add(-time.Hour)}},
		{"capacity too large", model.ResourceUnit{ResourceID: "r", ProviderID: "p", Start: now, End: now.Add(time.Hour), Capacity: 20000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.unit
			err := svc.Register(context.Background(), &u)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "got %v", err)
		})
	}
}

func TestRegister_DuplicateID(t *testing.T) {
	svc := newService(t)
	u := model.ResourceUnit{ID: "fixed", ResourceID: "r", ProviderID: "p", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)}
	first, second := u, u
	require.NoError(t, svc.Register(context.Background(), &first))
	err := svc.Register(context.Background(), &second)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestBuildSlots(t *testing.T) {
	req := &model.GenerateUnitsRequest{
		ResourceID:      "room-1",
		ProviderID:      "p1",
		From:            now,
		To:              now.Add(2 * time.Hour),
		SlotDurationMin: 30,
		BreakMin:        10,
	}
	slots := BuildSlots(req)

	// 0:00-0:30, 0:40-1:10, 1:20-1:50; a fourth slot would end at 2:30
	require.Len(t, slots, 3)
	assert.Equal(t, now, slots[0].Start)
	assert.Equal(t, now.Add(30*time.Minute), slots[0].End)
	assert.Equal(t, now.Add(80*time.Minute), slots[2].Start)
}

func TestGenerate(t *testing.T) {
	svc := newService(t)
	units, err := svc.Generate(context.Background(), &model.GenerateUnitsRequest{
		ResourceID:      "room-1",
		ProviderID:      "p1",
		From:            now.Add(time.Hour),
		To:              now.Add(3 * time.Hour),
		SlotDurationMin: 60,
		Capacity:        4,
	})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, 4, units[0].Remaining)

	listed, err := svc.List(context.Background(), model.UnitQuery{ResourceID: "room-1"})
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	_, err = svc.Generate(context.Background(), &model.GenerateUnitsRequest{
		ResourceID:      "room-1",
		ProviderID:      "p1",
		From:            now,
		To:              now.Add(10 * time.Minute),
		SlotDurationMin: 30,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestRescheduleAndRetire(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	u := &model.ResourceUnit{ResourceID: "r", ProviderID: "p", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)}
	require.NoError(t, svc.Register(ctx, u))

	moved, err := svc.Reschedule(ctx, u.ID, model.TimeWindow{Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved.Version)
	assert.Equal(t, now.Add(3*time.Hour), moved.Start)

	open, err := svc.Candidates(ctx, model.UnitQuery{ResourceID: "r"})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	retired, err := svc.Retire(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, retired.Retired)
	assert.Equal(t, int64(3), retired.Version)

	_, err = svc.Retire(ctx, u.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	open, err = svc.Candidates(ctx, model.UnitQuery{ResourceID: "r"})
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = svc.Retire(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnitNotFound))

	_, err = svc.Reschedule(ctx, u.ID, model.TimeWindow{Start: now.Add(time.Hour), End: now})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}
