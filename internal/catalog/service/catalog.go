package service

import (
	"context"
	"errors"
	"fmt"
	"slotkeeper/internal/audit"
	"slotkeeper/internal/catalog/validator"
	"slotkeeper/internal/locks"
	"slotkeeper/internal/repository"
	"slotkeeper/internal/retry"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"
	"slotkeeper/pkg/validation"
	"time"

	"github.com/google/uuid"
)

type CatalogService interface {
	Register(ctx context.Context, unit *model.ResourceUnit) error
	Generate(ctx context.Context, req *model.GenerateUnitsRequest) ([]*model.ResourceUnit, error)
	Get(ctx context.Context, id string) (*model.ResourceUnit, error)
	List(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error)
	// Candidates lists units that can be held right now.
	Candidates(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error)
	Reschedule(ctx context.Context, id string, window model.TimeWindow) (*model.ResourceUnit, error)
	Retire(ctx context.Context, id string) (*model.ResourceUnit, error)
}

type catalogService struct {
	store     *repository.Store
	locker    locks.Locker
	audit     *audit.Recorder
	validator *validator.UnitValidator
	clock     clock.Clock
	retry     retry.Policy
	cfg       *config.Config
}

func NewCatalogService(
	store *repository.Store,
	locker locks.Locker,
	recorder *audit.Recorder,
	validator *validator.UnitValidator,
	clk clock.Clock,
	cfg *config.Config,
) CatalogService {
	return &catalogService{
		store:     store,
		locker:    locker,
		audit:     recorder,
		validator: validator,
		clock:     clk,
		retry:     retry.DefaultPolicy(),
		cfg:       cfg,
	}
}

func (s *catalogService) applyDefaults(unit *model.ResourceUnit, now time.Time) {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	unit.ResourceID = sanitizer.NormalizeIdentifier(unit.ResourceID)
	unit.ProviderID = sanitizer.NormalizeIdentifier(unit.ProviderID)
	unit.Category = sanitizer.NormalizeCategory(unit.Category)
	if unit.Capacity == 0 {
		unit.Capacity = 1
	}
	unit.Start = unit.Start.UTC()
	unit.End = unit.End.UTC()
	unit.Remaining = unit.Capacity
	unit.Version = 1
	unit.Retired = false
	unit.CreatedAt = now
	unit.UpdatedAt = now
}

func (s *catalogService) Register(ctx context.Context, unit *model.ResourceUnit) error {
	now := s.clock.Now()
	s.applyDefaults(unit, now)

	if err := s.validator.Validate(unit); err != nil {
		s.cfg.Log.Warn("Unit validation failed",
			"resource_id", unit.ResourceID,
			"error", err,
		)
		return validation.AppError("Resource unit validation failed", err)
	}

	err := s.store.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.Units.Create(txCtx, unit); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return apperrors.Conflict(fmt.Sprintf("Resource unit %s already exists", unit.ID))
			}
			return apperrors.Internal("Failed to create resource unit", err)
		}
		return s.audit.Record(txCtx, audit.Transition{
			SubjectType: model.SubjectUnit,
			SubjectID:   unit.ID,
			Action:      audit.ActionRegister,
			Actor:       audit.ActorOperator,
			Next:        unitState(unit),
			At:          now,
		})
	})
	if err != nil {
		s.cfg.Log.Error("Failed to register resource unit", "id", unit.ID, "error", err)
		return err
	}

	s.cfg.Log.Info("Resource unit registered",
		"id", unit.ID,
		"resource_id", unit.ResourceID,
		"provider_id", unit.ProviderID,
		"start", unit.Start,
		"capacity", unit.Capacity,
	)
	return nil
}

// Generate lays out consecutive slots of SlotDurationMin separated by BreakMin
// between From and To. A slot that would end after To is not created.
func (s *catalogService) Generate(ctx context.Context, req *model.GenerateUnitsRequest) ([]*model.ResourceUnit, error) {
	if err := s.validator.ValidateGenerate(req); err != nil {
		s.cfg.Log.Warn("Generate request validation failed", "resource_id", req.ResourceID, "error", err)
		return nil, validation.AppError("Generate request validation failed", err)
	}

	now := s.clock.Now()
	units := BuildSlots(req)
	for _, u := range units {
		s.applyDefaults(u, now)
	}

	err := s.store.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.store.Units.CreateMany(txCtx, units); err != nil {
			return apperrors.Internal("Failed to create resource units", err)
		}
		for _, u := range units {
			if err := s.audit.Record(txCtx, audit.Transition{
				SubjectType: model.SubjectUnit,
				SubjectID:   u.ID,
				Action:      audit.ActionRegister,
				Actor:       audit.ActorOperator,
				Next:        unitState(u),
				At:          now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to generate resource units", "resource_id", req.ResourceID, "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Resource units generated",
		"resource_id", req.ResourceID,
		"provider_id", req.ProviderID,
		"count", len(units),
	)
	return units, nil
}

func BuildSlots(req *model.GenerateUnitsRequest) []*model.ResourceUnit {
	slot := time.Duration(req.SlotDurationMin) * time.Minute
	step := slot + time.Duration(req.BreakMin)*time.Minute

	var units []*model.ResourceUnit
	for start := req.From; !start.Add(slot).After(req.To); start = start.Add(step) {
		units = append(units, &model.ResourceUnit{
			ResourceID: req.ResourceID,
			ProviderID: req.ProviderID,
			Category:   req.Category,
			Start:      start,
			End:        start.Add(slot),
			Capacity:   req.Capacity,
		})
	}
	return units
}

func (s *catalogService) Get(ctx context.Context, id string) (*model.ResourceUnit, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Resource unit ID cannot be empty")
	}

	unit, err := s.store.Units.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.UnitNotFound(id)
		}
		s.cfg.Log.Error("Failed to get resource unit", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve resource unit", err)
	}
	return unit, nil
}

func (s *catalogService) List(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error) {
	q.Limit = config.NormalizePaginationLimit(q.Limit)
	q.ResourceID = sanitizer.NormalizeIdentifier(q.ResourceID)
	q.ProviderID = sanitizer.NormalizeIdentifier(q.ProviderID)
	q.Category = sanitizer.NormalizeCategory(q.Category)

	units, err := s.store.Units.Find(ctx, q, s.clock.Now())
	if err != nil {
		s.cfg.Log.Error("Failed to list resource units", "resource_id", q.ResourceID, "error", err)
		return nil, apperrors.Internal("Failed to list resource units", err)
	}
	if units == nil {
		units = []*model.ResourceUnit{}
	}
	return units, nil
}

func (s *catalogService) Candidates(ctx context.Context, q model.UnitQuery) ([]*model.ResourceUnit, error) {
	q.OnlyOpen = true
	return s.List(ctx, q)
}

// Reschedule moves a unit to a new window and bumps its version. Bookings keep the
// window they were confirmed against.
func (s *catalogService) Reschedule(ctx context.Context, id string, window model.TimeWindow) (*model.ResourceUnit, error) {
	req := &model.RescheduleUnitRequest{Start: window.Start.UTC(), End: window.End.UTC()}
	if err := s.validator.ValidateWindow(req); err != nil {
		return nil, validation.AppError("Reschedule request validation failed", err)
	}
	window = model.TimeWindow{Start: req.Start, End: req.End}

	return s.mutate(ctx, id, audit.ActionReschedule, func(txCtx context.Context, now time.Time) (*model.ResourceUnit, error) {
		return s.store.Units.UpdateWindow(txCtx, id, window, now)
	})
}

// Retire takes a unit out of the catalog. It is kept for history, never deleted.
func (s *catalogService) Retire(ctx context.Context, id string) (*model.ResourceUnit, error) {
	return s.mutate(ctx, id, audit.ActionRetire, func(txCtx context.Context, now time.Time) (*model.ResourceUnit, error) {
		return s.store.Units.Retire(txCtx, id, now)
	})
}

type unitMutation func(txCtx context.Context, now time.Time) (*model.ResourceUnit, error)

func (s *catalogService) mutate(ctx context.Context, id, action string, fn unitMutation) (*model.ResourceUnit, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Resource unit ID cannot be empty")
	}

	unit, err := retry.Value(ctx, s.retry, func() (*model.ResourceUnit, error) {
		unlock, err := s.locker.Lock(ctx, locks.UnitKey(id))
		if err != nil {
			return nil, err
		}
		defer unlock()

		var out *model.ResourceUnit
		err = s.store.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			now := s.clock.Now()
			before, err := s.store.Units.FindByID(txCtx, id)
			if err != nil {
				return err
			}
			out, err = fn(txCtx, now)
			if err != nil {
				return err
			}
			return s.audit.Record(txCtx, audit.Transition{
				SubjectType: model.SubjectUnit,
				SubjectID:   id,
				Action:      action,
				Actor:       audit.ActorOperator,
				Prior:       unitState(before),
				Next:        unitState(out),
				At:          now,
			})
		})
		return out, err
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.UnitNotFound(id)
		case errors.Is(err, repository.ErrStateConflict):
			return nil, apperrors.Conflict(fmt.Sprintf("Resource unit %s is retired", id))
		case apperrors.IsAppError(err):
			return nil, err
		}
		s.cfg.Log.Error("Failed to update resource unit", "id", id, "action", action, "error", err)
		return nil, apperrors.Internal("Failed to update resource unit", err)
	}

	s.cfg.Log.Info("Resource unit updated",
		"id", id,
		"action", action,
		"version", unit.Version,
		"start", unit.Start,
		"retired", unit.Retired,
	)
	return unit, nil
}

func unitState(u *model.ResourceUnit) string {
	if u.Retired {
		return fmt.Sprintf("RETIRED v%d", u.Version)
	}
	return fmt.Sprintf("OPEN v%d %d/%d", u.Version, u.Remaining, u.Capacity)
}
