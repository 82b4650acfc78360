package service

import (
	"context"
	"errors"
	"slotkeeper/internal/audit"
	"slotkeeper/internal/conflicts"
	"slotkeeper/internal/events"
	"slotkeeper/internal/holds/validator"
	"slotkeeper/internal/locks"
	"slotkeeper/internal/metrics"
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

type HoldService interface {
	Acquire(ctx context.Context, req *model.AcquireHoldRequest) (*model.Hold, error)
	GetByID(ctx context.Context, id string) (*model.Hold, error)
	// Release gives the hold's capacity back. Releasing a hold that is already
	// terminal succeeds without effect.
	Release(ctx context.Context, id string) error
	// Sweep expires one batch of lapsed holds and returns how many it expired.
	Sweep(ctx context.Context) (int, error)
	RunSweeper(ctx context.Context, interval time.Duration)
}

type Deps struct {
	Store     *repository.Store
	Locker    locks.Locker
	Audit     *audit.Recorder
	Publisher *events.Publisher
	Resolver  *conflicts.Resolver
	Clock     clock.Clock
	Metrics   *metrics.Engine
}

type holdService struct {
	store     *repository.Store
	locker    locks.Locker
	audit     *audit.Recorder
	publisher *events.Publisher
	resolver  *conflicts.Resolver
	validator *validator.HoldValidator
	clock     clock.Clock
	metrics   *metrics.Engine
	retry     retry.Policy
	cfg       *config.Config
}

func NewHoldService(deps Deps, validator *validator.HoldValidator, cfg *config.Config) HoldService {
	return &holdService{
		store:     deps.Store,
		locker:    deps.Locker,
		audit:     deps.Audit,
		publisher: deps.Publisher,
		resolver:  deps.Resolver,
		validator: validator,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		retry:     retry.DefaultPolicy(),
		cfg:       cfg,
	}
}

// TTL picks the hold lifetime: the default when none is asked for, clamped to the maximum.
func (s *holdService) TTL(requestedSeconds int) time.Duration {
	if requestedSeconds <= 0 {
		return min(s.cfg.HoldDefaultTTL, s.cfg.HoldMaxTTL)
	}
	return min(time.Duration(requestedSeconds)*time.Second, s.cfg.HoldMaxTTL)
}

func (s *holdService) Acquire(ctx context.Context, req *model.AcquireHoldRequest) (*model.Hold, error) {
	req.UnitID = sanitizer.NormalizeIdentifier(req.UnitID)
	req.HolderID = sanitizer.NormalizeIdentifier(req.HolderID)
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Hold request validation failed", "unit_id", req.UnitID, "error", err)
		return nil, validation.AppError("Hold request validation failed", err)
	}
	ttl := s.TTL(req.TTLSeconds)

	hold, err := retry.Value(ctx, s.retry, func() (*model.Hold, error) {
		return s.acquire(ctx, req.UnitID, req.HolderID, ttl)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			s.metrics.RecordHold(metrics.OutcomeRejected)
			return nil, apperrors.UnitNotFound(req.UnitID)
		case errors.Is(err, repository.ErrNoCapacity):
			s.metrics.RecordHold(metrics.OutcomeNoCapacity)
			s.cfg.Log.Info("Hold rejected, no capacity", "unit_id", req.UnitID, "holder_id", req.HolderID)
			return nil, s.withAlternatives(ctx, apperrors.NoCapacity(req.UnitID), req.UnitID)
		case apperrors.IsAppError(err):
			s.metrics.RecordHold(metrics.OutcomeError)
			return nil, err
		}
		s.metrics.RecordHold(metrics.OutcomeError)
		s.cfg.Log.Error("Failed to acquire hold", "unit_id", req.UnitID, "error", err)
		return nil, apperrors.Internal("Failed to acquire hold", err)
	}

	s.metrics.RecordHold(metrics.OutcomeAcquired)
	s.cfg.Log.Info("Hold acquired",
		"hold_id", hold.ID,
		"unit_id", hold.UnitID,
		"holder_id", hold.HolderID,
		"expires_at", hold.ExpiresAt,
	)
	return hold, nil
}

func (s *holdService) acquire(ctx context.Context, unitID, holderID string, ttl time.Duration) (*model.Hold, error) {
	unlock, err := s.locker.Lock(ctx, locks.UnitKey(unitID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var hold *model.Hold
	err = s.store.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		now := s.clock.Now()
		unit, err := s.store.Units.DecrementRemaining(txCtx, unitID, now)
		if err != nil {
			return err
		}

		hold = &model.Hold{
			ID:        uuid.NewString(),
			UnitID:    unitID,
			HolderID:  holderID,
			IssuedAt:  now,
			ExpiresAt: now.Add(ttl),
			State:     model.HoldActive,
		}
		if err := s.store.Holds.Create(txCtx, hold); err != nil {
			return err
		}

		if err := s.audit.Record(txCtx, audit.Transition{
			SubjectType: model.SubjectHold,
			SubjectID:   hold.ID,
			Action:      audit.ActionAcquire,
			Actor:       audit.ActorFor(holderID),
			Next:        string(model.HoldActive),
			At:          now,
		}); err != nil {
			return err
		}

		return s.publisher.Publish(txCtx, &model.Event{
			Type:      model.EventUnitReserved,
			SubjectID: unitID,
			Timestamp: now,
			Payload:   unitPayload(unit, hold),
		})
	})
	return hold, err
}

func (s *holdService) GetByID(ctx context.Context, id string) (*model.Hold, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Hold ID cannot be empty")
	}

	hold, err := s.store.Holds.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.HoldNotFound(id)
		}
		s.cfg.Log.Error("Failed to get hold", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve hold", err)
	}
	return hold, nil
}

func (s *holdService) Release(ctx context.Context, id string) error {
	hold, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if hold.State.Terminal() {
		s.cfg.Log.Debug("Hold already closed, release ignored", "hold_id", id, "state", hold.State)
		return nil
	}

	released, err := retry.Value(ctx, s.retry, func() (bool, error) {
		return s.close(ctx, hold, model.HoldReleased, repository.AnyExpiry, audit.ActorClient)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		s.cfg.Log.Error("Failed to release hold", "hold_id", id, "error", err)
		return apperrors.Internal("Failed to release hold", err)
	}

	if released {
		s.metrics.RecordHold(metrics.OutcomeReleased)
		s.cfg.Log.Info("Hold released", "hold_id", id, "unit_id", hold.UnitID)
	}
	return nil
}

// close moves hold to a terminal state and gives its capacity back. It reports false
// when the hold was already closed by someone else.
func (s *holdService) close(ctx context.Context, hold *model.Hold, to model.HoldState, guard repository.ExpiryGuard, by string) (bool, error) {
	unlock, err := s.locker.Lock(ctx, locks.UnitKey(hold.UnitID))
	if err != nil {
		return false, err
	}
	defer unlock()

	closed := false
	err = s.store.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		// the transaction manager may rerun the callback
		closed = false
		now := s.clock.Now()
		if _, err := s.store.Holds.Transition(txCtx, hold.ID, to, now, guard); err != nil {
			if errors.Is(err, repository.ErrStateConflict) {
				return nil
			}
			return err
		}
		closed = true

		unit, err := s.store.Units.IncrementRemaining(txCtx, hold.UnitID, now)
		if errors.Is(err, repository.ErrAtCapacity) {
			s.cfg.Log.Warn("Unit already at capacity while closing hold", "hold_id", hold.ID, "unit_id", hold.UnitID)
			unit, err = s.store.Units.FindByID(txCtx, hold.UnitID)
		}
		if err != nil {
			return err
		}

		action, eventType := audit.ActionRelease, model.EventUnitReleased
		if to == model.HoldExpired {
			action, eventType = audit.ActionExpire, model.EventUnitExpired
		}

		if err := s.audit.Record(txCtx, audit.Transition{
			SubjectType: model.SubjectHold,
			SubjectID:   hold.ID,
			Action:      action,
			Actor:       by,
			Prior:       string(model.HoldActive),
			Next:        string(to),
			At:          now,
		}); err != nil {
			return err
		}

		after := *hold
		after.State = to
		return s.publisher.Publish(txCtx, &model.Event{
			Type:      eventType,
			SubjectID: hold.UnitID,
			Timestamp: now,
			Payload:   unitPayload(unit, &after),
		})
	})
	if err != nil {
		return false, err
	}
	return closed, nil
}

func (s *holdService) Sweep(ctx context.Context) (int, error) {
	lapsed, err := s.store.Holds.FindLapsed(ctx, s.clock.Now(), s.cfg.SweepBatch)
	if err != nil {
		return 0, apperrors.Internal("Failed to load lapsed holds", err)
	}

	expired := 0
	var errs []error
	for _, hold := range lapsed {
		if ctx.Err() != nil {
			break
		}
		ok, err := retry.Value(ctx, s.retry, func() (bool, error) {
			return s.close(ctx, hold, model.HoldExpired, repository.OnlyLapsed, audit.ActorSweeper)
		})
		if err != nil {
			s.cfg.Log.Error("Failed to expire hold", "hold_id", hold.ID, "unit_id", hold.UnitID, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			expired++
		}
	}

	s.metrics.RecordExpired(expired)
	if expired > 0 {
		s.cfg.Log.Info("Expired lapsed holds", "count", expired, "scanned", len(lapsed))
	}
	return expired, errors.Join(errs...)
}

// RunSweeper sweeps every interval until ctx is done. A full batch is followed by an
// immediate sweep.
func (s *holdService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.cfg.Log.Info("Hold sweeper started", "interval", interval, "batch", s.cfg.SweepBatch)
	for {
		select {
		case <-ctx.Done():
			s.cfg.Log.Info("Hold sweeper stopped")
			return
		case <-ticker.C:
		}

		for ctx.Err() == nil {
			n, err := s.Sweep(ctx)
			if err != nil || n == 0 || n < s.cfg.SweepBatch {
				break
			}
		}
	}
}

func (s *holdService) withAlternatives(ctx context.Context, appErr *apperrors.AppError, unitID string) *apperrors.AppError {
	unit, err := s.store.Units.FindByID(ctx, unitID)
	if err != nil {
		return appErr.WithDetail("alternatives", []model.ResourceUnit{})
	}
	return appErr.WithDetail("alternatives", s.resolver.ForUnit(ctx, unit))
}

func unitPayload(unit *model.ResourceUnit, hold *model.Hold) map[string]any {
	payload := map[string]any{
		"unit_id":   unit.ID,
		"remaining": unit.Remaining,
		"capacity":  unit.Capacity,
		"hold_id":   hold.ID,
	}
	if hold.HolderID != "" {
		payload["holder_id"] = hold.HolderID
	}
	if hold.State == model.HoldActive {
		payload["expires_at"] = hold.ExpiresAt
	}
	return payload
}
