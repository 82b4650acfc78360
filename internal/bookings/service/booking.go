package service

import (
	"context"
	"errors"
	"slotkeeper/internal/audit"
	"slotkeeper/internal/bookings/validator"
	"slotkeeper/internal/conflicts"
	"slotkeeper/internal/events"
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

// ConfirmResult is the booking a key maps to. Created is false on a replay.
type ConfirmResult struct {
	Booking *model.Booking
	Created bool
}

type BookingService interface {
	Confirm(ctx context.Context, holdID, idempotencyKey string) (ConfirmResult, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	Cancel(ctx context.Context, id, reason string) (*model.Booking, error)
	// RestoreCapacity returns the seat of a cancelled booking to its unit if the unit
	// still describes the same window.
	RestoreCapacity(ctx context.Context, id string) (*model.Booking, error)
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

type bookingService struct {
	store     *repository.Store
	locker    locks.Locker
	audit     *audit.Recorder
	publisher *events.Publisher
	resolver  *conflicts.Resolver
	validator *validator.BookingValidator
	clock     clock.Clock
	metrics   *metrics.Engine
	retry     retry.Policy
	cfg       *config.Config
}

func NewBookingService(deps Deps, validator *validator.BookingValidator, cfg *config.Config) BookingService {
	return &bookingService{
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

func (s *bookingService) Confirm(ctx context.Context, holdID, idempotencyKey string) (ConfirmResult, error) {
	req := &model.ConfirmBookingRequest{HoldID: holdID, IdempotencyKey: idempotencyKey}
	if err := s.validator.ValidateConfirm(req); err != nil {
		s.cfg.Log.Warn("Confirm request validation failed", "hold_id", holdID, "error", err)
		return ConfirmResult{}, validation.AppError("Confirm request validation failed", err)
	}

	var rejected *model.Hold
	result, err := retry.Value(ctx, s.retry, func() (ConfirmResult, error) {
		return s.confirm(ctx, holdID, idempotencyKey, &rejected)
	})
	if err != nil {
		s.metrics.RecordBooking(metrics.OutcomeRejected)
		switch {
		case apperrors.HasCode(err, apperrors.CodeHoldInvalid), apperrors.HasCode(err, apperrors.CodeHoldExpired):
			s.cfg.Log.Info("Booking rejected", "hold_id", holdID, "error", err)
			return ConfirmResult{}, s.withAlternatives(ctx, apperrors.AsAppError(err), rejected)
		case apperrors.IsAppError(err):
			return ConfirmResult{}, err
		}
		s.cfg.Log.Error("Failed to confirm booking", "hold_id", holdID, "error", err)
		return ConfirmResult{}, apperrors.Internal("Failed to confirm booking", err)
	}

	if result.Created {
		s.metrics.RecordBooking(metrics.OutcomeConfirmed)
		s.cfg.Log.Info("Booking confirmed",
			"id", result.Booking.ID,
			"hold_id", holdID,
			"unit_id", result.Booking.UnitID,
		)
	} else {
		s.metrics.RecordBooking(metrics.OutcomeReplayed)
		s.cfg.Log.Info("Booking replayed for idempotency key", "id", result.Booking.ID, "hold_id", holdID)
	}
	return result, nil
}

// confirm runs one attempt. Confirmations with the same key are serialized so the
// key lookup and the booking insert cannot interleave.
func (s *bookingService) confirm(ctx context.Context, holdID, key string, rejected **model.Hold) (ConfirmResult, error) {
	unlock, err := s.locker.Lock(ctx, locks.IdempotencyKey(key))
	if err != nil {
		return ConfirmResult{}, err
	}
	defer unlock()

	existing, err := s.store.Bookings.FindByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		if existing.HoldID != holdID {
			s.cfg.Log.Warn("Idempotency key reused for a different hold",
				"idempotency_key", key,
				"booking_id", existing.ID,
				"booked_hold_id", existing.HoldID,
				"booked_unit_id", existing.UnitID,
				"requested_hold_id", holdID,
			)
			return ConfirmResult{}, apperrors.IdempotencyConflict(key).
				WithDetail("booking_id", existing.ID).
				WithDetail("requested_hold_id", holdID)
		}
		return ConfirmResult{Booking: existing, Created: false}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return ConfirmResult{}, err
	}

	var booking *model.Booking
	err = s.store.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		now := s.clock.Now()
		hold, err := s.store.Holds.FindByID(txCtx, holdID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.HoldNotFound(holdID)
			}
			return err
		}
		if err := usable(hold, now); err != nil {
			*rejected = hold
			return err
		}

		if _, err := s.store.Holds.Transition(txCtx, holdID, model.HoldConsumed, now, repository.OnlyLive); err != nil {
			if !errors.Is(err, repository.ErrStateConflict) {
				return err
			}
			// lost the race against the sweeper or a release
			*rejected = hold
			current, findErr := s.store.Holds.FindByID(txCtx, holdID)
			if findErr != nil {
				return findErr
			}
			if err := usable(current, now); err != nil {
				return err
			}
			return apperrors.HoldExpired(holdID)
		}

		unit, err := s.store.Units.FindByID(txCtx, hold.UnitID)
		if err != nil {
			return err
		}

		booking = &model.Booking{
			ID:             uuid.NewString(),
			UnitID:         hold.UnitID,
			HoldID:         hold.ID,
			HolderID:       hold.HolderID,
			IdempotencyKey: key,
			Status:         model.BookingConfirmed,
			UnitStart:      unit.Start,
			UnitEnd:        unit.End,
			UnitVersion:    unit.Version,
			CreatedAt:      now,
		}
		if err := s.store.Bookings.Create(txCtx, booking); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				// another instance inserted the key first, the retry replays it
				return apperrors.Transient("Concurrent confirmation for the same key", err)
			}
			return err
		}

		if err := s.audit.Record(txCtx, audit.Transition{
			SubjectType: model.SubjectHold,
			SubjectID:   hold.ID,
			Action:      audit.ActionConfirm,
			Actor:       audit.ActorFor(hold.HolderID),
			Prior:       string(model.HoldActive),
			Next:        string(model.HoldConsumed),
			At:          now,
		}); err != nil {
			return err
		}
		if err := s.audit.Record(txCtx, audit.Transition{
			SubjectType: model.SubjectBooking,
			SubjectID:   booking.ID,
			Action:      audit.ActionConfirm,
			Actor:       audit.ActorFor(hold.HolderID),
			Next:        string(model.BookingConfirmed),
			At:          now,
		}); err != nil {
			return err
		}

		return s.publisher.Publish(txCtx, &model.Event{
			Type:      model.EventBookingConfirmed,
			SubjectID: booking.ID,
			Timestamp: now,
			Payload:   bookingPayload(booking),
		})
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{Booking: booking, Created: true}, nil
}

// usable reports why hold cannot be confirmed at now, or nil.
func usable(hold *model.Hold, now time.Time) error {
	switch hold.State {
	case model.HoldActive:
		if hold.ExpiredAt(now) {
			return apperrors.HoldExpired(hold.ID)
		}
		return nil
	case model.HoldExpired:
		return apperrors.HoldExpired(hold.ID)
	default:
		return apperrors.HoldInvalid(hold.ID, string(hold.State))
	}
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.store.Bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.BookingNotFound(id)
		}
		s.cfg.Log.Error("Failed to get booking", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

func (s *bookingService) Cancel(ctx context.Context, id, reason string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	reason = sanitizer.NormalizeReason(reason)
	if err := s.validator.ValidateCancel(&model.CancelBookingRequest{Reason: reason}); err != nil {
		return nil, validation.AppError("Cancel request validation failed", err)
	}

	booking, err := retry.Value(ctx, s.retry, func() (*model.Booking, error) {
		unlock, err := s.locker.Lock(ctx, locks.BookingKey(id))
		if err != nil {
			return nil, err
		}
		defer unlock()

		var out *model.Booking
		err = s.store.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			now := s.clock.Now()
			current, err := s.store.Bookings.FindByID(txCtx, id)
			if err != nil {
				return err
			}
			if current.Status == model.BookingCancelled {
				return apperrors.AlreadyCancelled(id)
			}

			out, err = s.store.Bookings.Cancel(txCtx, id, reason, now)
			if err != nil {
				if errors.Is(err, repository.ErrStateConflict) {
					return apperrors.AlreadyCancelled(id)
				}
				return err
			}

			if err := s.audit.Record(txCtx, audit.Transition{
				SubjectType: model.SubjectBooking,
				SubjectID:   id,
				Action:      audit.ActionCancel,
				Actor:       audit.ActorFor(current.HolderID),
				Prior:       string(model.BookingConfirmed),
				Next:        string(model.BookingCancelled),
				At:          now,
			}); err != nil {
				return err
			}

			return s.publisher.Publish(txCtx, &model.Event{
				Type:      model.EventBookingCancelled,
				SubjectID: id,
				Timestamp: now,
				Payload:   bookingPayload(out),
			})
		})
		return out, err
	})
	if err != nil {
		return nil, s.mapError(id, "cancel", err)
	}

	s.metrics.RecordBooking(metrics.OutcomeCancelled)
	s.cfg.Log.Info("Booking cancelled", "id", id, "unit_id", booking.UnitID, "reason", reason)
	return booking, nil
}

func (s *bookingService) RestoreCapacity(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	booking, err := retry.Value(ctx, s.retry, func() (*model.Booking, error) {
		unlockBooking, err := s.locker.Lock(ctx, locks.BookingKey(id))
		if err != nil {
			return nil, err
		}
		defer unlockBooking()
		unlockUnit, err := s.locker.Lock(ctx, locks.UnitKey(current.UnitID))
		if err != nil {
			return nil, err
		}
		defer unlockUnit()

		var out *model.Booking
		err = s.store.Tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			now := s.clock.Now()
			b, err := s.store.Bookings.FindByID(txCtx, id)
			if err != nil {
				return err
			}
			if reason := restoreBlocker(b); reason != "" {
				return apperrors.RestoreRejected(id, reason)
			}

			unit, err := s.store.Units.FindByID(txCtx, b.UnitID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperrors.RestoreRejected(id, "unit no longer exists")
				}
				return err
			}
			if reason := unitBlocker(unit, b, now); reason != "" {
				return apperrors.RestoreRejected(id, reason)
			}

			unit, err = s.store.Units.IncrementRemaining(txCtx, unit.ID, now)
			if err != nil {
				if errors.Is(err, repository.ErrAtCapacity) {
					return apperrors.RestoreRejected(id, "unit is already at full capacity")
				}
				return err
			}
			out, err = s.store.Bookings.MarkCapacityRestored(txCtx, id)
			if err != nil {
				if errors.Is(err, repository.ErrStateConflict) {
					return apperrors.RestoreRejected(id, "capacity already restored")
				}
				return err
			}

			if err := s.audit.Record(txCtx, audit.Transition{
				SubjectType: model.SubjectBooking,
				SubjectID:   id,
				Action:      audit.ActionRestore,
				Actor:       audit.ActorOperator,
				Prior:       string(model.BookingCancelled),
				Next:        string(model.BookingCancelled) + " restored",
				At:          now,
			}); err != nil {
				return err
			}

			return s.publisher.Publish(txCtx, &model.Event{
				Type:      model.EventUnitRestored,
				SubjectID: unit.ID,
				Timestamp: now,
				Payload: map[string]any{
					"unit_id":    unit.ID,
					"remaining":  unit.Remaining,
					"capacity":   unit.Capacity,
					"booking_id": id,
				},
			})
		})
		return out, err
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeRestoreRejected) {
			s.cfg.Log.Warn("Capacity restore rejected", "booking_id", id, "error", err)
		}
		return nil, s.mapError(id, "restore capacity", err)
	}

	s.metrics.RecordBooking(metrics.OutcomeRestored)
	s.cfg.Log.Info("Capacity restored from cancelled booking", "id", id, "unit_id", booking.UnitID)
	return booking, nil
}

func restoreBlocker(b *model.Booking) string {
	switch {
	case b.Status != model.BookingCancelled:
		return "booking is not cancelled"
	case b.CapacityRestored:
		return "capacity already restored"
	}
	return ""
}

// unitBlocker reports why unit no longer represents the window b was confirmed for.
func unitBlocker(unit *model.ResourceUnit, b *model.Booking, now time.Time) string {
	switch {
	case unit.Retired:
		return "unit is retired"
	case !unit.Start.After(now):
		return "unit has already started"
	case unit.Version != b.UnitVersion || !unit.Window().Equal(model.TimeWindow{Start: b.UnitStart, End: b.UnitEnd}):
		return "unit was rescheduled"
	case unit.Remaining >= unit.Capacity:
		return "unit is already at full capacity"
	}
	return ""
}

func (s *bookingService) mapError(id, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.BookingNotFound(id)
	case apperrors.IsAppError(err):
		return err
	}
	s.cfg.Log.Error("Booking operation failed", "id", id, "operation", op, "error", err)
	return apperrors.Internal("Failed to "+op+" booking", err)
}

func (s *bookingService) withAlternatives(ctx context.Context, appErr *apperrors.AppError, hold *model.Hold) *apperrors.AppError {
	if hold == nil {
		return appErr.WithDetail("alternatives", []model.ResourceUnit{})
	}
	unit, err := s.store.Units.FindByID(ctx, hold.UnitID)
	if err != nil {
		return appErr.WithDetail("alternatives", []model.ResourceUnit{})
	}
	return appErr.WithDetail("alternatives", s.resolver.ForUnit(ctx, unit))
}

func bookingPayload(b *model.Booking) map[string]any {
	payload := map[string]any{
		"booking_id": b.ID,
		"unit_id":    b.UnitID,
		"hold_id":    b.HoldID,
		"status":     b.Status,
		"unit_start": b.UnitStart,
		"unit_end":   b.UnitEnd,
	}
	if b.CancelReason != "" {
		payload["reason"] = b.CancelReason
	}
	return payload
}
