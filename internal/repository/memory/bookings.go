package memory

import (
	"context"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/model"
	"time"
)

type bookingRepository struct {
	db *DB
}

func (r *bookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	return r.db.run(ctx, func(st *state) error {
		if _, ok := st.bookings[booking.ID]; ok {
			return repository.ErrDuplicateKey
		}
		if _, ok := st.bookingByKey[booking.IdempotencyKey]; ok {
			return repository.ErrDuplicateKey
		}
		if _, ok := st.bookingByHold[booking.HoldID]; ok {
			return repository.ErrDuplicateKey
		}
		st.bookings[booking.ID] = *booking
		st.bookingByKey[booking.IdempotencyKey] = booking.ID
		st.bookingByHold[booking.HoldID] = booking.ID
		return nil
	})
}

func (r *bookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	var out *model.Booking
	err := r.db.run(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *bookingRepository) FindByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error) {
	var out *model.Booking
	err := r.db.run(ctx, func(st *state) error {
		id, ok := st.bookingByKey[key]
		if !ok {
			return repository.ErrNotFound
		}
		b := st.bookings[id]
		out = &b
		return nil
	})
	return out, err
}

func (r *bookingRepository) Cancel(ctx context.Context, id, reason string, at time.Time) (*model.Booking, error) {
	return r.update(ctx, id, func(b *model.Booking) error {
		if b.Status != model.BookingConfirmed {
			return repository.ErrStateConflict
		}
		cancelled := at
		b.Status = model.BookingCancelled
		b.CancelledAt = &cancelled
		b.CancelReason = reason
		return nil
	})
}

func (r *bookingRepository) MarkCapacityRestored(ctx context.Context, id string) (*model.Booking, error) {
	return r.update(ctx, id, func(b *model.Booking) error {
		if b.Status != model.BookingCancelled || b.CapacityRestored {
			return repository.ErrStateConflict
		}
		b.CapacityRestored = true
		return nil
	})
}

func (r *bookingRepository) update(ctx context.Context, id string, mutate func(b *model.Booking) error) (*model.Booking, error) {
	var out *model.Booking
	err := r.db.run(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		if err := mutate(&b); err != nil {
			return err
		}
		st.bookings[id] = b
		out = &b
		return nil
	})
	return out, err
}
