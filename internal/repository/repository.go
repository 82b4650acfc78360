package repository

import (
	"context"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"
	"time"
)

const (
	UnitsCollection    = "Resource_units"
	HoldsCollection    = "Holds"
	BookingsCollection = "Bookings"
	AuditCollection    = "Audit_entries"
	OutboxCollection   = "Event_outbox"
	VersionsCollection = "Event_versions"
	LocksCollection    = "Unit_locks"
)

// UnitRepository persists catalog units. Remaining only moves through the
// conditional Decrement/Increment calls.
type UnitRepository interface {
	Create(ctx context.Context, unit *model.ResourceUnit) error
	CreateMany(ctx context.Context, units []*model.ResourceUnit) error
	FindByID(ctx context.Context, id string) (*model.ResourceUnit, error)
	// Find returns units matching q ordered by start time.
	Find(ctx context.Context, q model.UnitQuery, now time.Time) ([]*model.ResourceUnit, error)
	// DecrementRemaining takes one unit of capacity if the unit is open and not yet started.
	// Returns ErrNotFound or ErrNoCapacity.
	DecrementRemaining(ctx context.Context, id string, now time.Time) (*model.ResourceUnit, error)
	// IncrementRemaining gives one unit of capacity back. Returns ErrAtCapacity if full.
	IncrementRemaining(ctx context.Context, id string, now time.Time) (*model.ResourceUnit, error)
	UpdateWindow(ctx context.Context, id string, window model.TimeWindow, now time.Time) (*model.ResourceUnit, error)
	Retire(ctx context.Context, id string, now time.Time) (*model.ResourceUnit, error)
}

// ExpiryGuard restricts a hold transition by the hold's expiry relative to the transition time.
type ExpiryGuard int

const (
	AnyExpiry ExpiryGuard = iota
	// OnlyLive matches holds with expires_at >= at.
	OnlyLive
	// OnlyLapsed matches holds with expires_at < at.
	OnlyLapsed
)

type HoldRepository interface {
	Create(ctx context.Context, hold *model.Hold) error
	FindByID(ctx context.Context, id string) (*model.Hold, error)
	// Transition moves an ACTIVE hold to a terminal state. Returns ErrStateConflict when the
	// hold is no longer ACTIVE or the guard does not match.
	Transition(ctx context.Context, id string, to model.HoldState, at time.Time, guard ExpiryGuard) (*model.Hold, error)
	// FindLapsed returns ACTIVE holds with expires_at < now, oldest first.
	FindLapsed(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error)
	CountActive(ctx context.Context, unitID string) (int64, error)
}

type BookingRepository interface {
	// Create returns ErrDuplicateKey if the idempotency key or the hold is already booked.
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error)
	// Cancel moves a CONFIRMED booking to CANCELLED. Returns ErrStateConflict otherwise.
	Cancel(ctx context.Context, id, reason string, at time.Time) (*model.Booking, error)
	// MarkCapacityRestored flips the flag on a CANCELLED, not yet restored booking.
	MarkCapacityRestored(ctx context.Context, id string) (*model.Booking, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *model.AuditEntry) error
	FindBySubject(ctx context.Context, subjectType, subjectID string) ([]*model.AuditEntry, error)
}

type OutboxRepository interface {
	Append(ctx context.Context, entry *model.OutboxEntry) error
	// Pending returns undelivered entries ordered by subject then version, so every
	// subject's entries appear in version order within a batch. Entries of the
	// subjects in exclude are skipped.
	Pending(ctx context.Context, limit int, exclude []string) ([]*model.OutboxEntry, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// VersionRepository keeps the durable per-subject event version counter.
type VersionRepository interface {
	Next(ctx context.Context, subjectID string) (int64, error)
	Current(ctx context.Context, subjectID string) (int64, error)
}

// Store bundles every repository that shares one transaction manager.
type Store struct {
	Units    UnitRepository
	Holds    HoldRepository
	Bookings BookingRepository
	Audit    AuditRepository
	Outbox   OutboxRepository
	Versions VersionRepository
	Tx       mongotx.TransactionManager
}
