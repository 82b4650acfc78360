package model

import "time"

type EventType string

const (
	EventUnitReserved     EventType = "UNIT_RESERVED"
	EventUnitReleased     EventType = "UNIT_RELEASED"
	EventUnitExpired      EventType = "UNIT_EXPIRED"
	EventUnitRestored     EventType = "UNIT_RESTORED"
	EventBookingConfirmed EventType = "BOOKING_CONFIRMED"
	EventBookingCancelled EventType = "BOOKING_CANCELLED"
)

// Event is a versioned state-change notification about one subject
// (a unit or a booking). Version is strictly increasing per subject.
type Event struct {
	ID        string         `json:"id" bson:"_id"`
	Type      EventType      `json:"type" bson:"type"`
	SubjectID string         `json:"subject_id" bson:"subject_id"`
	Version   int64          `json:"version" bson:"version"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
}

// OutboxEntry is an event persisted alongside the state change that produced it
// and awaiting delivery to sinks. ID equals the event ID.
type OutboxEntry struct {
	ID          string     `bson:"_id"`
	Event       Event      `bson:"event"`
	CreatedAt   time.Time  `bson:"created_at"`
	Delivered   bool       `bson:"delivered"`
	DeliveredAt *time.Time `bson:"delivered_at,omitempty"`
	Attempts    int        `bson:"attempts"`
	LastError   string     `bson:"last_error,omitempty"`
}
