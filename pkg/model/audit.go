package model

import "time"

const (
	SubjectUnit    = "unit"
	SubjectHold    = "hold"
	SubjectBooking = "booking"
)

// AuditEntry is an immutable record of one state transition.
type AuditEntry struct {
	ID          string    `json:"id" bson:"_id"`
	SubjectType string    `json:"subject_type" bson:"subject_type"`
	SubjectID   string    `json:"subject_id" bson:"subject_id"`
	Action      string    `json:"action" bson:"action"`
	Actor       string    `json:"actor" bson:"actor"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	PriorState  string    `json:"prior_state,omitempty" bson:"prior_state,omitempty"`
	NextState   string    `json:"next_state" bson:"next_state"`
}
