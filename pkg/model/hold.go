package model

import "time"

type HoldState string

const (
	HoldActive   HoldState = "ACTIVE"
	HoldReleased HoldState = "RELEASED"
	HoldExpired  HoldState = "EXPIRED"
	HoldConsumed HoldState = "CONSUMED"
)

// Terminal reports whether no further transition is allowed from s.
func (s HoldState) Terminal() bool {
	return s != HoldActive
}

// Hold is a time-bounded exclusive claim on one unit of a ResourceUnit's capacity.
type Hold struct {
	ID        string     `json:"id" bson:"_id"`
	UnitID    string     `json:"unit_id" bson:"unit_id"`
	HolderID  string     `json:"holder_id,omitempty" bson:"holder_id,omitempty"`
	IssuedAt  time.Time  `json:"issued_at" bson:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at" bson:"expires_at"`
	State     HoldState  `json:"state" bson:"state"`
	ClosedAt  *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// ExpiredAt reports whether the hold's lifetime has elapsed at now.
func (h *Hold) ExpiredAt(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

type AcquireHoldRequest struct {
	UnitID     string `json:"unit_id" validate:"required,min=1,max=128"`
	HolderID   string `json:"holder_id,omitempty" validate:"omitempty,max=128"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" validate:"omitempty,min=1,max=3600"`
}
