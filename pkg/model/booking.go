package model

import (
	"time"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

type Booking struct {
	ID               string        `json:"id" bson:"_id"`
	UnitID           string        `json:"unit_id" bson:"unit_id"`
	HoldID           string        `json:"hold_id" bson:"hold_id"`
	HolderID         string        `json:"holder_id,omitempty" bson:"holder_id,omitempty"`
	IdempotencyKey   string        `json:"idempotency_key" bson:"idempotency_key"`
	Status           BookingStatus `json:"status" bson:"status"`
	UnitStart        time.Time     `json:"unit_start" bson:"unit_start"`
	UnitEnd          time.Time     `json:"unit_end" bson:"unit_end"`
	UnitVersion      int64         `json:"unit_version" bson:"unit_version"`
	CreatedAt        time.Time     `json:"created_at" bson:"created_at"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancelReason     string        `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	CapacityRestored bool          `json:"capacity_restored" bson:"capacity_restored"`
}

type ConfirmBookingRequest struct {
	HoldID         string `json:"hold_id" validate:"required,min=1,max=128"`
	IdempotencyKey string `json:"-" validate:"required,min=1,max=128,idempotency_key"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}
