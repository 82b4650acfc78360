package model

import "time"

// GenerateUnitsRequest builds consecutive slots across a working window,
// the way a provider schedule lays out meetings separated by breaks.
type GenerateUnitsRequest struct {
	ResourceID      string    `json:"resource_id" validate:"required,min=1,max=128"`
	ProviderID      string    `json:"provider_id" validate:"required,min=1,max=128"`
	Category        string    `json:"category,omitempty" validate:"omitempty,max=64"`
	From            time.Time `json:"from" validate:"required"`
	To              time.Time `json:"to" validate:"required,gtfield=From"`
	SlotDurationMin int       `json:"slot_duration_min" validate:"required,min=5,max=480"`
	BreakMin        int       `json:"break_min" validate:"min=0,max=480"`
	Capacity        int       `json:"capacity,omitempty" validate:"omitempty,min=1,max=10000"`
}

type RescheduleUnitRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}
