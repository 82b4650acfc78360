package model

import "time"

// ResourceUnit is a single bookable time-bounded slot of a resource.
type ResourceUnit struct {
	ID         string    `json:"id" bson:"_id" validate:"omitempty,max=128"`
	ResourceID string    `json:"resource_id" bson:"resource_id" validate:"required,min=1,max=128"`
	ProviderID string    `json:"provider_id" bson:"provider_id" validate:"required,min=1,max=128"`
	Category   string    `json:"category,omitempty" bson:"category" validate:"omitempty,max=64"`
	Start      time.Time `json:"start" bson:"start" validate:"required"`
	End        time.Time `json:"end" bson:"end" validate:"required,gtfield=Start"`
	Capacity   int       `json:"capacity" bson:"capacity" validate:"min=1,max=10000"`
	Remaining  int       `json:"remaining" bson:"remaining" validate:"min=0,ltefield=Capacity"`
	Version    int64     `json:"version" bson:"version"`
	Retired    bool      `json:"retired,omitempty" bson:"retired"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

func (u *ResourceUnit) Window() TimeWindow {
	return TimeWindow{Start: u.Start, End: u.End}
}

// Available reports whether the unit can be held at now.
func (u *ResourceUnit) Available(now time.Time) bool {
	return !u.Retired && u.Remaining > 0 && u.Start.After(now)
}

type TimeWindow struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && w.End.After(other.Start)
}

func (w TimeWindow) Equal(other TimeWindow) bool {
	return w.Start.Equal(other.Start) && w.End.Equal(other.End)
}

// UnitQuery selects catalog units. Zero fields are not filtered on.
type UnitQuery struct {
	ResourceID string
	ProviderID string
	Category   string
	Window     *TimeWindow
	OnlyOpen   bool
	Limit      int
}
