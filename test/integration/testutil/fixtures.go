package testutil

import (
	"time"
)

// UnitBuilder builds a unit registration body starting an hour from now.
type UnitBuilder struct {
	body map[string]any
}

func NewUnitBuilder() *UnitBuilder {
	start := time.Now().UTC().Add(time.Hour).Truncate(time.Minute)
	return &UnitBuilder{body: map[string]any{
		"resource_id": "room-1",
		"provider_id": "clinic-1",
		"category":    "consult",
		"start":       start,
		"end":         start.Add(30 * time.Minute),
		"capacity":    1,
	}}
}

func (b *UnitBuilder) WithResource(resourceID string) *UnitBuilder {
	b.body["resource_id"] = resourceID
	return b
}

func (b *UnitBuilder) WithProvider(providerID string) *UnitBuilder {
	b.body["provider_id"] = providerID
	return b
}

func (b *UnitBuilder) WithCapacity(capacity int) *UnitBuilder {
	b.body["capacity"] = capacity
	return b
}

func (b *UnitBuilder) StartingIn(d time.Duration) *UnitBuilder {
	start := time.Now().UTC().Add(d).Truncate(time.Minute)
	b.body["start"] = start
	b.body["end"] = start.Add(30 * time.Minute)
	return b
}

func (b *UnitBuilder) Build() map[string]any {
	out := make(map[string]any, len(b.body))
	for k, v := range b.body {
		out[k] = v
	}
	return out
}
