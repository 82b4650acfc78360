// Package conflicts ranks alternative units when a hold cannot be taken or confirmed.
package conflicts

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"time"
)

const (
	DefaultLimit = 5
	// Candidates must overlap the desired window widened by this much on both sides.
	SearchHorizon = 14 * 24 * time.Hour
)

// Query describes what the caller wanted. ProviderID and Category widen the search
// beyond the resource when set.
type Query struct {
	ResourceID string
	ProviderID string
	Category   string
	Window     model.TimeWindow
	Exclude    []string
}

type Resolver struct {
	units repository.UnitRepository
	clock clock.Clock
	limit int
	log   *logger.Logger
}

func NewResolver(units repository.UnitRepository, clk clock.Clock, limit int, log *logger.Logger) *Resolver {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Resolver{units: units, clock: clk, limit: limit, log: log}
}

// Alternatives yields open units ranked for resourceID and window, skipping exclude.
// The provider and category tiers come from any unit of the resource. Every range
// over the returned sequence recomputes from current state.
func (r *Resolver) Alternatives(ctx context.Context, resourceID string, window model.TimeWindow, exclude []string) iter.Seq[model.ResourceUnit] {
	return func(yield func(model.ResourceUnit) bool) {
		q := Query{ResourceID: resourceID, Window: window, Exclude: exclude}
		if ref, err := r.units.Find(ctx, model.UnitQuery{ResourceID: resourceID, Limit: 1}, r.clock.Now()); err == nil && len(ref) > 0 {
			q.ProviderID = ref[0].ProviderID
			q.Category = ref[0].Category
		}
		for u := range r.Search(ctx, q) {
			if !yield(u) {
				return
			}
		}
	}
}

// SuggestAlternatives collects Alternatives. It never fails; store errors yield fewer results.
func (r *Resolver) SuggestAlternatives(ctx context.Context, resourceID string, window model.TimeWindow, exclude []string) []model.ResourceUnit {
	return collect(r.Alternatives(ctx, resourceID, window, exclude))
}

// ForUnit suggests replacements for unit, which is always excluded.
func (r *Resolver) ForUnit(ctx context.Context, unit *model.ResourceUnit) []model.ResourceUnit {
	return collect(r.Search(ctx, Query{
		ResourceID: unit.ResourceID,
		ProviderID: unit.ProviderID,
		Category:   unit.Category,
		Window:     unit.Window(),
		Exclude:    []string{unit.ID},
	}))
}

func collect(seq iter.Seq[model.ResourceUnit]) []model.ResourceUnit {
	out := slices.Collect(seq)
	if out == nil {
		out = []model.ResourceUnit{}
	}
	return out
}

// Search yields up to the configured limit of candidates, tier by tier: same resource,
// then same provider, then same category. A tier is only loaded when the previous ones
// did not fill the limit.
func (r *Resolver) Search(ctx context.Context, q Query) iter.Seq[model.ResourceUnit] {
	return func(yield func(model.ResourceUnit) bool) {
		seen := make(map[string]bool, len(q.Exclude))
		for _, id := range q.Exclude {
			seen[id] = true
		}

		now := r.clock.Now()
		horizon := model.TimeWindow{
			Start: q.Window.Start.Add(-SearchHorizon),
			End:   q.Window.End.Add(SearchHorizon),
		}

		emitted := 0
		for _, tier := range tiers(q) {
			tier.Window = &horizon
			tier.OnlyOpen = true

			found, err := r.units.Find(ctx, tier, now)
			if err != nil {
				r.log.Warn("Failed to load alternative units", "resource_id", q.ResourceID, "error", err)
				return
			}

			ranked := rank(found, q.Window.Start, now, seen)
			for _, u := range ranked {
				seen[u.ID] = true
				if !yield(*u) {
					return
				}
				emitted++
				if emitted >= r.limit {
					return
				}
			}
		}
	}
}

func tiers(q Query) []model.UnitQuery {
	var out []model.UnitQuery
	if q.ResourceID != "" {
		out = append(out, model.UnitQuery{ResourceID: q.ResourceID})
	}
	if q.ProviderID != "" {
		out = append(out, model.UnitQuery{ProviderID: q.ProviderID})
	}
	if q.Category != "" {
		out = append(out, model.UnitQuery{Category: q.Category})
	}
	return out
}

// rank drops seen and unavailable units and orders the rest by distance from desired,
// earlier start first on ties.
func rank(units []*model.ResourceUnit, desired, now time.Time, seen map[string]bool) []*model.ResourceUnit {
	out := slices.DeleteFunc(slices.Clone(units), func(u *model.ResourceUnit) bool {
		return seen[u.ID] || !u.Available(now)
	})
	slices.SortStableFunc(out, func(a, b *model.ResourceUnit) int {
		if c := cmp.Compare(distance(a.Start, desired), distance(b.Start, desired)); c != 0 {
			return c
		}
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
