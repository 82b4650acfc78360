package memory

import (
	"context"
	"slices"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/model"
	"strings"
	"time"
)

type unitRepository struct {
	db *DB
}

func (r *unitRepository) Create(ctx context.Context, unit *model.ResourceUnit) error {
	return r.db.run(ctx, func(st *state) error {
		if _, ok := st.units[unit.ID]; ok {
			return repository.ErrDuplicateKey
		}
		st.units[unit.ID] = *unit
		return nil
	})
}

func (r *unitRepository) CreateMany(ctx context.Context, units []*model.ResourceUnit) error {
	return r.db.run(ctx, func(st *state) error {
		for _, u := range units {
			if _, ok := st.units[u.ID]; ok {
				return repository.ErrDuplicateKey
			}
		}
		for _, u := range units {
			st.units[u.ID] = *u
		}
		return nil
	})
}

func (r *unitRepository) FindByID(ctx context.Context, id string) (*model.ResourceUnit, error) {
	var out *model.ResourceUnit
	err := r.db.run(ctx, func(st *state) error {
		u, ok := st.units[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *unitRepository) Find(ctx context.Context, q model.UnitQuery, now time.Time) ([]*model.ResourceUnit, error) {
	var out []*model.ResourceUnit
	err := r.db.run(ctx, func(st *state) error {
		for _, u := range st.units {
			if !matches(u, q, now) {
				continue
			}
			out = append(out, &u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *model.ResourceUnit) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(u model.ResourceUnit, q model.UnitQuery, now time.Time) bool {
	if q.ResourceID != "" && u.ResourceID != q.ResourceID {
		return false
	}
	if q.ProviderID != "" && u.ProviderID != q.ProviderID {
		return false
	}
	if q.Category != "" && u.Category != q.Category {
		return false
	}
	if q.Window != nil && !u.Window().Overlaps(*q.Window) {
		return false
	}
	if q.OnlyOpen && !u.Available(now) {
		return false
	}
	return true
}

func (r *unitRepository) DecrementRemaining(ctx context.Context, id string, now time.Time) (*model.ResourceUnit, error) {
	return r.update(ctx, id, func(u *model.ResourceUnit) error {
		if !u.Available(now) {
			return repository.ErrNoCapacity
		}
		u.Remaining--
		u.UpdatedAt = now
		return nil
	})
}

func (r *unitRepository) IncrementRemaining(ctx context.Context, id string, now time.Time) (*model.ResourceUnit, error) {
	return r.update(ctx, id, func(u *model.ResourceUnit) error {
		if u.Remaining >= u.Capacity {
			return repository.ErrAtCapacity
		}
		u.Remaining++
		u.UpdatedAt = now
		return nil
	})
}

func (r *unitRepository) UpdateWindow(ctx context.Context, id string, window model.TimeWindow, now time.Time) (*model.ResourceUnit, error) {
	return r.update(ctx, id, func(u *model.ResourceUnit) error {
		if u.Retired {
			return repository.ErrStateConflict
		}
		u.Start, u.End = window.Start, window.End
		u.Version++
		u.UpdatedAt = now
		return nil
	})
}

func (r *unitRepository) Retire(ctx context.Context, id string, now time.Time) (*model.ResourceUnit, error) {
	return r.update(ctx, id, func(u *model.ResourceUnit) error {
		if u.Retired {
			return repository.ErrStateConflict
		}
		u.Retired = true
		u.Version++
		u.UpdatedAt = now
		return nil
	})
}

func (r *unitRepository) update(ctx context.Context, id string, mutate func(u *model.ResourceUnit) error) (*model.ResourceUnit, error) {
	var out *model.ResourceUnit
	err := r.db.run(ctx, func(st *state) error {
		u, ok := st.units[id]
		if !ok {
			return repository.ErrNotFound
		}
		if err := mutate(&u); err != nil {
			return err
		}
		st.units[id] = u
		out = &u
		return nil
	})
	return out, err
}
