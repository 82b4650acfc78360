package memory

import (
	"context"
	"slices"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/model"
	"time"
)

type holdRepository struct {
	db *DB
}

func (r *holdRepository) Create(ctx context.Context, hold *model.Hold) error {
	return r.db.run(ctx, func(st *state) error {
		if _, ok := st.holds[hold.ID]; ok {
			return repository.ErrDuplicateKey
		}
		st.holds[hold.ID] = *hold
		return nil
	})
}

func (r *holdRepository) FindByID(ctx context.Context, id string) (*model.Hold, error) {
	var out *model.Hold
	err := r.db.run(ctx, func(st *state) error {
		h, ok := st.holds[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &h
		return nil
	})
	return out, err
}

func (r *holdRepository) Transition(ctx context.Context, id string, to model.HoldState, at time.Time, guard repository.ExpiryGuard) (*model.Hold, error) {
	var out *model.Hold
	err := r.db.run(ctx, func(st *state) error {
		h, ok := st.holds[id]
		if !ok {
			return repository.ErrNotFound
		}
		if h.State != model.HoldActive {
			return repository.ErrStateConflict
		}
		switch guard {
		case repository.OnlyLive:
			if h.ExpiresAt.Before(at) {
				return repository.ErrStateConflict
			}
		case repository.OnlyLapsed:
			if !h.ExpiresAt.Before(at) {
				return repository.ErrStateConflict
			}
		}
		closed := at
		h.State = to
		h.ClosedAt = &closed
		st.holds[id] = h
		out = &h
		return nil
	})
	return out, err
}

func (r *holdRepository) FindLapsed(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error) {
	var out []*model.Hold
	err := r.db.run(ctx, func(st *state) error {
		for _, h := range st.holds {
			if h.State == model.HoldActive && h.ExpiresAt.Before(now) {
				out = append(out, &h)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *model.Hold) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *holdRepository) CountActive(ctx context.Context, unitID string) (int64, error) {
	var n int64
	err := r.db.run(ctx, func(st *state) error {
		for _, h := range st.holds {
			if h.UnitID == unitID && h.State == model.HoldActive {
				n++
			}
		}
		return nil
	})
	return n, err
}
