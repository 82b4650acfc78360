package memory

import (
	"cmp"
	"context"
	"slices"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/model"
	"strings"
	"time"
)

type auditRepository struct {
	db *DB
}

func (r *auditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	return r.db.run(ctx, func(st *state) error {
		st.audit = append(st.audit, *entry)
		return nil
	})
}

func (r *auditRepository) FindBySubject(ctx context.Context, subjectType, subjectID string) ([]*model.AuditEntry, error) {
	var out []*model.AuditEntry
	err := r.db.run(ctx, func(st *state) error {
		for _, e := range st.audit {
			if e.SubjectType == subjectType && e.SubjectID == subjectID {
				out = append(out, &e)
			}
		}
		return nil
	})
	return out, err
}

type outboxRepository struct {
	db *DB
}

func (r *outboxRepository) Append(ctx context.Context, entry *model.OutboxEntry) error {
	return r.db.run(ctx, func(st *state) error {
		if _, ok := st.outbox[entry.ID]; ok {
			return repository.ErrDuplicateKey
		}
		st.outbox[entry.ID] = *entry
		return nil
	})
}

func (r *outboxRepository) Pending(ctx context.Context, limit int, exclude []string) ([]*model.OutboxEntry, error) {
	var out []*model.OutboxEntry
	err := r.db.run(ctx, func(st *state) error {
		for _, e := range st.outbox {
			if !e.Delivered && !slices.Contains(exclude, e.Event.SubjectID) {
				out = append(out, &e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *model.OutboxEntry) int {
		if c := strings.Compare(a.Event.SubjectID, b.Event.SubjectID); c != 0 {
			return c
		}
		return cmp.Compare(a.Event.Version, b.Event.Version)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return r.db.run(ctx, func(st *state) error {
		e, ok := st.outbox[id]
		if !ok {
			return repository.ErrNotFound
		}
		delivered := at
		e.Delivered = true
		e.DeliveredAt = &delivered
		e.Attempts++
		st.outbox[id] = e
		return nil
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.db.run(ctx, func(st *state) error {
		e, ok := st.outbox[id]
		if !ok {
			return repository.ErrNotFound
		}
		e.Attempts++
		e.LastError = reason
		st.outbox[id] = e
		return nil
	})
}

type versionRepository struct {
	db *DB
}

func (r *versionRepository) Next(ctx context.Context, subjectID string) (int64, error) {
	var v int64
	err := r.db.run(ctx, func(st *state) error {
		st.versions[subjectID]++
		v = st.versions[subjectID]
		return nil
	})
	return v, err
}

func (r *versionRepository) Current(ctx context.Context, subjectID string) (int64, error) {
	var v int64
	err := r.db.run(ctx, func(st *state) error {
		v = st.versions[subjectID]
		return nil
	})
	return v, err
}
