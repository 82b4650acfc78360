// Package events assigns per-subject versions to state-change events, stores them in the
// transactional outbox and relays them to the configured sinks.
package events

import (
	"context"
	"fmt"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/model"
	"time"

	"github.com/google/uuid"
)

type Publisher struct {
	versions repository.VersionRepository
	outbox   repository.OutboxRepository
	notify   func()
}

func NewPublisher(versions repository.VersionRepository, outbox repository.OutboxRepository) *Publisher {
	return &Publisher{versions: versions, outbox: outbox}
}

// OnPublish registers fn to be called after every appended event, typically Relay.Notify.
func (p *Publisher) OnPublish(fn func()) {
	p.notify = fn
}

// Publish assigns the next version of e.SubjectID and appends e to the outbox.
// ctx must be the transaction ctx of the state change that produced e; if the
// transaction rolls back the version and the entry roll back with it.
func (p *Publisher) Publish(ctx context.Context, e *model.Event) error {
	if e.SubjectID == "" {
		return fmt.Errorf("event %s has no subject", e.Type)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	version, err := p.versions.Next(ctx, e.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to assign event version: %w", err)
	}
	e.Version = version

	entry := &model.OutboxEntry{
		ID:        e.ID,
		Event:     *e,
		CreatedAt: e.Timestamp,
	}
	if err := p.outbox.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append outbox entry: %w", err)
	}

	if p.notify != nil {
		p.notify()
	}
	return nil
}

// CurrentVersion returns the last version assigned to subjectID, 0 if none.
func (p *Publisher) CurrentVersion(ctx context.Context, subjectID string) (int64, error) {
	return p.versions.Current(ctx, subjectID)
}
