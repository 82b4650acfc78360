// Package audit appends immutable transition records for holds, bookings and units.
package audit

import (
	"context"
	"fmt"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/model"
	"time"

	"github.com/google/uuid"
)

// Actors
const (
	ActorClient   = "client"
	ActorSweeper  = "sweeper"
	ActorOperator = "operator"
)

// ActorFor names the holder as actor, falling back to ActorClient for anonymous holds.
func ActorFor(holderID string) string {
	if holderID == "" {
		return ActorClient
	}
	return holderID
}

// Actions
const (
	ActionAcquire    = "acquire"
	ActionRelease    = "release"
	ActionExpire     = "expire"
	ActionConfirm    = "confirm"
	ActionCancel     = "cancel"
	ActionRestore    = "restore"
	ActionRegister   = "register"
	ActionReschedule = "reschedule"
	ActionRetire     = "retire"
)

// Transition describes one state change to record.
type Transition struct {
	SubjectType string
	SubjectID   string
	Action      string
	Actor       string
	Prior       string
	Next        string
	At          time.Time
}

type Recorder struct {
	repo repository.AuditRepository
}

func NewRecorder(repo repository.AuditRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends t. Pass the transaction ctx so the entry commits with the state change.
func (r *Recorder) Record(ctx context.Context, t Transition) error {
	if t.SubjectID == "" || t.Action == "" {
		return fmt.Errorf("audit entry needs subject id and action")
	}
	actor := t.Actor
	if actor == "" {
		actor = ActorClient
	}
	entry := &model.AuditEntry{
		ID:          uuid.NewString(),
		SubjectType: t.SubjectType,
		SubjectID:   t.SubjectID,
		Action:      t.Action,
		Actor:       actor,
		Timestamp:   t.At,
		PriorState:  t.Prior,
		NextState:   t.Next,
	}
	if err := r.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// History returns the entries of one subject in append order.
func (r *Recorder) History(ctx context.Context, subjectType, subjectID string) ([]*model.AuditEntry, error) {
	return r.repo.FindBySubject(ctx, subjectType, subjectID)
}
