package events

import (
	"context"
	"errors"
	"fmt"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"slices"
	"time"
)

type RelayOptions struct {
	Interval time.Duration
	Batch    int
	Metrics  *metrics.Engine
}

// Relay moves outbox entries to every sink, at least once, in version order per subject.
// An entry is marked delivered only after all sinks accepted it. When an entry fails the
// rest of its subject is held back until the next flush so versions never overtake.
type Relay struct {
	outbox  repository.OutboxRepository
	sinks   []Sink
	clock   clock.Clock
	log     *logger.Logger
	opts    RelayOptions
	wake    chan struct{}
	metrics *metrics.Engine
}

func NewRelay(outbox repository.OutboxRepository, sinks []Sink, clk clock.Clock, log *logger.Logger, opts RelayOptions) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	return &Relay{
		outbox:  outbox,
		sinks:   sinks,
		clock:   clk,
		log:     log,
		opts:    opts,
		wake:    make(chan struct{}, 1),
		metrics: opts.Metrics,
	}
}

// Notify asks the relay to flush soon. Never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Flush delivers up to one batch of pending entries and returns how many were delivered.
// Subjects blocked by a failure are excluded from the following pages, so a stuck
// subject cannot hide the entries of the subjects sorted after it.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	delivered := 0
	var blocked []string
	for delivered < r.opts.Batch {
		pending, err := r.outbox.Pending(ctx, r.opts.Batch, blocked)
		if err != nil {
			return delivered, fmt.Errorf("failed to load pending events: %w", err)
		}

		for _, entry := range pending {
			subject := entry.Event.SubjectID
			if slices.Contains(blocked, subject) {
				continue
			}

			if err := r.deliver(ctx, entry.Event); err != nil {
				blocked = append(blocked, subject)
				r.log.Warn("Event delivery failed, will retry",
					"event_id", entry.ID,
					"subject_id", subject,
					"version", entry.Event.Version,
					"attempts", entry.Attempts+1,
					"error", err,
				)
				if markErr := r.outbox.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
					return delivered, fmt.Errorf("failed to record delivery failure: %w", markErr)
				}
				continue
			}

			if err := r.outbox.MarkDelivered(ctx, entry.ID, r.clock.Now()); err != nil {
				return delivered, fmt.Errorf("failed to mark event delivered: %w", err)
			}
			delivered++
		}

		if len(pending) < r.opts.Batch {
			break
		}
	}
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, e model.Event) error {
	var errs []error
	for _, sink := range r.sinks {
		err := sink.Deliver(ctx, e)
		r.metrics.RecordDelivery(sink.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Run flushes on every tick or Notify until ctx is done. A full batch triggers an
// immediate follow-up flush.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.log.Info("Event relay started", "interval", r.opts.Interval, "batch", r.opts.Batch, "sinks", len(r.sinks))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Event relay stopped")
			return
		case <-ticker.C:
		case <-r.wake:
		}

		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.log.Error("Event relay flush failed", "error", err)
				}
				break
			}
			if n < r.opts.Batch {
				break
			}
		}
	}
}

// Close closes every sink.
func (r *Relay) Close() error {
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
