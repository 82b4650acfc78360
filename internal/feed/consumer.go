// Package feed consumes the reservation event stream and keeps per-subject order.
package feed

import (
	"context"
	"slotkeeper/internal/events"
	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/prometheus/client_golang/prometheus"
)

// VersionSource reports the authoritative latest version of a subject.
type VersionSource interface {
	SubjectVersion(ctx context.Context, subjectID string) (int64, error)
}

// Handler applies events in version order. Duplicates are dropped; a gap makes it
// re-fetch the subject's current version and continue from there.
type Handler struct {
	tracker  *events.VersionTracker
	source   VersionSource
	apply    func(ctx context.Context, e model.Event) error
	resync   func(ctx context.Context, subjectID string, version int64)
	log      *logger.Logger
	outcomes *prometheus.CounterVec
}

type Option func(*Handler)

// OnResync is called after a gap moved a subject's baseline.
func OnResync(fn func(ctx context.Context, subjectID string, version int64)) Option {
	return func(h *Handler) { h.resync = fn }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Handler) {
		if reg != nil {
			reg.MustRegister(h.outcomes)
		}
	}
}

func NewHandler(source VersionSource, apply func(ctx context.Context, e model.Event) error, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		tracker: events.NewVersionTracker(),
		source:  source,
		apply:   apply,
		resync:  func(context.Context, string, int64) {},
		log:     log,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Consumed events by ordering decision.",
		}, []string{"decision"}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Tracker() *events.VersionTracker {
	return h.tracker
}

// Handle is a kafka.MessageHandler.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	e, err := events.DecodeKafka(msg)
	if err != nil {
		return err
	}
	return h.HandleEvent(ctx, e)
}

// HandleEvent advances the subject's baseline only once apply succeeded, so a failed
// apply is retried instead of being mistaken for a duplicate.
func (h *Handler) HandleEvent(ctx context.Context, e model.Event) error {
	last := h.tracker.Last(e.SubjectID)
	switch {
	case e.Version <= last:
		h.outcomes.WithLabelValues(events.Duplicate.String()).Inc()
		h.log.Debug("Skipping duplicate event", "subject_id", e.SubjectID, "version", e.Version)
		return nil
	case e.Version > last+1:
		h.outcomes.WithLabelValues(events.Gap.String()).Inc()
		return h.rebase(ctx, e, last)
	}
	h.outcomes.WithLabelValues(events.Applied.String()).Inc()
	return h.applyEvent(ctx, e)
}

func (h *Handler) rebase(ctx context.Context, e model.Event, last int64) error {
	current, err := h.source.SubjectVersion(ctx, e.SubjectID)
	if err != nil {
		return kafka.NewTransientError("failed to re-fetch subject version", err)
	}
	h.log.Warn("Version gap, rebasing on current subject state",
		"subject_id", e.SubjectID,
		"last_seen", last,
		"received", e.Version,
		"current", current,
	)

	if current >= e.Version {
		h.tracker.Reset(e.SubjectID, current)
		h.resync(ctx, e.SubjectID, current)
		return nil
	}

	// The service has not caught up with the event yet; the event becomes the new base.
	h.tracker.Reset(e.SubjectID, e.Version-1)
	h.resync(ctx, e.SubjectID, e.Version-1)
	return h.applyEvent(ctx, e)
}

func (h *Handler) applyEvent(ctx context.Context, e model.Event) error {
	if h.apply != nil {
		if err := h.apply(ctx, e); err != nil {
			return err
		}
	}
	h.tracker.Observe(e.SubjectID, e.Version)
	return nil
}
