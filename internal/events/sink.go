package events

import (
	"context"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"
)

// Sink receives relayed events. Deliver may be called again with an event it already
// accepted; subscribers dedupe by (subject, version).
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e model.Event) error
	Close() error
}

const (
	SourceName    = "slotkeeper"
	SchemaVersion = "1"
)

// LogSink writes every event to the service log.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, e model.Event) error {
	s.log.Info("Event published",
		"event_id", e.ID,
		"type", e.Type,
		"subject_id", e.SubjectID,
		"version", e.Version,
		"timestamp", e.Timestamp,
	)
	return nil
}

func (s *LogSink) Close() error { return nil }

// Fanout delivers events to in-process subscribers. A subscriber whose buffer is full
// misses the event and recovers through its VersionTracker gap handling.
type Fanout struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan model.Event
	log    *logger.Logger
}

func NewFanout(log *logger.Logger) *Fanout {
	return &Fanout{subs: make(map[int]chan model.Event), log: log}
}

func (f *Fanout) Name() string { return "fanout" }

// Subscribe returns a channel of events and a cancel func that closes it.
func (f *Fanout) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan model.Event, buffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

func (f *Fanout) Deliver(_ context.Context, e model.Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, ch := range f.subs {
		select {
		case ch <- e:
		default:
			f.log.Warn("Fanout subscriber is full, dropping event",
				"subscriber", id,
				"subject_id", e.SubjectID,
				"version", e.Version,
			)
		}
	}
	return nil
}

func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
	return nil
}
