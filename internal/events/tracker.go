package events

import "sync"

type Decision int

const (
	// Applied means the event is the next one for its subject.
	Applied Decision = iota
	// Duplicate means the version was already seen.
	Duplicate
	// Gap means at least one version is missing; the subject must be re-fetched.
	Gap
)

func (d Decision) String() string {
	switch d {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Gap:
		return "gap"
	default:
		return "unknown"
	}
}

// VersionTracker lets a subscriber apply each subject's events exactly in version order.
// Safe for concurrent use.
type VersionTracker struct {
	mu   sync.Mutex
	last map[string]int64
}

func NewVersionTracker() *VersionTracker {
	return &VersionTracker{last: make(map[string]int64)}
}

// Observe classifies version for subject and advances the baseline when it is Applied.
// A subject never seen before has baseline 0.
func (t *VersionTracker) Observe(subject string, version int64) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	last := t.last[subject]
	switch {
	case version <= last:
		return Duplicate
	case version == last+1:
		t.last[subject] = version
		return Applied
	default:
		return Gap
	}
}

// Reset sets the baseline after a re-fetch. It never moves the baseline backwards.
func (t *VersionTracker) Reset(subject string, version int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if version > t.last[subject] {
		t.last[subject] = version
	}
}

func (t *VersionTracker) Last(subject string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[subject]
}
