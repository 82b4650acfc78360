package middleware

import (
	"net/http"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const HolderHeader = "X-Holder-ID"

// KeyExtractor picks the identity a request is limited under. "" is not limited.
type KeyExtractor func(r *http.Request) string

func HolderKey(r *http.Request) string {
	return r.Header.Get(HolderHeader)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// HolderRateLimiter is a token bucket per holder: limit requests per window, with the
// full limit available as burst.
type HolderRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	every   rate.Limit
	burst   int
	idle    time.Duration
	key     KeyExtractor
	log     *logger.Logger
	stopCh  chan struct{}
	once    sync.Once
}

func NewHolderRateLimiter(limit int, window time.Duration, key KeyExtractor, log *logger.Logger) *HolderRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if key == nil {
		key = HolderKey
	}
	rl := &HolderRateLimiter{
		entries: make(map[string]*limiterEntry),
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idle:    2 * window,
		key:     key,
		log:     log,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *HolderRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *HolderRateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.entries {
		if now.Sub(entry.lastSeen) > rl.idle {
			delete(rl.entries, key)
		}
	}
}

func (rl *HolderRateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

func (rl *HolderRateLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	now := time.Now()
	rl.mu.Lock()
	entry, ok := rl.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.entries[key] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func RateLimit(limiter *HolderRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limiter.key(r)
			if !limiter.Allow(key) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", RequestID(r.Context()),
					"holder_id", key,
					"path", r.URL.Path,
				)
				httputil.WriteError(w, apperrors.RateLimited("Rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
