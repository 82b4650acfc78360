// Package locks provides per-key critical sections with a bounded wait.
package locks

import (
	"context"
	"errors"
	"fmt"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"time"
)

var ErrTimeout = errors.New("lock wait exceeded")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Locker serializes callers per key. Lock blocks for at most the configured wait and then
// fails with a Transient error wrapping ErrTimeout.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

func UnitKey(unitID string) string {
	return "unit:" + unitID
}

func IdempotencyKey(key string) string {
	return "idem:" + key
}

func BookingKey(bookingID string) string {
	return "booking:" + bookingID
}

func timeoutError(key string, wait time.Duration) error {
	return apperrors.Transient(
		fmt.Sprintf("Resource is busy, retry shortly (waited %s)", wait),
		fmt.Errorf("%w: %s", ErrTimeout, key),
	)
}

// New builds the locker selected by cfg.LockBackend. Mongo and Redis backends need the
// matching client connected on cfg.Client.
func New(cfg *config.Config) (Locker, error) {
	switch cfg.LockBackend {
	case config.BackendMemory:
		return NewMemory(cfg.LockWait), nil
	case config.BackendMongo:
		if cfg.Client.Mongo == nil {
			return nil, errors.New("mongo lock backend selected but mongo is not connected")
		}
		db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
		return NewMongo(db, cfg.LockWait, cfg.LockLease), nil
	case config.BackendRedis:
		if cfg.Client.Redis == nil {
			return nil, errors.New("redis lock backend selected but redis is not connected")
		}
		return NewRedis(cfg.Client.Redis, cfg.LockWait, cfg.LockLease), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

// WaitObserver receives how long each Lock call waited and whether it succeeded.
type WaitObserver func(waited time.Duration, err error)

type observed struct {
	inner   Locker
	observe WaitObserver
}

func WithWaitObserver(l Locker, observe WaitObserver) Locker {
	return &observed{inner: l, observe: observe}
}

func (o *observed) Lock(ctx context.Context, key string) (Unlock, error) {
	start := time.Now()
	unlock, err := o.inner.Lock(ctx, key)
	o.observe(time.Since(start), err)
	return unlock, err
}
