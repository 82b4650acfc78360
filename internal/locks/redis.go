package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	client *redis.Client
	prefix string
	wait   time.Duration
	lease  time.Duration
}

func NewRedis(client *redis.Client, wait, lease time.Duration) Locker {
	return &redisLocker{
		client: client,
		prefix: "slotkeeper:lock:",
		wait:   wait,
		lease:  lease,
	}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	op := func() error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.lease).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to set lock %s: %w", key, err))
		}
		if !ok {
			return errBusy
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(newWaitBackOff(l.wait), ctx)); err != nil {
		if errors.Is(err, errBusy) {
			return nil, timeoutError(key, l.wait)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}
