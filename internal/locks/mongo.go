package locks

import (
	"context"
	"errors"
	"fmt"
	"slotkeeper/internal/repository"
	"slotkeeper/pkg/model"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var errBusy = errors.New("lock held")

const releaseTimeout = 2 * time.Second

// mongoLocker uses one advisory document per key. The unique _id makes the insert
// the decisive check. expires_at bounds how long a crashed holder can block others.
type mongoLocker struct {
	collection *mongo.Collection
	wait       time.Duration
	lease      time.Duration
}

func NewMongo(db *mongo.Database, wait, lease time.Duration) Locker {
	return &mongoLocker{
		collection: db.Collection(repository.LocksCollection),
		wait:       wait,
		lease:      lease,
	}
}

func (l *mongoLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	token := uuid.NewString()

	op := func() error {
		now := time.Now().UTC()
		_, err := l.collection.InsertOne(ctx, model.UnitLock{
			ID:        key,
			Token:     token,
			ExpiresAt: now.Add(l.lease),
			CreatedAt: now,
		})
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return backoff.Permanent(fmt.Errorf("failed to create lock %s: %w", key, err))
		}
		// evict a lease left behind by a crashed holder
		if _, err := l.collection.DeleteOne(ctx, bson.M{"_id": key, "expires_at": bson.M{"$lt": now}}); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to evict stale lock %s: %w", key, err))
		}
		return errBusy
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
			_, _ = l.collection.DeleteOne(releaseCtx, bson.M{"_id": key, "token": token})
		})
	}, nil
}

func newWaitBackOff(wait time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = wait
	b.Reset()
	return b
}
