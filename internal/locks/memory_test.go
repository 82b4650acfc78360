package locks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "slotkeeper/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SerializesPerKey(t *testing.T) {
	locker := NewMemory(time.Second)
	var inside, maxInside int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), UnitKey("u1"))
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestMemory_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewMemory(50 * time.Millisecond)

	unlockA, err := locker.Lock(context.Background(), UnitKey("a"))
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(context.Background(), UnitKey("b"))
	require.NoError(t, err)
	unlockB()
}

func TestMemory_BoundedWaitIsTransient(t *testing.T) {
	locker := NewMemory(20 * time.Millisecond)

	unlock, err := locker.Lock(context.Background(), UnitKey("u1"))
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = locker.Lock(context.Background(), UnitKey("u1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestMemory_UnlockIsIdempotent(t *testing.T) {
	locker := NewMemory(20 * time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock2, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()

	ml := locker.(*memoryLocker)
	assert.Empty(t, ml.slots)
}

func TestMemory_ContextCancelled(t *testing.T) {
	locker := NewMemory(time.Second)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithWaitObserver(t *testing.T) {
	var calls int
	var lastErr error
	locker := WithWaitObserver(NewMemory(10*time.Millisecond), func(_ time.Duration, err error) {
		calls++
		lastErr = err
	})

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	_, err = locker.Lock(context.Background(), "k")
	require.Error(t, err)
	unlock()

	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, lastErr, ErrTimeout)
}
