package retry

import (
	"context"
	"errors"
	apperrors "slotkeeper/pkg/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestDo_RetriesTransientUpToLimit(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return apperrors.Transient("busy", nil)
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnTerminalError(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return apperrors.NoCapacity("u1")
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoCapacity))
	assert.Equal(t, 1, calls)
}

func TestValue_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), fastPolicy(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", apperrors.Transient("busy", errors.New("lock"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}
