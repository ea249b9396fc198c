package gate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
	"github.com/mrz1836/cadence/internal/gate"
)

func TestRetry(t *testing.T) {
	t.Parallel()

	t.Run("stops when done", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := gate.Retry(context.Background(), gate.RetryPolicy{MaxRetries: 3}, func(_ context.Context, _ int) (bool, error) {
			calls++
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("budget bounds attempts", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		calls := 0
		err := gate.Retry(context.Background(), gate.RetryPolicy{MaxRetries: 2}, func(_ context.Context, attempt int) (bool, error) {
			calls++
			assert.Equal(t, calls, attempt)
			return false, boom
		})
		require.ErrorIs(t, err, cadenceerrors.ErrMaxRetriesExceeded)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("canceled context stops immediately", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := gate.Retry(ctx, gate.RetryPolicy{MaxRetries: 5}, func(_ context.Context, _ int) (bool, error) {
			t.Fatal("should not be called")
			return true, nil
		})
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("negative retries means one attempt", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, 1, gate.RetryPolicy{MaxRetries: -1}.Attempts())
	})
}
