package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/mrz1836/cadence/internal/ctxutil"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// RetryPolicy bounds how often a phase attempt may be repeated.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// Backoff is the pause between attempts.
	Backoff time.Duration
}

// Attempts returns the total attempt budget.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Retry invokes fn up to the policy's attempt budget. fn reports done=true to
// stop (its error, possibly nil, becomes the result). done=false requests
// another attempt after the backoff pause. An exhausted budget returns the
// last error wrapped with ErrMaxRetriesExceeded.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) (bool, error)) error {
	var lastErr error

	for attempt := 1; attempt <= policy.Attempts(); attempt++ {
		if err := ctxutil.Canceled(ctx); err != nil {
			return err
		}

		done, err := fn(ctx, attempt)
		if done {
			return err
		}
		lastErr = err

		if attempt == policy.Attempts() {
			break
		}
		if policy.Backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Backoff):
			}
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %w", cadenceerrors.ErrMaxRetriesExceeded, policy.Attempts(), lastErr)
	}
	return fmt.Errorf("%w after %d attempts", cadenceerrors.ErrMaxRetriesExceeded, policy.Attempts())
}
