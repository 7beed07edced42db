// Package retry provides generic retry logic for transient failures. It
// understands the settlement error taxonomy: a taxonomy error decides both
// whether to retry and, when it carries a backoff hint, how long to wait.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	arcade "github.com/quarterslot/arcade-x402"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (including initial attempt)
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultConfig provides sensible defaults for retry operations.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
}

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

// Taxonomy is the IsRetryable policy for settlement errors: taxonomy errors
// retry exactly when their kind is retryable, anything else does not retry.
func Taxonomy(err error) bool {
	var terr *arcade.TaxonomyError
	if errors.As(err, &terr) {
		return terr.Retryable()
	}
	return false
}

// WithRetry executes fn with retry logic. It applies exponential backoff,
// but a taxonomy error carrying a backoff hint overrides the computed delay
// for that attempt. Context cancellation aborts the loop.
func WithRetry[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func() (T, error),
) (T, error) {
	var zero T
	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}

		// Don't sleep after the last attempt.
		if attempt < config.MaxAttempts-1 {
			wait := delay
			if hint := backoffHint(err); hint > 0 {
				wait = hint
			}
			select {
			case <-time.After(wait):
				delay = time.Duration(float64(delay) * config.Multiplier)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// WithTaxonomyRetry retries fn with default configuration under the taxonomy
// retryability policy.
func WithTaxonomyRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return WithRetry(ctx, DefaultConfig, Taxonomy, fn)
}

func backoffHint(err error) time.Duration {
	var terr *arcade.TaxonomyError
	if errors.As(err, &terr) {
		return terr.RetryAfter
	}
	return 0
}
