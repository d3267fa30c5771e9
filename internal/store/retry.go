package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WithBackoffRetry runs op with exponential backoff capped at cfg.MaxWait
// seconds between attempts, for at most cfg.MaxAttempts tries, grounded on
// the teacher's withRetry/newServerRetryBackoff pair in its storage layer.
// SQLStore.ExecuteQueryWithRetry builds the same backoff policy inline
// rather than calling this helper.
//
// op should return a retriable error directly, or backoff.Permanent(err) to
// stop immediately on a non-retriable failure.
func WithBackoffRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	if cfg.MaxWait > 0 {
		bo.MaxInterval = time.Duration(cfg.MaxWait) * time.Second
	}
	bounded := backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return op()
	}, backoff.WithContext(bounded, ctx))
	if err != nil {
		return fmt.Errorf("%w: exhausted %d attempts: %v", ErrBackend, attempts, err)
	}
	return nil
}

// WithLinearRetry retries op up to maxAttempts times, sleeping attempt
// seconds between tries (attempt is 1-indexed), matching the vector-index
// batch retry discipline: `time.sleep(num_attempts)` between attempts,
// §4.C/§5. op reports whether the attempt should be retried; the final
// failed value (true if every attempt failed) is returned to the caller so
// it can decide whether to raise ErrIndex.
func WithLinearRetry(ctx context.Context, maxAttempts int, op func(attempt int) (retry bool, err error)) (failed bool, err error) {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retry, opErr := op(attempt)
		if opErr != nil {
			return true, opErr
		}
		if !retry {
			return false, nil
		}
		if attempt == maxAttempts {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return true, nil
}
