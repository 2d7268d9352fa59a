// Package retry wraps cenkalti/backoff in the two shapes the engine uses: a
// short fixed-interval burst for settlement submissions and exponential
// backoff with a deadline for broker connects.
package retry

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Exponential retries fn with exponential backoff until it succeeds or
// maxElapsed passes. onRetry, when non-nil, observes each failure and the
// delay before the next attempt.
func Exponential(fn func() error, initial, maxElapsed time.Duration, onRetry func(error, time.Duration)) error {
	bo := backoff.NewExponentialBackOff()
	if initial > 0 {
		bo.InitialInterval = initial
	}
	if maxElapsed > 0 {
		bo.MaxElapsedTime = maxElapsed
	}
	return backoff.RetryNotify(fn, bo, func(err error, next time.Duration) {
		if onRetry != nil {
			onRetry(err, next)
		}
	})
}

// Constant retries fn up to attempts times, pausing interval between tries,
// and reports the last error once the burst is spent.
func Constant(fn func() error, interval time.Duration, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1))
	var last error
	if err := backoff.Retry(func() error {
		last = fn()
		return last
	}, bo); err != nil {
		return fmt.Errorf("gave up after %d attempts: %w", attempts, last)
	}
	return nil
}
