package redisstore

import (
	"context"
	"fmt"
	"time"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
)

// retryOperation runs a redis operation with bounded exponential backoff so
// a restarting redis does not fail a verification outright.
func retryOperation[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	var lastErr error
	var zero T

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := operation()
		if err != nil {
			lastErr = err
			continue
		}

		return result, nil
	}

	return zero, fmt.Errorf("redis operation failed after %d retries: %w", maxRetries, lastErr)
}
