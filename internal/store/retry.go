package store

import (
	"context"
	"time"

	constants "logamizer/config"
	"logamizer/internal/logger"
)

// WithRetry runs op, retrying transient persistence failures with capped
// exponential backoff. Non-transient errors and context cancellation return
// immediately.
func WithRetry(ctx context.Context, op string, fn func() error) error {
	delay := constants.PERSIST_BASE_DELAY_MS * time.Millisecond
	maxDelay := constants.PERSIST_MAX_DELAY_MS * time.Millisecond

	var err error
	for attempt := 1; attempt <= constants.PERSIST_MAX_ATTEMPTS; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == constants.PERSIST_MAX_ATTEMPTS {
			break
		}
		logger.Warning("Transient failure on %s (attempt %d/%d): %v", op, attempt, constants.PERSIST_MAX_ATTEMPTS, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return err
}
