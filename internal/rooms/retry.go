package rooms

import (
	"context"
	"errors"
	"time"

	"chattrix-service/internal/repositories"
)

const writeRetryBackoff = 100 * time.Millisecond

// retryWrite runs a backend write and, on failure, retries exactly once after
// a short backoff. Domain sentinels are surfaced immediately; only genuine
// backend failures are worth a second attempt.
func retryWrite(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !retryable(err) {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(writeRetryBackoff):
	}
	return op()
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound),
		errors.Is(err, repositories.ErrSessionNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrDuplicateSession),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
