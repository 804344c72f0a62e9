package k8s

import (
	"context"
	"errors"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

const (
	defaultRetryAttempts = 3
	initialBackoff       = 100 * time.Millisecond
	maxBackoff           = 2 * time.Second
)

// isRetryable is true for 429 and 5xx responses.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsTooManyRequests(err) || apierrors.IsInternalError(err) ||
		apierrors.IsServerTimeout(err) || apierrors.IsServiceUnavailable(err) {
		return true
	}
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		return status.Status().Code >= 500
	}
	return false
}

// backoff is the delay after the given 0-based attempt: 100ms tripled, capped at 2s.
func backoff(attempt int) time.Duration {
	d := initialBackoff
	for i := 0; i < attempt; i++ {
		d *= 3
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// doWithRetryValue calls fn up to maxAttempts times, sleeping between
// retryable failures. Other errors are returned at once.
func doWithRetryValue[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 0; ; attempt++ {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		if attempt == maxAttempts-1 || !isRetryable(err) {
			return zero, err
		}
		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
