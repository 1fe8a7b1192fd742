package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var retryBackoff = 500 * time.Millisecond

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

func permanent(err error) error { return permanentError{err: err} }

func retryable(err error) bool {
	if errors.Is(err, ErrAccountNotFound) {
		return false
	}
	var perm permanentError
	if errors.As(err, &perm) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.temporary()
	}
	return true
}

// retry calls fn up to attempts times with a linear backoff, stopping early
// on errors that cannot succeed later.
func retry[T any](ctx context.Context, attempts int, fn func() (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(retryBackoff * time.Duration(i+1)):
		}
	}
	if attempts > 1 && retryable(lastErr) {
		return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
	}
	return zero, lastErr
}
