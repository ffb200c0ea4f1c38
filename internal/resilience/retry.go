// Package resilience holds the policy wrappers applied at external
// call sites: bounded retry, circuit breaking, and outbound rate
// limiting.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Retry calls fn up to attempts times with a doubling delay between
// attempts. It returns nil on the first success or the last error
// after exhausting attempts. Context cancellation stops retrying.
func Retry(ctx context.Context, attempts int, delay time.Duration, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := delay

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}

		if attempt < attempts-1 {
			logger.Warn("operation failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryable reports whether Retry may attempt err again.
func Retryable(err error) bool {
	var pe *permanentError
	return !errors.As(err, &pe)
}
