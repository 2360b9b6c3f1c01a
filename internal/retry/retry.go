// Package retry runs a fallible unit of work with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy controls how an operation is retried. The delay after failed attempt
// k (0-indexed) is BaseDelay * 2^k.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// RetryIf reports whether err may be retried. Nil retries every error.
	RetryIf func(err error) bool
	// OnRetry, when set, observes every scheduled retry.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// Delay returns the wait that follows failed attempt k.
func (p Policy) Delay(k int) time.Duration {
	p = p.withDefaults()
	return p.BaseDelay << k
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts or ctx is cancelled. After exhaustion the last error is returned
// unmodified. Each intermediate failure is logged as a warning and the
// terminal one as an error.
func Do(ctx context.Context, p Policy, logger *zap.Logger, op func(ctx context.Context) error) error {
	p = p.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.Delay(p.MaxAttempts),
	}

	attempt := 0
	permanent := false
	var lastErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		lastErr = err
		if p.RetryIf != nil && !p.RetryIf(err) {
			permanent = true
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.MaxAttempts),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
			if p.OnRetry != nil {
				p.OnRetry(attempt, next, err)
			}
		}),
	)
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}

	if ctx.Err() != nil {
		logger.Info("Retry interrupted by cancellation",
			zap.Int("attempt", attempt),
			zap.NamedError("last_error", lastErr),
		)
		return err
	}

	if permanent {
		return err
	}

	logger.Error("All attempts failed",
		zap.Int("attempts", attempt),
		zap.Int("max_attempts", p.MaxAttempts),
		zap.Error(err),
	)
	return err
}
