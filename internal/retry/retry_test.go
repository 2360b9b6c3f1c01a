package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	logger, logs := newObservedLogger()
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		OnRetry: func(_ int, d time.Duration, _ error) {
			delays = append(delays, d)
		},
	}

	calls := 0
	err := Do(context.Background(), p, logger, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	logger, logs := newObservedLogger()
	errBoom := errors.New("boom")

	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, logger, func(context.Context) error {
		calls++
		return errBoom
	})

	assert.Same(t, errBoom, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	logger, logs := newObservedLogger()
	errFatal := errors.New("fatal")
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		RetryIf:     func(err error) bool { return !errors.Is(err, errFatal) },
	}

	calls := 0
	err := Do(context.Background(), p, logger, func(context.Context) error {
		calls++
		return errFatal
	})

	assert.Same(t, errFatal, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, logs.Len())
}

func TestDo_NonRetryableOnLastAttemptIsUnwrapped(t *testing.T) {
	logger, logs := newObservedLogger()
	errFatal := errors.New("fatal")
	p := Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		RetryIf:     func(err error) bool { return !errors.Is(err, errFatal) },
	}

	calls := 0
	err := Do(context.Background(), p, logger, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return errFatal
	})

	assert.Same(t, errFatal, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestDo_CancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Hour,
		OnRetry:     func(int, time.Duration, error) { cancel() },
	}

	calls := 0
	start := time.Now()
	err := Do(ctx, p, zap.NewNop(), func(context.Context) error {
		calls++
		return errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))

	assert.Equal(t, DefaultBaseDelay, Policy{}.Delay(0))
}
