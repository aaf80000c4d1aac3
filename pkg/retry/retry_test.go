package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "cfmmcdl/pkg/errors"
	"cfmmcdl/pkg/logger"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &Constant{Delay: time.Millisecond},
		RetryIf:     RetryTransient,
		Context:     context.Background(),
		Logger:      logger.Nop(),
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientFailures(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return errs.New(errs.KindPortalUnavailable, "timeout")
		}
		return nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	calls := 0
	terminal := errs.New(errs.KindInvalidCredentials, "bad password")
	err := Do(func() error {
		calls++
		return terminal
	}, fastConfig(3))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errs.IsKind(err, errs.KindInvalidCredentials))
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errs.New(errs.KindPortalUnavailable, "still down")
	}, fastConfig(3))

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retry attempts")
	assert.True(t, errs.IsKind(err, errs.KindPortalUnavailable))
}

func TestDoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastConfig(3)
	cfg.Context = ctx

	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, cfg)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryTransientPredicate(t *testing.T) {
	assert.False(t, RetryTransient(nil))
	assert.False(t, RetryTransient(context.Canceled))
	assert.False(t, RetryTransient(errors.New("untyped")))
	assert.True(t, RetryTransient(errs.New(errs.KindCaptchaRejected, "wrong")))
	assert.False(t, RetryTransient(errs.New(errs.KindDownloadFailed, "export")))
}

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	b := &Exponential{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   40 * time.Millisecond,
		Multiplier: 2.0,
	}

	assert.Equal(t, 10*time.Millisecond, b.NextDelay(1))
	assert.Equal(t, 20*time.Millisecond, b.NextDelay(2))
	assert.Equal(t, 40*time.Millisecond, b.NextDelay(3))
	assert.Equal(t, 40*time.Millisecond, b.NextDelay(10))
	assert.Equal(t, time.Duration(0), b.NextDelay(0))
}
