// Package retry provides bounded retries with exponential backoff for
// transient portal failures.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	errs "cfmmcdl/pkg/errors"
	"cfmmcdl/pkg/logger"
)

// Operation is a retryable unit of work.
type Operation func() error

// Backoff computes the delay before the given retry attempt (1-based).
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// Exponential is exponential backoff with jitter.
type Exponential struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultBackoff returns the backoff used for portal retries.
func DefaultBackoff() *Exponential {
	return &Exponential{
		BaseDelay:    2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay implements Backoff.
func (e *Exponential) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(e.BaseDelay) * math.Pow(e.Multiplier, float64(attempt-1))
	if delay > float64(e.MaxDelay) {
		delay = float64(e.MaxDelay)
	}
	if e.JitterFactor > 0 {
		jitter := delay * e.JitterFactor
		delay += rand.Float64()*2*jitter - jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Constant is a fixed delay between attempts.
type Constant struct {
	Delay time.Duration
}

// NextDelay implements Backoff.
func (c *Constant) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return c.Delay
}

// Config controls Do.
type Config struct {
	// MaxAttempts bounds the number of attempts; zero means one attempt.
	MaxAttempts int
	Backoff     Backoff
	// RetryIf decides whether an error is worth another attempt.
	RetryIf func(error) bool
	Context context.Context
	Logger  logger.Logger
}

// DefaultConfig retries transient portal failures up to three times.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultBackoff(),
		RetryIf:     RetryTransient,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// RetryTransient is the default predicate: retry only failure kinds the
// taxonomy marks retryable, and never after cancellation.
func RetryTransient(err error) bool {
	if err == nil {
		return false
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}
	if kind := errs.KindOf(err); kind != "" {
		return errs.IsRetryable(kind)
	}
	return false
}

// Do runs op until it succeeds, the attempt budget is spent, the error is not
// retryable, or the context is cancelled.
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := cfg.Context.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := time.Duration(0)
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying after failure", map[string]interface{}{
				"attempt":  attempt,
				"error":    err.Error(),
				"delay_ms": delay.Milliseconds(),
			})
		}
		if err := Wait(cfg.Context, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
	return fmt.Errorf("max retry attempts (%d) exceeded: %w", maxAttempts, lastErr)
}

// Wait sleeps for delay or until ctx is done.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
