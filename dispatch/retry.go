package dispatch

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig bounds the internal retry loop for transient API failures.
type RetryConfig struct {
	// MaxAttempts is the attempt ceiling, including the first try.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 5s
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% randomness to each delay.
	// Default: false (set by New)
	Jitter bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	return c
}

// retryOutcome is one decision of the retry state machine.
type retryOutcome int

const (
	retryStop retryOutcome = iota
	retryAgain
)

// classify decides whether a failed attempt is retried. Only transient API
// failures retry; every other class stops immediately.
func classify(attempt, maxAttempts int, err error, transient func(error) bool) retryOutcome {
	if err == nil || attempt >= maxAttempts {
		return retryStop
	}
	if !transient(err) {
		return retryStop
	}
	return retryAgain
}

// runWithRetry executes op until it succeeds, fails permanently, or the
// attempt ceiling is reached. It returns the final value, the number of
// attempts actually made, and the final error.
func runWithRetry(ctx context.Context, cfg RetryConfig, transient func(error) bool, op func(context.Context) (any, error)) (any, int, error) {
	cfg = cfg.withDefaults()

	var (
		value any
		err   error
	)
	attempt := 0
	for attempt < cfg.MaxAttempts {
		attempt++
		value, err = op(ctx)

		if classify(attempt, cfg.MaxAttempts, err, transient) == retryStop {
			return value, attempt, err
		}

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(backoffDelay(cfg, attempt)):
		}
	}
	return value, attempt, err
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if quarter := int64(delay / 4); cfg.Jitter && quarter > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(quarter))
	}
	return delay
}
