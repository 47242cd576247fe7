package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Policy selects the behavior when a bucket has insufficient tokens.
type Policy int

const (
	// Reject returns an ungranted decision carrying the wait estimate.
	Reject Policy = iota
	// Block waits (bounded by MaxWait and the context) for tokens to accrue.
	Block
)

// Config configures the limiter. The defaults derive from a published quota
// of 5000 requests/hour spread evenly over time.
type Config struct {
	// Capacity is the bucket size in tokens.
	// Default: 100
	Capacity float64

	// Rate is the refill rate in tokens per second.
	// Default: 5000/3600
	Rate float64

	// Policy selects reject-or-block on insufficient tokens.
	// Default: Reject
	Policy Policy

	// MaxWait bounds how long Block waits for tokens.
	// Default: 1 minute
	MaxWait time.Duration
}

// Decision is the outcome of an acquire.
type Decision struct {
	// Granted reports whether the tokens were debited.
	Granted bool

	// RetryAfter estimates when enough tokens will have accrued. Zero when
	// granted, or when the bucket never refills (rate 0).
	RetryAfter time.Duration
}

// Limiter holds one token bucket per installation id.
type Limiter struct {
	config Config

	mu      sync.Mutex
	buckets map[int64]*bucket
}

type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewLimiter creates a limiter.
func NewLimiter(config Config) *Limiter {
	if config.Capacity <= 0 {
		config.Capacity = 100
	}
	if config.Rate < 0 {
		config.Rate = 0
	} else if config.Rate == 0 {
		config.Rate = 5000.0 / 3600.0
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Minute
	}

	return &Limiter{
		config:  config,
		buckets: make(map[int64]*bucket),
	}
}

// NewFrozenLimiter creates a limiter whose buckets never refill. Useful for
// tests that need a fixed budget.
func NewFrozenLimiter(capacity float64, policy Policy, maxWait time.Duration) *Limiter {
	l := NewLimiter(Config{Capacity: capacity, Rate: 1, Policy: policy, MaxWait: maxWait})
	l.config.Rate = 0
	return l
}

// Acquire debits cost tokens from the installation's bucket.
//
// With insufficient tokens, Reject policy returns an ungranted decision with
// a RetryAfter estimate; Block policy waits for accrual (bounded by MaxWait
// and ctx) and retries. The check-and-debit is atomic per bucket.
func (l *Limiter) Acquire(ctx context.Context, installationID int64, cost float64) (Decision, error) {
	b := l.bucket(installationID)
	deadline := time.Now().Add(l.config.MaxWait)

	for {
		granted, wait := b.tryDebit(cost, l.config.Capacity, l.config.Rate)
		if granted {
			return Decision{Granted: true}, nil
		}

		if l.config.Policy == Reject {
			return Decision{Granted: false, RetryAfter: wait}, nil
		}

		// Block policy. A bucket that never refills cannot satisfy the
		// request; report back immediately rather than sleeping for nothing.
		if l.config.Rate <= 0 {
			return Decision{Granted: false}, nil
		}

		now := time.Now()
		if now.Add(wait).After(deadline) {
			remaining := deadline.Sub(now)
			if remaining <= 0 {
				return Decision{Granted: false, RetryAfter: wait}, nil
			}
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// TrueUp clamps the installation's bucket downward when the external API
// reports fewer remaining requests than locally tracked. Never raises the
// bucket.
func (l *Limiter) TrueUp(installationID int64, remaining float64) {
	b := l.bucket(installationID)
	b.mu.Lock()
	defer b.mu.Unlock()

	// Settle accrual up to now before comparing. Clamping a stale balance
	// would let the next refill credit time from before the report and undo
	// the clamp.
	b.refillLocked(l.config.Capacity, l.config.Rate)

	if remaining < b.tokens {
		b.tokens = remaining
		if b.tokens < 0 {
			b.tokens = 0
		}
	}
}

// Tokens returns the installation's current token balance after refill.
func (l *Limiter) Tokens(installationID int64) float64 {
	b := l.bucket(installationID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(l.config.Capacity, l.config.Rate)
	return b.tokens
}

func (l *Limiter) bucket(installationID int64) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[installationID]
	if !ok {
		b = &bucket{tokens: l.config.Capacity, last: time.Now()}
		l.buckets[installationID] = b
	}
	return b
}

// tryDebit atomically refills and attempts the debit. On failure it returns
// the time until cost tokens will have accrued (zero when rate is 0).
func (b *bucket) tryDebit(cost, capacity, rate float64) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(capacity, rate)

	if b.tokens >= cost {
		b.tokens -= cost
		return true, 0
	}

	if rate <= 0 {
		return false, 0
	}
	wait := time.Duration((cost - b.tokens) / rate * float64(time.Second))
	return false, wait
}

func (b *bucket) refillLocked(capacity, rate float64) {
	now := time.Now()
	elapsed := now.Sub(b.last)
	b.last = now

	b.tokens += elapsed.Seconds() * rate
	if b.tokens > capacity {
		b.tokens = capacity
	}
}
