package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how a failing call is retried.
type Policy struct {
	// Attempts is the total number of tries, the first one included.
	Attempts int

	// Backoff is the delay before the first retry; it doubles per retry
	// and is capped at MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Jitter spreads each delay by ±Jitter of its value.
	Jitter float64

	// Retryable overrides IsTransient when set.
	Retryable func(err error) bool

	// Service and Op label retry log lines.
	Service string
	Op      string
}

// CRMPolicy is the policy used for Pipedrive calls: one retry on transient
// failures, short backoff so a webhook request is not held up.
func CRMPolicy(attempts int, op string) Policy {
	if attempts <= 0 {
		attempts = 2
	}
	return Policy{
		Attempts:   attempts,
		Backoff:    400 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
		Jitter:     0.25,
		Service:    "pipedrive",
		Op:         op,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the policy
// is exhausted or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that return a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var err error
	for attempt := 1; ; attempt++ {
		var val T
		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt >= p.Attempts {
			return zero, err
		}

		zap.L().Warn("resilience: retrying",
			zap.String("service", p.Service),
			zap.String("op", p.Op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// delay returns the sleep before retry number n (1-based).
func (p Policy) delay(n int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(n-1))
	d = math.Min(d, float64(p.MaxBackoff))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(math.Max(d, 0))
}
