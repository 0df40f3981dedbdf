package scanner

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"
)

// DelayRange is a uniform jitter window [Min, Max).
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// RetryPolicy bounds how hard a Pool tries one source per cycle.
type RetryPolicy struct {
	// MaxAttempts caps identity attempts per fetch; the identity count caps it further.
	MaxAttempts int
	// TransientRetries is how often the same identity is retried after a non-blocking error.
	TransientRetries int
	TransientDelay   DelayRange
	// RequestDelay is waited before every request.
	RequestDelay DelayRange
	// CooldownAfter consecutive exhausted fetches put the connector on cool-down; 0 disables.
	CooldownAfter  int
	CooldownPeriod time.Duration
}

// DefaultRetryPolicy mirrors the production pacing.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		TransientRetries: 1,
		TransientDelay:   DelayRange{Min: 2 * time.Second, Max: 5 * time.Second},
		RequestDelay:     DelayRange{Min: 2 * time.Second, Max: 8 * time.Second},
		CooldownAfter:    3,
		CooldownPeriod:   15 * time.Minute,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.TransientRetries < 0 {
		p.TransientRetries = 0
	}
	if p.CooldownAfter < 0 {
		p.CooldownAfter = 0
	}
	return p
}

// AttemptBudget is min(MaxAttempts, identities).
func (p RetryPolicy) AttemptBudget(identities int) int {
	budget := p.normalized().MaxAttempts
	if identities < budget {
		budget = identities
	}
	return budget
}

// Schedule turns the range into a go-retry backoff centred on the midpoint with
// half-width jitter. A zero range yields nil, which means no wait.
func (d DelayRange) Schedule() retry.Backoff {
	if d.Max < d.Min {
		d.Max = d.Min
	}
	mid := d.Min + (d.Max-d.Min)/2
	if mid <= 0 {
		return nil
	}
	b := retry.NewConstant(mid)
	if half := (d.Max - d.Min) / 2; half > 0 {
		b = retry.WithJitter(half, b)
	}
	return b
}

func nextDelay(b retry.Backoff) time.Duration {
	if b == nil {
		return 0
	}
	d, stop := b.Next()
	if stop {
		return 0
	}
	return d
}

// sleepContext waits d on clock unless ctx ends first.
func sleepContext(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
