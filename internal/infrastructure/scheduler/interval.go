package scheduler

import (
	"time"

	"github.com/sethvargo/go-retry"

	"DealScanner/internal/ports"
)

// JitterSchedule sleeps interval plus a uniform random share of jitter between cycles.
type JitterSchedule struct {
	interval time.Duration
	jitter   time.Duration
	backoff  retry.Backoff
}

var _ ports.Schedule = (*JitterSchedule)(nil)

// NewJitterSchedule returns a schedule yielding delays in [interval, interval+jitter).
func NewJitterSchedule(interval, jitter time.Duration) *JitterSchedule {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if jitter < 0 {
		jitter = 0
	}
	s := &JitterSchedule{interval: interval, jitter: jitter}
	half := jitter / 2
	s.backoff = retry.NewConstant(interval + half)
	if half > 0 {
		s.backoff = retry.WithJitter(half, s.backoff)
	}
	return s
}

// Next returns the delay before the next cycle.
func (s *JitterSchedule) Next() time.Duration {
	d, stop := s.backoff.Next()
	if stop || d < s.interval {
		return s.interval
	}
	return d
}

// Interval returns the base interval.
func (s *JitterSchedule) Interval() time.Duration {
	return s.interval
}
