package engine

import (
	"context"
	"time"
)

// DefaultReconnectInterval is the fixed delay between failed connection attempts.
const DefaultReconnectInterval = 10 * time.Second

// Sleeper waits between connection attempts.
type Sleeper interface {
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Backoff is a fixed-interval retry delay; the interval never grows.
type Backoff struct {
	interval time.Duration
	sleeper  Sleeper
	attempts int
}

// NewBackoff creates a backoff sleeping interval between attempts.
func NewBackoff(interval time.Duration, sleeper Sleeper) *Backoff {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	if sleeper == nil {
		sleeper = timerSleeper{}
	}
	return &Backoff{interval: interval, sleeper: sleeper}
}

// Fail counts a failed attempt and returns the number of consecutive
// failures, including this one.
func (b *Backoff) Fail() int {
	b.attempts++
	return b.attempts
}

// Sleep waits one interval.
func (b *Backoff) Sleep(ctx context.Context) error {
	return b.sleeper.Sleep(ctx, b.interval)
}

// Reset clears the failure count after a successful connection.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Interval returns the retry delay.
func (b *Backoff) Interval() time.Duration {
	return b.interval
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
