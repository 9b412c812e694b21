// Package ratelimit paces the calls one workflow makes to the inference
// provider.
package ratelimit

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Limiter imposes a fixed delay between the items of one workflow's cycle.
// When a shared provider limiter is attached, every Wait also takes a token
// from it so workflows calling the same provider stay under its quota
// together.
type Limiter struct {
	delay  time.Duration
	shared *rate.Limiter
	clock  clockwork.Clock
}

// New returns a Limiter that waits delay between items. shared may be nil.
func New(delay time.Duration, shared *rate.Limiter, clock clockwork.Clock) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if delay < 0 {
		delay = 0
	}
	return &Limiter{delay: delay, shared: shared, clock: clock}
}

// NewShared returns a provider-wide limiter allowing rps calls per second,
// or nil when rps is not positive.
func NewShared(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Delay returns the fixed per-item delay.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// Wait blocks for the fixed delay and then for a shared token. It returns
// ctx.Err() if the context ends first.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.delay):
		}
	}
	if l.shared != nil {
		return l.shared.Wait(ctx)
	}
	return nil
}
