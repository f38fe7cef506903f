// Package ratelimit paces authenticated community-API calls off the
// platform's live quota headers.
package ratelimit

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultRemaining is the permissive budget assumed before the first
	// response corrects it, and restored after a quota reset (the true
	// post-reset budget is unknown until the next response arrives).
	DefaultRemaining = 60

	minDelay       = 1 * time.Second
	lowWater       = 10
	perCallPenalty = 500 * time.Millisecond
)

// Limiter tracks the remaining call quota for one account's run and
// blocks callers until the next call is safe to issue.
//
// Not safe for concurrent use by design: it is a single cooperative
// pacing point. All community-search calls for one account must
// serialize through one Limiter.
type Limiter struct {
	remaining float64
	resetAt   time.Time
	lastCall  time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

// New creates a Limiter with the permissive default budget.
func New() *Limiter {
	return &Limiter{
		remaining: DefaultRemaining,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// WaitIfNeeded blocks until a call is safe to issue. With the budget
// exhausted it sleeps until the quota reset and restores the default
// budget; otherwise it enforces the minimum inter-call delay plus a
// penalty that grows as the budget approaches exhaustion, so throughput
// degrades smoothly instead of bursting into a 429.
func (l *Limiter) WaitIfNeeded(ctx context.Context) {
	now := l.now()

	if l.remaining <= 0 {
		if wait := l.resetAt.Sub(now); wait > 0 {
			log.Printf("Rate limit exhausted, sleeping %s until reset", wait.Round(time.Second))
			l.sleep(ctx, wait)
		}
		l.remaining = DefaultRemaining
		now = l.now()
	}

	delay := minDelay
	if l.remaining < lowWater {
		delay += time.Duration(lowWater-l.remaining) * perCallPenalty
	}

	if !l.lastCall.IsZero() {
		if elapsed := now.Sub(l.lastCall); elapsed < delay {
			l.sleep(ctx, delay-elapsed)
		}
	}
	l.lastCall = l.now()
}

// UpdateFromHeaders overwrites internal state from the most recent
// response's quota headers. Absent or malformed headers leave the
// current state untouched.
func (l *Limiter) UpdateFromHeaders(h http.Header) {
	if v := h.Get("X-Ratelimit-Remaining"); v != "" {
		if remaining, err := strconv.ParseFloat(v, 64); err == nil {
			l.remaining = remaining
		}
	}
	if v := h.Get("X-Ratelimit-Reset"); v != "" {
		if seconds, err := strconv.ParseFloat(v, 64); err == nil {
			l.resetAt = l.now().Add(time.Duration(seconds * float64(time.Second)))
		}
	}
}

// Decrement consumes one call from the budget. Called right after each
// dispatch, regardless of the call's outcome.
func (l *Limiter) Decrement() {
	l.remaining--
}

// Remaining reports the currently assumed budget.
func (l *Limiter) Remaining() float64 {
	return l.remaining
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
