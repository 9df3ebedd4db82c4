// Package ratelimit implements fixed-window request counting on top of a shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"hookgate/pkg/metrics"
)

const keyPrefix = "ratelimit:"

// Counter is satisfied by the key-value store. ttl applies when the counter is created.
type Counter interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type Policy struct {
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time until the current window closes. Never above the window.
	RetryAfter time.Duration
	ResetAt    time.Time
}

// RetryAfterSeconds rounds RetryAfter up, as the Retry-After header expects whole seconds.
func (d Decision) RetryAfterSeconds() int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type Limiter struct {
	counter  Counter
	def      Policy
	policies map[string]Policy
	now      func() time.Time
}

type Option func(*Limiter)

func WithPolicy(route string, p Policy) Option {
	return func(l *Limiter) { l.policies[route] = p }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(counter Counter, def Policy, opts ...Option) *Limiter {
	l := &Limiter{
		counter:  counter,
		def:      def,
		policies: make(map[string]Policy),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Policy(route string) Policy {
	if p, ok := l.policies[route]; ok {
		return p
	}
	return l.def
}

// Allow counts one request for (route, clientKey) in the current window. The request that
// takes the counter to Limit+1 is the first one rejected. A counter failure fails open and
// the error is returned alongside an allowing decision.
func (l *Limiter) Allow(ctx context.Context, route, clientKey string) (Decision, error) {
	p := l.Policy(route)
	now := l.now()

	window := now.UnixNano() / int64(p.Window)
	resetAt := time.Unix(0, (window+1)*int64(p.Window))

	d := Decision{
		Limit:      p.Limit,
		RetryAfter: resetAt.Sub(now),
		ResetAt:    resetAt,
	}

	count, err := l.counter.Increment(ctx, windowKey(route, clientKey, window), p.Window)
	if err != nil {
		metrics.RateLimitDecisionsTotal.WithLabelValues(route, "error").Inc()
		d.Allowed = true
		d.Remaining = p.Limit
		return d, fmt.Errorf("rate limit counter failed: %w", err)
	}

	if count > int64(p.Limit) {
		metrics.RateLimitDecisionsTotal.WithLabelValues(route, "limited").Inc()
		return d, nil
	}

	metrics.RateLimitDecisionsTotal.WithLabelValues(route, "allowed").Inc()
	d.Allowed = true
	d.Remaining = p.Limit - int(count)
	return d, nil
}

func windowKey(route, clientKey string, window int64) string {
	return keyPrefix + route + ":" + clientKey + ":" + strconv.FormatInt(window, 10)
}
