// Package backoff retries fallible operations with exponential delays.
package backoff

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy describes how many times an operation is retried and the delay
// before the first retry. Each following delay doubles. There is no jitter
// and no cap, so the worst case adds BaseDelay*(2^Retries-1) of sleep on top
// of Retries+1 attempts.
type Policy struct {
	Retries   int
	BaseDelay time.Duration
}

// DefaultPolicy is used by the source adapters.
var DefaultPolicy = Policy{Retries: 3, BaseDelay: time.Second}

// Delays returns the full delay sequence the policy would sleep through.
func (p Policy) Delays() []time.Duration {
	b := p.backoff()
	var out []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			return out
		}
		out = append(out, d)
	}
}

func (p Policy) backoff() retry.Backoff {
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	if p.BaseDelay <= 0 {
		// retry.NewExponential panics on a non-positive base.
		zero := retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
		return retry.WithMaxRetries(uint64(retries), zero)
	}
	return retry.WithMaxRetries(uint64(retries), retry.NewExponential(p.BaseDelay))
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type options struct {
	sleep   Sleeper
	retryIf func(error) bool
	notify  func(attempt int, delay time.Duration, err error)
}

// Option customizes a single Do call.
type Option func(*options)

// WithSleeper replaces the timer based sleep, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithRetryIf limits retries to errors for which fn returns true. Other
// errors are returned immediately.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) { o.retryIf = fn }
}

// WithNotify registers a callback invoked before every sleep.
func WithNotify(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) { o.notify = fn }
}

// Do calls op until it succeeds or the policy's retries are used up. The last
// error is returned as is, so callers can still match it with errors.Is and
// errors.As. If ctx is cancelled while sleeping, ctx.Err() is returned.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), opts ...Option) (T, error) {
	o := options{sleep: Sleep}
	for _, opt := range opts {
		opt(&o)
	}

	b := p.backoff()
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if o.retryIf != nil && !o.retryIf(err) {
			return v, err
		}
		delay, stop := b.Next()
		if stop {
			return v, err
		}
		if o.notify != nil {
			o.notify(attempt, delay, err)
		}
		if serr := o.sleep(ctx, delay); serr != nil {
			var zero T
			return zero, serr
		}
	}
}

// Budget hands out the delays of a policy one at a time. The controller
// keeps one per query for rate limit retries.
type Budget struct {
	b    retry.Backoff
	used int
}

// NewBudget creates a budget from p.
func NewBudget(p Policy) *Budget {
	return &Budget{b: p.backoff()}
}

// Next returns the next delay, or false once the budget is spent.
func (b *Budget) Next() (time.Duration, bool) {
	d, stop := b.b.Next()
	if stop {
		return 0, false
	}
	b.used++
	return d, true
}

// Used reports how many delays have been handed out.
func (b *Budget) Used() int { return b.used }
