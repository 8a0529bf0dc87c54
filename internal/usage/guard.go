// Package usage enforces monthly per-identity, per-feature quotas.
//
// Counters live in the key-value store under (identity, feature, month) and
// are never reset; a new month is a new key. The guard is plan-agnostic: the
// caller supplies the numeric limit.
//
// Consistency depends on the store. With an atomic INCR the guard is Exact:
// it increments first and denies when the new value exceeds the limit, so
// two concurrent requests can never both take the last slot. Without it the
// guard is BestEffort: it reads, compares and writes back, and a burst of
// concurrent requests may be admitted slightly past the limit.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/coder/quartz"

	"gavault/internal/identity"
	"gavault/internal/kv"
	"gavault/internal/metrics"
	"gavault/pkg/logging"
)

// CounterTTL keeps a month's counters long enough to cover the month.
const CounterTTL = 40 * 24 * time.Hour

// Unlimited as a limit admits every request; usage is still counted.
const Unlimited int64 = -1

// Consistency is the enforcement guarantee of a Guard.
type Consistency string

const (
	Exact      Consistency = "exact"
	BestEffort Consistency = "best_effort"
)

// ErrRateLimited matches every *RateLimitedError.
var ErrRateLimited = errors.New("rate limited")

// RateLimitedError carries what a caller needs to render an upgrade prompt.
type RateLimitedError struct {
	Feature string
	Limit   int64
	Current int64
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("usage limit reached for %s: %d of %d (resets %s)",
		e.Feature, e.Current, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrRateLimited) work.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// Usage is the state of one counter.
type Usage struct {
	Feature string    `json:"feature"`
	Period  string    `json:"period"`
	Current int64     `json:"current"`
	Limit   int64     `json:"limit"`
	ResetAt time.Time `json:"resetAt"`
}

// Unlimited reports whether the limit admits everything.
func (u Usage) Unlimited() bool {
	return u.Limit < 0
}

// Remaining returns how many requests are left, or -1 when unlimited.
func (u Usage) Remaining() int64 {
	if u.Unlimited() {
		return -1
	}
	return max(u.Limit-u.Current, 0)
}

// Options configures a Guard.
type Options struct {
	Store   kv.Store
	Keys    kv.Keys
	Clock   quartz.Clock
	Metrics *metrics.Metrics
}

// Guard checks and increments usage counters.
type Guard struct {
	store   kv.Store
	counter kv.Counter
	keys    kv.Keys
	clock   quartz.Clock
	metrics *metrics.Metrics
}

// New creates a Guard.
func New(opts Options) (*Guard, error) {
	if opts.Store == nil {
		return nil, errors.New("usage store is required")
	}
	if opts.Keys == (kv.Keys{}) {
		opts.Keys = kv.NewKeys("")
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}

	g := &Guard{
		store:   opts.Store,
		keys:    opts.Keys,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}
	if counter, ok := opts.Store.(kv.Counter); ok {
		g.counter = counter
	}
	logging.Info("Usage", "Usage guard consistency: %s", g.Consistency())
	return g, nil
}

// Consistency reports the enforcement guarantee.
func (g *Guard) Consistency() Consistency {
	if g.counter != nil {
		return Exact
	}
	return BestEffort
}

// CheckAndIncrement admits one use of feature by id against limit. A denial
// is a *RateLimitedError. A limit of 0 denies everything; a negative limit
// admits everything.
func (g *Guard) CheckAndIncrement(ctx context.Context, id identity.Identity, feature string, limit int64) (Usage, error) {
	if id.IsZero() {
		return Usage{}, errors.New("identity is required")
	}

	now := g.clock.Now()
	u := Usage{Feature: feature, Period: Period(now), Limit: limit, ResetAt: ResetAt(now)}
	key := g.keys.Usage(id, feature, u.Period)

	current, err := g.read(ctx, key)
	if err != nil {
		g.metrics.UsageChecks.WithLabelValues(feature, metrics.ResultError).Inc()
		return u, err
	}
	u.Current = current
	if limit >= 0 && current >= limit {
		return u, g.deny(id, u)
	}

	if g.counter != nil {
		n, err := g.counter.Incr(ctx, key, CounterTTL)
		if err != nil {
			g.metrics.UsageChecks.WithLabelValues(feature, metrics.ResultError).Inc()
			return u, fmt.Errorf("failed to increment usage counter: %w", err)
		}
		if limit >= 0 && n > limit {
			// Lost the race for the last slot; the counter only counts
			// admitted uses.
			if _, err := g.counter.Decr(ctx, key); err != nil {
				logging.Warn("Usage", "Failed to undo denied increment of %s for %s: %v", feature, id, err)
			}
			u.Current = n - 1
			return u, g.deny(id, u)
		}
		u.Current = n
	} else {
		u.Current = current + 1
		if err := g.store.Set(ctx, key, strconv.FormatInt(u.Current, 10), CounterTTL); err != nil {
			g.metrics.UsageChecks.WithLabelValues(feature, metrics.ResultError).Inc()
			return u, fmt.Errorf("failed to write usage counter: %w", err)
		}
	}

	g.metrics.UsageChecks.WithLabelValues(feature, metrics.ResultAllowed).Inc()
	return u, nil
}

// Peek returns the current usage without incrementing.
func (g *Guard) Peek(ctx context.Context, id identity.Identity, feature string, limit int64) (Usage, error) {
	if id.IsZero() {
		return Usage{}, errors.New("identity is required")
	}

	now := g.clock.Now()
	u := Usage{Feature: feature, Period: Period(now), Limit: limit, ResetAt: ResetAt(now)}
	current, err := g.read(ctx, g.keys.Usage(id, feature, u.Period))
	if err != nil {
		return u, err
	}
	u.Current = clamp(current, limit)
	return u, nil
}

// Wrap runs fn only if the use is admitted. The use counts even if fn
// fails.
func (g *Guard) Wrap(ctx context.Context, id identity.Identity, feature string, limit int64, fn func(context.Context) error) error {
	if _, err := g.CheckAndIncrement(ctx, id, feature, limit); err != nil {
		return err
	}
	return fn(ctx)
}

func (g *Guard) read(ctx context.Context, key string) (int64, error) {
	v, err := g.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage counter: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("usage counter %q is not a number: %w", v, err)
	}
	return n, nil
}

func (g *Guard) deny(id identity.Identity, u Usage) error {
	g.metrics.UsageChecks.WithLabelValues(u.Feature, metrics.ResultRateLimited).Inc()
	logging.Debug("Usage", "Denied %s for %s: %d of %d in %s", u.Feature, id, u.Current, u.Limit, u.Period)
	return &RateLimitedError{
		Feature: u.Feature,
		Limit:   u.Limit,
		Current: clamp(u.Current, u.Limit),
		ResetAt: u.ResetAt,
	}
}

// clamp hides increments from denied requests that raced for the last slot
// and are not yet undone.
func clamp(current, limit int64) int64 {
	if limit >= 0 && current > limit {
		return limit
	}
	return current
}
