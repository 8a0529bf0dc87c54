// Package refresh returns fresh access tokens for caller identities.
//
// The engine reads the credential record from the vault and returns the
// stored access token while it is valid for longer than the expiry margin.
// Otherwise it refreshes the token at the provider and writes the new
// record back.
//
// Refreshes for one identity are coalesced on two levels. Within a process
// a singleflight group keyed by the record's storage key lets concurrent
// callers share one flight; the flight runs on a detached context bounded by
// the refresh timeout, so a caller going away does not cancel it for the
// others. Across processes, when the store supports SET NX, a short-lived
// lock key is taken before calling the provider. A process that loses the
// lock polls the vault until the record turns fresh or the lock disappears.
package refresh

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/singleflight"

	"gavault/internal/identity"
	"gavault/internal/kv"
	"gavault/internal/metrics"
	"gavault/internal/vault"
	"gavault/pkg/logging"
)

// Defaults for Config.
const (
	DefaultExpiryMargin = 60 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultLockTTL      = 15 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Vault is the subset of the credential vault used by the engine.
type Vault interface {
	Get(ctx context.Context, id identity.Identity) (*vault.Record, error)
	Put(ctx context.Context, id identity.Identity, rec vault.Record) error
	Key(id identity.Identity) string
}

// Config tunes the engine.
type Config struct {
	// ExpiryMargin is how long before expiry a token counts as stale.
	ExpiryMargin time.Duration
	// Timeout bounds one refresh, including waiting for a peer process.
	Timeout time.Duration
	// LockTTL is the lifetime of the cross-process lock. Must exceed Timeout.
	LockTTL time.Duration
	// PollInterval is how often a process waiting on a peer re-reads the vault.
	PollInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.ExpiryMargin <= 0 {
		c.ExpiryMargin = DefaultExpiryMargin
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.LockTTL <= c.Timeout {
		c.LockTTL = c.Timeout + 5*time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Options configures an Engine.
type Options struct {
	Vault    Vault
	Provider Provider
	// Store is used for the cross-process lock when it implements kv.Locker.
	// Nil disables the lock.
	Store   kv.Store
	Keys    kv.Keys
	Clock   quartz.Clock
	Metrics *metrics.Metrics
	Config  Config
}

// Engine hands out fresh access tokens.
type Engine struct {
	vault    Vault
	provider Provider
	store    kv.Store
	locker   kv.Locker
	keys     kv.Keys
	clock    quartz.Clock
	metrics  *metrics.Metrics
	cfg      Config
	group    singleflight.Group
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Vault == nil {
		return nil, errors.New("refresh engine vault is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("refresh engine provider is required")
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
	opts.Config.setDefaults()

	e := &Engine{
		vault:    opts.Vault,
		provider: opts.Provider,
		store:    opts.Store,
		keys:     opts.Keys,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		cfg:      opts.Config,
	}
	if locker, ok := opts.Store.(kv.Locker); ok {
		e.locker = locker
	} else {
		logging.Warn("Refresh", "Store does not support SET NX; refreshes are coalesced per process only")
	}
	return e, nil
}

// AccessToken returns a fresh access token for id. Errors match
// ErrNotConnected, vault.ErrCorrupt, ErrNoRefreshToken, ErrRefreshFailed or
// ErrTransient. If ctx ends while waiting on a shared refresh, ctx.Err() is
// returned and the refresh keeps running for the other callers.
func (e *Engine) AccessToken(ctx context.Context, id identity.Identity) (string, error) {
	rec, err := e.load(ctx, id)
	if err != nil {
		return "", err
	}

	if rec.FreshAt(e.clock.Now(), e.cfg.ExpiryMargin) {
		e.metrics.RefreshTotal.WithLabelValues(metrics.ResultFresh).Inc()
		return rec.AccessToken, nil
	}
	if !rec.HasRefreshToken() {
		e.metrics.RefreshTotal.WithLabelValues(metrics.ResultNoRefresh).Inc()
		return "", ErrNoRefreshToken
	}

	// The flight must outlive any single caller.
	flightCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(e.vault.Key(id), func() (any, error) {
		return e.refresh(flightCtx, id)
	})

	select {
	case res := <-ch:
		if res.Shared {
			e.metrics.RefreshCoalesced.Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// load reads the record and maps vault errors to engine errors.
func (e *Engine) load(ctx context.Context, id identity.Identity) (*vault.Record, error) {
	rec, err := e.vault.Get(ctx, id)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, vault.ErrNotFound):
		e.metrics.RefreshTotal.WithLabelValues(metrics.ResultNotFound).Inc()
		return nil, ErrNotConnected
	case errors.Is(err, vault.ErrCorrupt):
		e.metrics.RefreshTotal.WithLabelValues(metrics.ResultCorrupt).Inc()
		return nil, err
	case errors.Is(err, vault.ErrNoIdentity):
		return nil, ErrNotConnected
	default:
		e.metrics.RefreshTotal.WithLabelValues(metrics.ResultTransient).Inc()
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
}

// refresh runs once per flight.
func (e *Engine) refresh(parent context.Context, id identity.Identity) (string, error) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.Timeout)
	defer cancel()

	if e.locker != nil {
		rec, release, err := e.acquire(ctx, id)
		if err != nil {
			e.metrics.RefreshTotal.WithLabelValues(metrics.ResultTransient).Inc()
			return "", err
		}
		if rec != nil {
			// A peer refreshed while we waited.
			e.metrics.RefreshTotal.WithLabelValues(metrics.ResultFresh).Inc()
			return rec.AccessToken, nil
		}
		defer release()
	}

	// Re-read under the lock: a peer may have finished just before we
	// acquired it, or the record may have been deleted.
	rec, err := e.load(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.FreshAt(e.clock.Now(), e.cfg.ExpiryMargin) {
		e.metrics.RefreshTotal.WithLabelValues(metrics.ResultFresh).Inc()
		return rec.AccessToken, nil
	}
	if !rec.HasRefreshToken() {
		e.metrics.RefreshTotal.WithLabelValues(metrics.ResultNoRefresh).Inc()
		return "", ErrNoRefreshToken
	}

	grant, err := e.provider.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return "", e.refreshError(id, err)
	}

	next := vault.NewRecord(grant.AccessToken, rec.RefreshToken, rec.Scope, grant.ExpiresIn, e.clock.Now())
	if grant.RefreshToken != "" {
		next.RefreshToken = grant.RefreshToken
	}
	if grant.Scope != "" {
		next.Scope = grant.Scope
	}

	if err := e.vault.Put(ctx, id, next); err != nil {
		// The new access token is valid regardless; the next stale read
		// refreshes again.
		logging.Error("Refresh", err, "Failed to store refreshed credential for %s", id)
	}

	e.metrics.RefreshTotal.WithLabelValues(metrics.ResultRefreshed).Inc()
	logging.Info("Refresh", "Refreshed access token for %s (expires in %s, rotated: %t)",
		id, grant.ExpiresIn, grant.RefreshToken != "")
	return grant.AccessToken, nil
}

func (e *Engine) refreshError(id identity.Identity, err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		e.metrics.RefreshTotal.WithLabelValues(metrics.ResultRejected).Inc()
		logging.Audit(logging.AuditEvent{
			Action:   "token_refresh",
			Outcome:  "rejected",
			Identity: id.String(),
			Details:  perr.Error(),
		})
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	e.metrics.RefreshTotal.WithLabelValues(metrics.ResultTransient).Inc()
	logging.Warn("Refresh", "Token refresh for %s failed: %v", id, err)
	if errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// acquire takes the cross-process lock. If a peer holds it, acquire waits
// until the peer's result is visible in the vault (returned as rec) or the
// lock is released, in which case it tries again.
func (e *Engine) acquire(ctx context.Context, id identity.Identity) (*vault.Record, func(), error) {
	lockKey := e.keys.RefreshLock(id)
	owner, err := newOwnerToken()
	if err != nil {
		return nil, nil, err
	}

	for {
		ok, err := e.locker.SetNX(ctx, lockKey, owner, e.cfg.LockTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to take refresh lock: %w", ErrTransient, err)
		}
		if ok {
			return nil, func() { e.release(lockKey, owner) }, nil
		}

		logging.Debug("Refresh", "Refresh for %s in progress elsewhere, waiting", id)
		rec, err := e.waitForPeer(ctx, id, lockKey)
		if err != nil {
			return nil, nil, err
		}
		if rec != nil {
			return rec, nil, nil
		}
	}
}

// waitForPeer polls until the record is fresh (returned) or the lock is
// gone (nil, nil).
func (e *Engine) waitForPeer(ctx context.Context, id identity.Identity, lockKey string) (*vault.Record, error) {
	ticker := e.clock.NewTicker(e.cfg.PollInterval, "refresh", "wait")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: timed out waiting for concurrent refresh: %w", ErrTransient, ctx.Err())
		case <-ticker.C:
		}

		rec, err := e.vault.Get(ctx, id)
		if err == nil && rec.FreshAt(e.clock.Now(), e.cfg.ExpiryMargin) {
			return rec, nil
		}

		_, err = e.store.Get(ctx, lockKey)
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		if err != nil && !errors.Is(err, kv.ErrUnavailable) {
			return nil, fmt.Errorf("%w: failed to check refresh lock: %w", ErrTransient, err)
		}
	}
}

// release deletes the lock if it still belongs to owner. The check and the
// delete are separate round trips; the lock TTL exceeds the refresh timeout,
// so the lock cannot have expired and been re-taken in between unless the
// store stalls for longer than that margin.
func (e *Engine) release(lockKey, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()

	current, err := e.store.Get(ctx, lockKey)
	if err != nil || current != owner {
		return
	}
	if err := e.store.Delete(ctx, lockKey); err != nil {
		logging.Warn("Refresh", "Failed to release refresh lock: %v", err)
	}
}

func newOwnerToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
