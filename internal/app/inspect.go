package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/coder/quartz"

	"gavault/internal/cipher"
	"gavault/internal/config"
	"gavault/internal/identity"
	"gavault/internal/kv"
	"gavault/internal/plan"
	"gavault/internal/usage"
	"gavault/internal/vault"
	"gavault/pkg/logging"
)

// Report is the redacted diagnostic view of one identity.
type Report struct {
	Identity    string            `json:"identity"`
	Credential  vault.Status      `json:"credential"`
	Tier        string            `json:"tier"`
	Consistency usage.Consistency `json:"consistency"`
	Usage       []usage.Usage     `json:"usage"`
	Keys        []StorageKey      `json:"keys"`
}

// StorageKey is one key that belongs to the identity.
type StorageKey struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Present   bool   `json:"present"`
}

// Inspector reads vault, plan and usage state for operators. It never
// exposes token material.
type Inspector struct {
	store kv.Store
	keys  kv.Keys
	clock quartz.Clock
	vault *vault.Vault
	guard *usage.Guard
	plans *plan.Table
	tiers *plan.KVResolver
}

// NewInspector opens the configured store. Only the encryption key and the
// storage section need to be valid.
func NewInspector(appCfg *Config) (*Inspector, error) {
	cfg, err := config.Load(appCfg.ConfigPath, appCfg.Lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := logging.LevelWarn
	if appCfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, cfg.Logging.Format, os.Stderr)

	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	store, err := newStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	in, err := newInspector(cfg, store, quartz.NewReal())
	if err != nil {
		closeStore(store)
		return nil, err
	}
	return in, nil
}

func newInspector(cfg *config.Config, store kv.Store, clock quartz.Clock) (*Inspector, error) {
	keys := kv.NewKeys(cfg.Storage.KeyPrefix)

	key, err := cipher.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	c, err := cipher.New(key)
	if err != nil {
		return nil, err
	}
	v, err := vault.New(vault.Options{Store: store, Keys: keys, Cipher: c, Clock: clock})
	if err != nil {
		return nil, err
	}
	guard, err := usage.New(usage.Options{Store: store, Keys: keys, Clock: clock})
	if err != nil {
		return nil, err
	}
	table, err := plan.NewTable(cfg.Plans.DefaultTier, toLimits(cfg.Plans.Tiers))
	if err != nil {
		return nil, err
	}

	return &Inspector{
		store: store,
		keys:  keys,
		clock: clock,
		vault: v,
		guard: guard,
		plans: table,
		tiers: plan.NewKVResolver(store, keys, table),
	}, nil
}

// Inspect builds the report for id.
func (in *Inspector) Inspect(ctx context.Context, id identity.Identity) (*Report, error) {
	st, err := in.vault.Inspect(ctx, id)
	if err != nil {
		return nil, err
	}

	now := in.clock.Now()
	tier := in.tiers.Tier(ctx, id)
	report := &Report{
		Identity:    id.String(),
		Credential:  st,
		Tier:        tier,
		Consistency: in.guard.Consistency(),
		Usage:       []usage.Usage{},
	}
	keys := []string{in.keys.Credential(id), in.keys.RefreshLock(id), in.keys.Plan(id)}
	for _, feature := range in.plans.Features(tier) {
		u, err := in.guard.Peek(ctx, id, feature, in.plans.Limit(tier, feature))
		if err != nil {
			return nil, err
		}
		report.Usage = append(report.Usage, u)
		keys = append(keys, in.keys.Usage(id, feature, usage.Period(now)))
	}

	for _, key := range keys {
		present, err := in.exists(ctx, key)
		if err != nil {
			return nil, err
		}
		report.Keys = append(report.Keys, StorageKey{
			Namespace: in.keys.Namespace(key),
			Key:       key,
			Present:   present,
		})
	}
	return report, nil
}

func (in *Inspector) exists(ctx context.Context, key string) (bool, error) {
	_, err := in.store.Get(ctx, key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// SetTier records id's plan tier.
func (in *Inspector) SetTier(ctx context.Context, id identity.Identity, tier string) error {
	return in.tiers.SetTier(ctx, id, tier)
}

// Disconnect deletes id's credential record.
func (in *Inspector) Disconnect(ctx context.Context, id identity.Identity) error {
	return in.vault.Delete(ctx, id)
}

// Now returns the inspector's clock reading, used to render relative expiry.
func (in *Inspector) Now() time.Time {
	return in.clock.Now()
}

// Close releases the store.
func (in *Inspector) Close() {
	closeStore(in.store)
}
