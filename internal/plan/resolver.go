package plan

import (
	"context"
	"errors"
	"fmt"

	"gavault/internal/identity"
	"gavault/internal/kv"
	"gavault/pkg/logging"
)

// Resolver returns the plan tier of an identity.
type Resolver interface {
	Tier(ctx context.Context, id identity.Identity) string
}

// KVResolver reads tiers written to the store by the billing integration.
type KVResolver struct {
	store kv.Store
	keys  kv.Keys
	table *Table
}

// NewKVResolver creates a KVResolver.
func NewKVResolver(store kv.Store, keys kv.Keys, table *Table) *KVResolver {
	return &KVResolver{store: store, keys: keys, table: table}
}

// Tier returns id's tier. A missing, unknown or unreadable tier falls back
// to the default tier, which is the most restrictive one by convention.
func (r *KVResolver) Tier(ctx context.Context, id identity.Identity) string {
	if id.IsZero() {
		return r.table.DefaultTier()
	}

	tier, err := r.store.Get(ctx, r.keys.Plan(id))
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return r.table.DefaultTier()
	case err != nil:
		logging.Warn("Usage", "Failed to read plan tier for %s, using default: %v", id, err)
		return r.table.DefaultTier()
	case !r.table.Has(tier):
		logging.Warn("Usage", "Unknown plan tier %q for %s, using default", tier, id)
		return r.table.DefaultTier()
	}
	return tier
}

// SetTier records id's tier. Used by operators; the billing integration
// writes the same key.
func (r *KVResolver) SetTier(ctx context.Context, id identity.Identity, tier string) error {
	if id.IsZero() {
		return errors.New("identity is required")
	}
	if !r.table.Has(tier) {
		return fmt.Errorf("unknown plan tier %q", tier)
	}
	if err := r.store.Set(ctx, r.keys.Plan(id), tier, 0); err != nil {
		return fmt.Errorf("failed to store plan tier: %w", err)
	}
	return nil
}
