// Package plan maps subscription tiers to monthly feature limits.
package plan

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Features gated by the usage guard.
const (
	FeatureQuery      = "query"
	FeatureProperties = "properties"
)

// Unlimited is the limit value that admits every request.
const Unlimited int64 = -1

// Limits maps a feature to its monthly limit. Negative means unlimited.
type Limits map[string]int64

// Table holds the tiers. It is safe for concurrent use and can be replaced
// at runtime when the configuration file changes.
type Table struct {
	mu          sync.RWMutex
	defaultTier string
	tiers       map[string]Limits
}

// NewTable creates a Table. The default tier must be one of tiers.
func NewTable(defaultTier string, tiers map[string]Limits) (*Table, error) {
	t := &Table{}
	if err := t.Replace(defaultTier, tiers); err != nil {
		return nil, err
	}
	return t, nil
}

// Replace swaps the tiers atomically.
func (t *Table) Replace(defaultTier string, tiers map[string]Limits) error {
	if defaultTier == "" {
		return errors.New("default plan tier is required")
	}
	if _, ok := tiers[defaultTier]; !ok {
		return fmt.Errorf("default plan tier %q is not defined", defaultTier)
	}

	copied := make(map[string]Limits, len(tiers))
	for name, limits := range tiers {
		l := make(Limits, len(limits))
		for feature, limit := range limits {
			l[feature] = limit
		}
		copied[name] = l
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultTier = defaultTier
	t.tiers = copied
	return nil
}

// DefaultTier returns the tier used for identities without a plan.
func (t *Table) DefaultTier() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.defaultTier
}

// Has reports whether tier is defined.
func (t *Table) Has(tier string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.tiers[tier]
	return ok
}

// Limit returns the monthly limit of feature in tier. Unknown tiers use the
// default tier; features not listed in the tier get 0.
func (t *Table) Limit(tier, feature string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	limits, ok := t.tiers[tier]
	if !ok {
		limits = t.tiers[t.defaultTier]
	}
	return limits[feature]
}

// Features returns the features listed for tier, sorted.
func (t *Table) Features(tier string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	limits, ok := t.tiers[tier]
	if !ok {
		limits = t.tiers[t.defaultTier]
	}
	features := make([]string, 0, len(limits))
	for f := range limits {
		features = append(features, f)
	}
	sort.Strings(features)
	return features
}
