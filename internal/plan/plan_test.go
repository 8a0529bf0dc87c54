package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavault/internal/identity"
	"gavault/internal/kv"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable("free", map[string]Limits{
		"free": {FeatureQuery: 3, FeatureProperties: 10},
		"pro":  {FeatureQuery: 1000, FeatureProperties: Unlimited},
	})
	require.NoError(t, err)
	return table
}

func TestNewTable_Validation(t *testing.T) {
	_, err := NewTable("", map[string]Limits{"free": {}})
	assert.Error(t, err)

	_, err = NewTable("gold", map[string]Limits{"free": {}})
	assert.Error(t, err)
}

func TestTable_Limit(t *testing.T) {
	table := testTable(t)

	assert.Equal(t, int64(3), table.Limit("free", FeatureQuery))
	assert.Equal(t, int64(1000), table.Limit("pro", FeatureQuery))
	assert.Equal(t, Unlimited, table.Limit("pro", FeatureProperties))
	assert.Equal(t, int64(3), table.Limit("unknown", FeatureQuery), "unknown tier uses default")
	assert.Equal(t, int64(0), table.Limit("pro", "export"), "unlisted feature is denied")
	assert.Equal(t, []string{FeatureProperties, FeatureQuery}, table.Features("free"))
}

func TestTable_Replace(t *testing.T) {
	table := testTable(t)
	tiers := map[string]Limits{"basic": {FeatureQuery: 7}}

	require.NoError(t, table.Replace("basic", tiers))
	tiers["basic"][FeatureQuery] = 99

	assert.Equal(t, "basic", table.DefaultTier())
	assert.Equal(t, int64(7), table.Limit("free", FeatureQuery))
	assert.False(t, table.Has("pro"))

	assert.Error(t, table.Replace("missing", tiers))
	assert.Equal(t, "basic", table.DefaultTier(), "failed replace keeps old tiers")
}

func TestKVResolver(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)
	store := kv.NewMemory(nil)
	keys := kv.NewKeys("")
	r := NewKVResolver(store, keys, table)

	web := identity.Web("42")
	plugin := identity.Plugin("42")

	assert.Equal(t, "free", r.Tier(ctx, web))

	require.NoError(t, r.SetTier(ctx, plugin, "pro"))
	assert.Equal(t, "pro", r.Tier(ctx, plugin))
	assert.Equal(t, "free", r.Tier(ctx, web))

	assert.Error(t, r.SetTier(ctx, web, "platinum"))
	assert.Error(t, r.SetTier(ctx, identity.Identity{}, "pro"))

	require.NoError(t, store.Set(ctx, keys.Plan(web), "retired-tier", 0))
	assert.Equal(t, "free", r.Tier(ctx, web))
}
