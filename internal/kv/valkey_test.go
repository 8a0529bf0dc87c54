package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValkey(t *testing.T) (*Valkey, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	v, err := NewValkey(ValkeyConfig{Address: srv.Addr(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v, srv
}

func TestNewValkey_RequiresAddress(t *testing.T) {
	_, err := NewValkey(ValkeyConfig{})
	assert.Error(t, err)
}

func TestValkey_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestValkey(t)

	_, err := v.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, v.Set(ctx, "a", "1", 0))
	got, err := v.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	require.NoError(t, v.Delete(ctx, "a"))
	_, err = v.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, v.Delete(ctx, "a"))
}

func TestValkey_TTL(t *testing.T) {
	ctx := context.Background()
	v, srv := newTestValkey(t)

	require.NoError(t, v.Set(ctx, "short", "x", time.Minute))
	require.NoError(t, v.Set(ctx, "forever", "y", 0))
	assert.Equal(t, time.Minute, srv.TTL("short"))
	assert.Zero(t, srv.TTL("forever"))

	srv.FastForward(time.Minute)
	_, err := v.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := v.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "y", got)
}

func TestValkey_IncrDecr(t *testing.T) {
	ctx := context.Background()
	v, srv := newTestValkey(t)

	for want := int64(1); want <= 3; want++ {
		n, err := v.Incr(ctx, "c", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, time.Hour, srv.TTL("c"))

	n, err := v.Decr(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, srv.TTL("c"))

	// TTL is set on creation and not extended by later increments.
	srv.FastForward(30 * time.Minute)
	_, err = v.Incr(ctx, "c", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, srv.TTL("c"))

	srv.FastForward(30 * time.Minute)
	n, err = v.Incr(ctx, "c", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestValkey_IncrNonNumeric(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestValkey(t)

	require.NoError(t, v.Set(ctx, "c", "abc", 0))
	_, err := v.Incr(ctx, "c", 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestValkey_SetNX(t *testing.T) {
	ctx := context.Background()
	v, srv := newTestValkey(t)

	ok, err := v.SetNX(ctx, "lock", "a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.SetNX(ctx, "lock", "b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := v.Get(ctx, "lock")
	assert.Equal(t, "a", got)

	srv.FastForward(10 * time.Second)
	ok, err = v.SetNX(ctx, "lock", "b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValkey_GetDel(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestValkey(t)

	require.NoError(t, v.Set(ctx, "code", "payload", time.Minute))

	got, err := v.GetDel(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "payload", got)

	_, err = v.GetDel(ctx, "code")
	assert.ErrorIs(t, err, ErrNotFound)
}
