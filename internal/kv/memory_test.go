package kv

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(quartz.NewMock(t))

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "a", "1", 0))
	v, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, m.Delete(ctx, "a"))
	_, err = m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	assert.NoError(t, m.Delete(ctx, "a"))
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	m := NewMemory(clock)

	require.NoError(t, m.Set(ctx, "short", "x", time.Minute))
	require.NoError(t, m.Set(ctx, "forever", "y", 0))

	clock.Advance(59 * time.Second)
	_, err := m.Get(ctx, "short")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = m.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	v, err := m.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "y", v)
}

func TestMemory_Incr(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	m := NewMemory(clock)

	for want := int64(1); want <= 3; want++ {
		n, err := m.Incr(ctx, "c", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	// TTL is set on creation and not extended by later increments.
	clock.Advance(time.Hour)
	n, err := m.Incr(ctx, "c", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemory_Decr(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	m := NewMemory(clock)

	_, err := m.Incr(ctx, "c", time.Hour)
	require.NoError(t, err)
	_, err = m.Incr(ctx, "c", time.Hour)
	require.NoError(t, err)

	n, err := m.Decr(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Decr keeps the expiry set by the first Incr.
	clock.Advance(time.Hour)
	_, err = m.Get(ctx, "c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_IncrNonNumeric(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.Set(ctx, "c", "abc", 0))
	_, err := m.Incr(ctx, "c", 0)
	assert.Error(t, err)
}

func TestMemory_SetNX(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	m := NewMemory(clock)

	ok, err := m.SetNX(ctx, "lock", "a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "lock", "b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	v, _ := m.Get(ctx, "lock")
	assert.Equal(t, "a", v)

	clock.Advance(10 * time.Second)
	ok, err = m.SetNX(ctx, "lock", "b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_GetDel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(quartz.NewMock(t))

	require.NoError(t, m.Set(ctx, "code", "payload", time.Minute))

	v, err := m.GetDel(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "payload", v)

	_, err = m.GetDel(ctx, "code")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Keys(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	m := NewMemory(clock)

	require.NoError(t, m.Set(ctx, "b", "1", 0))
	require.NoError(t, m.Set(ctx, "a", "1", 0))
	require.NoError(t, m.Set(ctx, "expiring", "1", time.Second))

	assert.Equal(t, []string{"a", "b", "expiring"}, m.Keys())

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a", "b"}, m.Keys())
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemory(nil)
	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Set(ctx, "a", "b", 0), context.Canceled)
}
