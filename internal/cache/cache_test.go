package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMakeKeyStableAndDistinct(t *testing.T) {
	a := MakeKey("search:web", "fintech fraud AI", "10")
	b := MakeKey("search:web", "fintech fraud AI", "10")
	c := MakeKey("search:news", "fintech fraud AI", "10")
	d := MakeKey("search:web", "fintech fraud AI", "20")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestMemoryGetSetAndExpiry(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	_, ok := m.Get(ctx, "missing")
	assert.False(t, ok)

	m.Set(ctx, "k", []byte("v"), 50*time.Millisecond)
	got, ok := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	time.Sleep(60 * time.Millisecond)
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok, "entry should expire after its TTL")
}

func TestMemoryIgnoresNonPositiveTTL(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	m.Set(context.Background(), "k", []byte("v"), 0)
	_, ok := m.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestRedisBackend(t *testing.T) {
	srv := miniredis.RunT(t)
	r, err := NewRedis(srv.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	_, ok := r.Get(ctx, "missing")
	assert.False(t, ok)

	r.Set(ctx, "k", []byte("v"), time.Minute)
	got, ok := r.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	srv.FastForward(2 * time.Minute)
	_, ok = r.Get(ctx, "k")
	assert.False(t, ok, "entry should expire after its TTL")
}

func TestRedisUnavailable(t *testing.T) {
	_, err := NewRedis("127.0.0.1:1", zap.NewNop())
	assert.Error(t, err)
}
