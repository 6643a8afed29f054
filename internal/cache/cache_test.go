package cache_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/flight-explorer/internal/cache"
)

type mockResolver struct {
	calls atomic.Int32
	id    string
}

func (m *mockResolver) ResolveImage(_ context.Context, _ string) string {
	m.calls.Add(1)
	return m.id
}

func newTestCache(t *testing.T, resolver cache.ImageResolver) (*cache.ImageCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return cache.NewImageCache(client, resolver, 0, log), mr
}

func TestImageCache_SetAndGet(t *testing.T) {
	c, _ := newTestCache(t, &mockResolver{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "Madrid", "madrid_es"))

	got, err := c.Get(ctx, "Madrid")
	require.NoError(t, err)
	assert.Equal(t, "madrid_es", got)
}

func TestImageCache_Get_Miss(t *testing.T) {
	c, _ := newTestCache(t, &mockResolver{})

	got, err := c.Get(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Equal(t, "", got, "cache miss should return empty, nil")
}

func TestImageCache_KeyIsLowercased(t *testing.T) {
	c, mr := newTestCache(t, &mockResolver{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "MADRID", "madrid_es"))
	assert.True(t, mr.Exists("image:madrid"))

	got, err := c.Get(ctx, " madrid ")
	require.NoError(t, err)
	assert.Equal(t, "madrid_es", got)
}

func TestImageCache_Set_EmptyIsNoop(t *testing.T) {
	c, mr := newTestCache(t, &mockResolver{})
	require.NoError(t, c.Set(context.Background(), "Madrid", ""))
	assert.False(t, mr.Exists("image:madrid"))
}

func TestImageCache_TTL(t *testing.T) {
	c, mr := newTestCache(t, &mockResolver{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "Madrid", "madrid_es"))
	mr.FastForward(25 * time.Hour)

	got, err := c.Get(ctx, "Madrid")
	require.NoError(t, err)
	assert.Equal(t, "", got, "entry should be expired after TTL")
}

func TestImageCache_ResolveImage_ReadThrough(t *testing.T) {
	resolver := &mockResolver{id: "madrid_es"}
	c, _ := newTestCache(t, resolver)

	var sources []string
	c.WithObserver(func(source string) { sources = append(sources, source) })

	ctx := context.Background()
	assert.Equal(t, "madrid_es", c.ResolveImage(ctx, "Madrid"))
	assert.Equal(t, "madrid_es", c.ResolveImage(ctx, "madrid"))

	assert.Equal(t, int32(1), resolver.calls.Load(), "second lookup must be served from redis")
	assert.Equal(t, []string{"remote", "cache"}, sources)
}

func TestImageCache_ResolveImage_EmptyNotCached(t *testing.T) {
	resolver := &mockResolver{id: ""}
	c, _ := newTestCache(t, resolver)
	ctx := context.Background()

	assert.Equal(t, "", c.ResolveImage(ctx, "Nowhere"))
	assert.Equal(t, "", c.ResolveImage(ctx, "Nowhere"))
	assert.Equal(t, int32(2), resolver.calls.Load())
}

func TestImageCache_ResolveImage_RedisDown(t *testing.T) {
	resolver := &mockResolver{id: "madrid_es"}
	c, mr := newTestCache(t, resolver)
	mr.Close()

	assert.Equal(t, "madrid_es", c.ResolveImage(context.Background(), "Madrid"))
	assert.Equal(t, int32(1), resolver.calls.Load())
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := cache.Connect(context.Background(), "not-a-url")
	require.Error(t, err)
}

func TestConnect_UnreachableServer(t *testing.T) {
	_, err := cache.Connect(context.Background(), "redis://localhost:19999")
	require.Error(t, err)
}
