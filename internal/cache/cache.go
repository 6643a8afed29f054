package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// ImageResolver is the interface satisfied by skypicker.LocationsClient.
type ImageResolver interface {
	ResolveImage(ctx context.Context, name string) string
}

// LookupObserver is notified of each lookup's source ("cache" or "remote").
type LookupObserver func(source string)

// ImageCache is a read-through Redis cache in front of an ImageResolver.
type ImageCache struct {
	client   *redis.Client
	resolver ImageResolver
	ttl      time.Duration
	log      *slog.Logger
	observe  LookupObserver
}

// NewImageCache constructs an ImageCache with a 24-hour TTL. A ttl of zero
// keeps the default.
func NewImageCache(client *redis.Client, resolver ImageResolver, ttl time.Duration, log *slog.Logger) *ImageCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ImageCache{client: client, resolver: resolver, ttl: ttl, log: log, observe: func(string) {}}
}

// WithObserver sets the function called after every lookup.
func (c *ImageCache) WithObserver(fn LookupObserver) *ImageCache {
	if fn != nil {
		c.observe = fn
	}
	return c
}

// key returns the Redis key for the given destination.
func key(name string) string {
	return "image:" + strings.ToLower(strings.TrimSpace(name))
}

// Get returns the cached image id for name.
// Returns "", nil on a cache miss (not an error).
func (c *ImageCache) Get(ctx context.Context, name string) (string, error) {
	val, err := c.client.Get(ctx, key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("cache get for destination %s: %w", name, err)
	}
	return val, nil
}

// Set stores the image id for name with the configured TTL. Empty ids are not
// stored so unresolved destinations are retried later.
func (c *ImageCache) Set(ctx context.Context, name, imageID string) error {
	if imageID == "" {
		return nil
	}
	if err := c.client.Set(ctx, key(name), imageID, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for destination %s: %w", name, err)
	}
	return nil
}

// ResolveImage returns the image id for name, consulting Redis first and the
// resolver on a miss. Redis failures fall back to the resolver; the result is
// never an error.
func (c *ImageCache) ResolveImage(ctx context.Context, name string) string {
	cached, err := c.Get(ctx, name)
	if err != nil {
		c.log.Warn("image cache get failed", "destination", name, "err", err)
	}
	if cached != "" {
		c.observe("cache")
		return cached
	}

	id := c.resolver.ResolveImage(ctx, name)
	c.observe("remote")

	if err := c.Set(ctx, name, id); err != nil {
		c.log.Warn("image cache set failed", "destination", name, "err", err)
	}
	return id
}
