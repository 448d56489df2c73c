package connectapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/oakline/agent-console/pkg/connecthub"
)

const (
	defaultToolkitCacheSize = 256
	defaultToolkitCacheTTL  = 5 * time.Minute
)

// ToolkitCache caches toolkit display metadata by slug. Metadata is
// display-only, so staleness within the TTL is acceptable and lookup
// failures degrade to a nil toolkit rather than an error.
type ToolkitCache struct {
	hub   *connecthub.Client
	cache *expirable.LRU[string, *connecthub.Toolkit]
	log   *slog.Logger
}

// ToolkitCacheConfig configures a ToolkitCache.
type ToolkitCacheConfig struct {
	Size int
	TTL  time.Duration
}

// NewToolkitCache creates a toolkit metadata cache in front of the provider.
func NewToolkitCache(hub *connecthub.Client, cfg ToolkitCacheConfig, log *slog.Logger) *ToolkitCache {
	size := cfg.Size
	if size <= 0 {
		size = defaultToolkitCacheSize
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultToolkitCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &ToolkitCache{
		hub:   hub,
		cache: expirable.NewLRU[string, *connecthub.Toolkit](size, nil, ttl),
		log:   log,
	}
}

// Get returns toolkit metadata for the slug, consulting the cache first.
// Returns nil when the toolkit cannot be loaded; callers render without
// logo or description in that case.
func (c *ToolkitCache) Get(ctx context.Context, slug string) *connecthub.Toolkit {
	if slug == "" {
		return nil
	}
	if tk, ok := c.cache.Get(slug); ok {
		return tk
	}

	tk, err := c.hub.GetToolkit(ctx, slug)
	if err != nil {
		c.log.Warn("connectapi: toolkit metadata unavailable", "slug", slug, "error", err)
		return nil
	}
	c.cache.Add(slug, tk)
	return tk
}
