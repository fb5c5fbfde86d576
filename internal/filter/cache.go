package filter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"relay_bot/internal/model"
)

// RuleSource provides the current set of filter rules.
type RuleSource interface {
	ListFilters(ctx context.Context, activeOnly bool) ([]model.FilterRule, error)
}

// Cache is a read-through cache of the compiled filter chain. It refreshes
// after its TTL expires and can be invalidated explicitly when a rule is
// mutated. The zero time loadedAt forces a load on first use.
type Cache struct {
	source RuleSource
	ttl    time.Duration
	log    *slog.Logger

	mu       sync.Mutex
	chain    *Chain
	loadedAt time.Time
}

// NewCache creates a Cache over the given rule source.
func NewCache(source RuleSource, ttl time.Duration, log *slog.Logger) *Cache {
	return &Cache{
		source: source,
		ttl:    ttl,
		log:    log,
	}
}

// Chain returns the compiled chain, reloading it from the source if the
// cached copy is stale. If a refresh fails but a previous chain exists,
// the stale chain is returned so filtering keeps working.
func (c *Cache) Chain(ctx context.Context) (*Chain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chain != nil && time.Since(c.loadedAt) < c.ttl {
		return c.chain, nil
	}

	rules, err := c.source.ListFilters(ctx, true)
	if err != nil {
		if c.chain != nil {
			c.log.Warn("filter refresh failed, using stale chain", "error", err)
			return c.chain, nil
		}
		return nil, fmt.Errorf("load filters: %w", err)
	}

	c.chain = Compile(rules, c.log)
	c.loadedAt = time.Now()
	return c.chain, nil
}

// Invalidate drops the cached chain so the next Chain call reloads.
// Called by the command surface after any rule mutation.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chain = nil
	c.loadedAt = time.Time{}
}
