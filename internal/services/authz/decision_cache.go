package authz

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheKeySep joins principal ID and permission key into one cache key.
// U+001F (unit separator) cannot appear in either part, so keys never
// collide across principals.
const cacheKeySep = "\x1f"

// cacheKey builds the decision cache key for a principal/permission pair.
func cacheKey(principalID, permissionKey string) string {
	return principalID + cacheKeySep + permissionKey
}

// DecisionCache stores recent decisions keyed by principal and permission.
//
// Implementations may be remote, so every method can fail; the engine
// treats any cache error as a miss and evaluates directly. Two results
// are never stored regardless of implementation: BLOCKED principals and
// decisions whose outcome depended on request context.
type DecisionCache interface {
	// Get returns the cached decision and true on a hit.
	Get(ctx context.Context, key string) (Decision, bool, error)

	// Set stores a decision under key.
	Set(ctx context.Context, key string, d Decision) error

	// InvalidatePrincipal removes every cached decision for the
	// principal and reports how many were dropped.
	InvalidatePrincipal(ctx context.Context, principalID string) (int, error)

	// Purge empties the cache.
	Purge(ctx context.Context) error

	// Len reports the number of cached decisions.
	Len() int
}

// LRUDecisionCache is the in-process DecisionCache: a size-bounded LRU
// whose entries expire after a fixed TTL. It never returns errors.
type LRUDecisionCache struct {
	lru *expirable.LRU[string, Decision]
}

// NewLRUDecisionCache creates a cache holding at most size decisions,
// each valid for ttl.
func NewLRUDecisionCache(size int, ttl time.Duration) *LRUDecisionCache {
	return &LRUDecisionCache{
		lru: expirable.NewLRU[string, Decision](size, nil, ttl),
	}
}

// Len reports the number of cached decisions.
func (c *LRUDecisionCache) Len() int {
	return c.lru.Len()
}

// Get returns the cached decision and true on a hit.
func (c *LRUDecisionCache) Get(ctx context.Context, key string) (Decision, bool, error) {
	d, ok := c.lru.Get(key)
	return d, ok, nil
}

// Set stores a decision under key.
func (c *LRUDecisionCache) Set(ctx context.Context, key string, d Decision) error {
	c.lru.Add(key, d)
	return nil
}

// InvalidatePrincipal removes every cached decision for the principal.
// This walks all keys; invalidation runs on the mutation path, not the
// check path, so the walk does not slow decisions down.
func (c *LRUDecisionCache) InvalidatePrincipal(ctx context.Context, principalID string) (int, error) {
	prefix := principalID + cacheKeySep
	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			if c.lru.Remove(key) {
				removed++
			}
		}
	}
	return removed, nil
}

// Purge empties the cache.
func (c *LRUDecisionCache) Purge(ctx context.Context) error {
	c.lru.Purge()
	return nil
}

// DisabledDecisionCache is a DecisionCache that stores nothing. Used when
// caching is turned off; every check evaluates directly.
type DisabledDecisionCache struct{}

// NewDisabledDecisionCache returns the no-op cache.
func NewDisabledDecisionCache() *DisabledDecisionCache {
	return &DisabledDecisionCache{}
}

func (DisabledDecisionCache) Get(ctx context.Context, key string) (Decision, bool, error) {
	return Decision{}, false, nil
}

func (DisabledDecisionCache) Set(ctx context.Context, key string, d Decision) error {
	return nil
}

func (DisabledDecisionCache) InvalidatePrincipal(ctx context.Context, principalID string) (int, error) {
	return 0, nil
}

func (DisabledDecisionCache) Purge(ctx context.Context) error {
	return nil
}

func (DisabledDecisionCache) Len() int {
	return 0
}
