package rules

import (
	"sync"
	"time"
)

// RulesCache holds the active policy list between store reads
type RulesCache interface {
	// Get returns the cached rules, or nil on a miss or expiry
	Get() []*Rule

	// Set replaces the cached rules
	Set(rules []*Rule)

	// Invalidate forces the next Get to miss
	Invalidate()
}

// CacheConfig controls cache expiry
type CacheConfig struct {
	// TTL of zero means entries live until invalidated
	TTL time.Duration
}

// DefaultCacheConfig invalidates only on policy mutations
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

// InMemoryRulesCache is a mutex-guarded RulesCache
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	valid    bool
	config   CacheConfig
	now      func() time.Time
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates an empty cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		config: config,
		now:    time.Now,
	}
}

// Get returns a copy of the cached slice
func (c *InMemoryRulesCache) Get() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}

	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Set stores a copy of rules
func (c *InMemoryRulesCache) Set(rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]*Rule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = c.now()
	c.valid = true
}

// Invalidate clears the cache
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
}

// IsValid reports whether a Get would hit
func (c *InMemoryRulesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fresh()
}

func (c *InMemoryRulesCache) fresh() bool {
	if !c.valid {
		return false
	}
	return c.config.TTL <= 0 || c.now().Sub(c.cachedAt) <= c.config.TTL
}
