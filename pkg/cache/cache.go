package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/gossipdb/pkg/metrics"
)

const (
	// DefaultHotCapacity is the default number of entries kept in the hot tier.
	DefaultHotCapacity = 5_000
	// DefaultWarmCapacity is the default number of entries kept in the warm tier.
	DefaultWarmCapacity = 50_000
	// DefaultWarmTTL is how long a warm entry stays valid after insertion.
	DefaultWarmTTL = 300 * time.Second
)

type warmEntry struct {
	value    []byte
	insertAt time.Time
}

// Cache is the tiered value cache: hot (no TTL) backed by warm (TTL'd).
type Cache struct {
	hot     *lru.Cache[string, []byte]
	warm    *lru.Cache[string, warmEntry]
	warmTTL time.Duration
}

// Option configures a Cache at construction time.
type Option func(*config)

type config struct {
	hotCapacity  int
	warmCapacity int
	warmTTL      time.Duration
}

// WithCapacities overrides the default hot/warm tier sizes.
func WithCapacities(hot, warm int) Option {
	return func(c *config) { c.hotCapacity, c.warmCapacity = hot, warm }
}

// WithWarmTTL overrides the default warm-tier TTL.
func WithWarmTTL(ttl time.Duration) Option {
	return func(c *config) { c.warmTTL = ttl }
}

// New constructs a Cache with the given options applied over the defaults.
func New(opts ...Option) (*Cache, error) {
	cfg := config{
		hotCapacity:  DefaultHotCapacity,
		warmCapacity: DefaultWarmCapacity,
		warmTTL:      DefaultWarmTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	hot, err := lru.New[string, []byte](cfg.hotCapacity)
	if err != nil {
		return nil, err
	}
	warm, err := lru.New[string, warmEntry](cfg.warmCapacity)
	if err != nil {
		return nil, err
	}
	return &Cache{hot: hot, warm: warm, warmTTL: cfg.warmTTL}, nil
}

// Get looks up key in hot, then warm (promoting on hit), returning
// (value, true) on a hit and (nil, false) on a miss. A warm entry older
// than the TTL is treated as a miss and evicted.
func (c *Cache) Get(key string) ([]byte, bool) {
	if v, ok := c.hot.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("hot").Inc()
		return v, true
	}

	if e, ok := c.warm.Peek(key); ok {
		if time.Since(e.insertAt) > c.warmTTL {
			c.warm.Remove(key)
			metrics.CacheMissesTotal.Inc()
			return nil, false
		}
		c.warm.Remove(key)
		c.hot.Add(key, e.value)
		metrics.CacheHitsTotal.WithLabelValues("warm").Inc()
		return e.value, true
	}

	metrics.CacheMissesTotal.Inc()
	return nil, false
}

// Put inserts value under key into the warm tier.
func (c *Cache) Put(key string, value []byte) {
	c.warm.Add(key, warmEntry{value: value, insertAt: time.Now()})
}

// Invalidate removes key from both tiers, used after a write so a
// subsequent read observes the new value rather than a stale cached one.
func (c *Cache) Invalidate(key string) {
	c.hot.Remove(key)
	c.warm.Remove(key)
}
