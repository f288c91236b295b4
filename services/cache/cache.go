// Package cache stores short-lived byte values in Redis or process memory.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a byte cache with per-entry TTL
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// GetJSON decodes a cached JSON value into dst
func GetJSON(ctx context.Context, c Cache, key string, dst any) (bool, error) {
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v as JSON and stores it
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.Set(ctx, key, b, ttl)
}

type entry struct {
	v    []byte
	exp  time.Time
	used time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && now.After(e.exp)
}

// MemoryOption configures a MemoryCache
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	maxSize         int
	cleanupInterval time.Duration
}

// WithMemoryMaxSize caps the number of entries; the least recently used
// entry is evicted when full.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *memoryConfig) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept. Zero disables
// the sweeper.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		c.cleanupInterval = interval
	}
}

// MemoryCache is a bounded in-process TTL cache with LRU eviction
type MemoryCache struct {
	mu      sync.Mutex
	m       map[string]*entry
	maxSize int

	ticker    *time.Ticker
	stop      chan struct{}
	closeOnce sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &memoryConfig{
		maxSize:         5000,
		cleanupInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &MemoryCache{
		m:       make(map[string]*entry),
		maxSize: cfg.maxSize,
		stop:    make(chan struct{}),
	}
	if cfg.cleanupInterval > 0 {
		c.ticker = time.NewTicker(cfg.cleanupInterval)
		go c.cleanupExpired()
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	now := time.Now()
	if e.expired(now) {
		delete(c.m, key)
		return nil, false, nil
	}
	e.used = now
	return e.v, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && len(c.m) >= c.maxSize {
		c.evict(now)
	}
	c.m[key] = &entry{v: value, exp: exp, used: now}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Close stops the sweeper
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		if c.ticker != nil {
			c.ticker.Stop()
		}
		close(c.stop)
	})
	return nil
}

// evict drops expired entries, or the least recently used one if none
// expired. Caller holds mu.
func (c *MemoryCache) evict(now time.Time) {
	if c.sweep(now) > 0 {
		return
	}
	var oldestKey string
	var oldest time.Time
	for key, e := range c.m {
		if oldestKey == "" || e.used.Before(oldest) {
			oldestKey, oldest = key, e.used
		}
	}
	delete(c.m, oldestKey)
}

func (c *MemoryCache) sweep(now time.Time) int {
	n := 0
	for key, e := range c.m {
		if e.expired(now) {
			delete(c.m, key)
			n++
		}
	}
	return n
}

func (c *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-c.stop:
			return
		case now := <-c.ticker.C:
			c.mu.Lock()
			c.sweep(now)
			c.mu.Unlock()
		}
	}
}

// RedisCache stores values in Redis under a key prefix
type RedisCache struct {
	cli    *redis.Client
	prefix string
}

func NewRedisCache(cli *redis.Client, prefix string) *RedisCache {
	return &RedisCache{cli: cli, prefix: prefix}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.cli.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(ctx, r.prefix+key, value, ttl).Err()
}

// NewRedisClient parses a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	cli := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return cli, nil
}
