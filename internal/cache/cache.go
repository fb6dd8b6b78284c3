// Package cache memoizes multi-corpus retrieval results in a local or
// redis backend and coalesces concurrent identical lookups.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"eurorag/internal/config"
	"eurorag/internal/domain"
	"eurorag/internal/metrics"
)

// ResultCache caches retrieval results keyed by the exact query, the
// requested corpora and their top_k, and the embedder identity.
type ResultCache struct {
	backend Backend
	prefix  string
	scope   string
	ttl     time.Duration
	group   singleflight.Group
	log     *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps backend. scope distinguishes caches whose results are not
// interchangeable, typically the embedder name.
func New(backend Backend, prefix, scope string, ttl time.Duration, log *slog.Logger, m *metrics.Metrics) *ResultCache {
	if log == nil {
		log = slog.Default()
	}
	return &ResultCache{
		backend: backend,
		prefix:  prefix,
		scope:   scope,
		ttl:     ttl,
		log:     log,
		metrics: m,
	}
}

// FromConfig builds the cache selected by cfg.Type; it returns nil for "none".
func FromConfig(ctx context.Context, cfg config.CacheConfig, scope string, log *slog.Logger, m *metrics.Metrics) (*ResultCache, error) {
	ttl := time.Duration(cfg.TTLSecs) * time.Second
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return New(NewMemory(), "eurorag:", scope, ttl, log, m), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("redis cache config missing")
		}
		backend, err := NewRedis(ctx, RedisOptions{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return nil, err
		}
		return New(backend, cfg.Redis.Prefix, scope, ttl, log, m), nil
	default:
		return nil, fmt.Errorf("unknown cache: %s", cfg.Type)
	}
}

// Get returns a cached result. Backend failures count as misses.
func (c *ResultCache) Get(ctx context.Context, query string, corpora []domain.NamedCorpus) (map[string]domain.Result, bool) {
	key := c.Key(query, corpora)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.Error("cache get failed", "key", key, "error", err)
			c.metrics.CacheResult("error")
		} else {
			c.metrics.CacheResult("miss")
		}
		c.misses.Add(1)
		return nil, false
	}
	var out map[string]domain.Result
	if err := json.Unmarshal(data, &out); err != nil {
		c.log.Error("cache unmarshal failed", "key", key, "error", err)
		c.metrics.CacheResult("error")
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheResult("hit")
	c.log.Debug("cache hit", "key", key)
	return out, true
}

// Set stores a result; failures are logged and otherwise ignored.
func (c *ResultCache) Set(ctx context.Context, query string, corpora []domain.NamedCorpus, res map[string]domain.Result) {
	key := c.Key(query, corpora)
	data, err := json.Marshal(res)
	if err != nil {
		c.log.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.log.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs compute once for all
// concurrent callers asking for the same key. Errors are not cached.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	query string,
	corpora []domain.NamedCorpus,
	compute func() (map[string]domain.Result, error),
) (map[string]domain.Result, bool, error) {
	if res, ok := c.Get(ctx, query, corpora); ok {
		return res, true, nil
	}
	key := c.Key(query, corpora)
	val, err, _ := c.group.Do(key, func() (any, error) {
		if res, ok := c.Get(ctx, query, corpora); ok {
			return res, nil
		}
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, corpora, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(map[string]domain.Result), false, nil
}

// Invalidate drops every entry under this cache's prefix.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.DeletePrefix(ctx, c.prefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.log.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

// Stats reports hit and miss counts since creation.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases the backend.
func (c *ResultCache) Close() error { return c.backend.Close() }

// Key derives the backend key from the exact query text. Corpus order does
// not matter.
func (c *ResultCache) Key(query string, corpora []domain.NamedCorpus) string {
	var b strings.Builder
	b.WriteString(c.scope)
	b.WriteByte('|')
	b.WriteString(query)
	names := make([]string, len(corpora))
	for i, nc := range corpora {
		names[i] = fmt.Sprintf("%s=%d", nc.Name, nc.TopK)
	}
	sort.Strings(names)
	for _, n := range names {
		b.WriteByte('|')
		b.WriteString(n)
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", c.prefix, hash[:16])
}
