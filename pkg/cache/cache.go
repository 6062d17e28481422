// Package cache provides an optional Redis-backed cache for successful GET
// responses. ADP responses carry no cache validators (no ETag, no Expires),
// so entries live for a client-side TTL configured at construction.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces all cache keys in Redis.
const keyPrefix = "adp:cache:"

// DefaultTTL is the entry lifetime when none is configured.
const DefaultTTL = 5 * time.Minute

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Prometheus metrics for cache operations.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adp_cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adp_cache_misses_total",
		Help: "Total cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adp_cache_errors_total",
		Help: "Total cache operation errors by operation",
	}, []string{"operation"})
)

// Key identifies a cached response. The masked flag is part of the key:
// masked and unmasked payloads for the same path must never collide.
type Key struct {
	Path   string
	Query  string
	Masked bool
}

// String returns the Redis key: a hash of path, query and masking.
func (k Key) String() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s?%s;masked=%t", k.Path, k.Query, k.Masked)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// entry is the stored representation of a cached response body.
type entry struct {
	Data     []byte    `json:"data"`
	CachedAt time.Time `json:"cached_at"`
	Expires  time.Time `json:"expires"`
}

// Store caches response bodies in Redis.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a cache store. A non-positive ttl falls back to DefaultTTL.
func New(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves a cached response body.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (s *Store) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expires keys itself; this guards against clock drift and
	// entries written with a longer TTL by an older configuration.
	if time.Now().After(e.Expires) {
		_ = s.Delete(ctx, key)
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	cacheHits.Inc()
	return e.Data, nil
}

// Set stores a response body under the configured TTL.
func (s *Store) Set(ctx context.Context, key Key, data []byte) error {
	now := time.Now()
	e := entry{
		Data:     data,
		CachedAt: now,
		Expires:  now.Add(s.ttl),
	}

	payload, err := json.Marshal(e)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), payload, s.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
