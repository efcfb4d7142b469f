package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores vectors by key. GetMany returns a nil entry for each miss.
type Cache interface {
	GetMany(ctx context.Context, keys []string) ([][]float32, error)
	SetMany(ctx context.Context, keys []string, vecs [][]float32) error
}

// MemoryCache is an in-process LRU vector cache.
type MemoryCache struct {
	lru *lru.Cache[string, []float32]
}

// NewMemoryCache creates a MemoryCache holding at most size vectors.
func NewMemoryCache(size int) (*MemoryCache, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &MemoryCache{lru: c}, nil
}

func (c *MemoryCache) GetMany(_ context.Context, keys []string) ([][]float32, error) {
	out := make([][]float32, len(keys))
	for i, k := range keys {
		if v, ok := c.lru.Get(k); ok {
			out[i] = v
		}
	}
	return out, nil
}

func (c *MemoryCache) SetMany(_ context.Context, keys []string, vecs [][]float32) error {
	for i, k := range keys {
		c.lru.Add(k, vecs[i])
	}
	return nil
}

// RedisCache stores vectors in Redis as packed little-endian float32.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(cacheClientOptions(opts))
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisCacheFromClient(rdb, ttl), nil
}

// cacheClientOptions fails fast on an unreachable Redis; lookups then fall
// through to the provider.
func cacheClientOptions(opts *redis.Options) *redis.Options {
	opts.DialTimeout = 250 * time.Millisecond
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond
	opts.MaxRetries = -1
	return opts
}

// NewRedisCacheFromClient wraps an existing client. A zero ttl keeps entries forever.
func NewRedisCacheFromClient(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) GetMany(ctx context.Context, keys []string) ([][]float32, error) {
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([][]float32, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = unpackVector([]byte(s))
	}
	return out, nil
}

func (c *RedisCache) SetMany(ctx context.Context, keys []string, vecs [][]float32) error {
	pipe := c.rdb.Pipeline()
	for i, k := range keys {
		pipe.Set(ctx, k, packVector(vecs[i]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func packVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func unpackVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

const cacheKeyPrefix = "sbert:emb:"

// CacheNamespace identifies the vectors one backend produces: provider kind,
// endpoint, model and expected dimension. Backends that differ in any of
// these never share cache entries.
func CacheNamespace(cfg Config) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", cfg.Provider, cfg.Endpoint, cfg.Model, cfg.Dimension)))
	return cfg.Model + ":" + hex.EncodeToString(sum[:8])
}

// CachedProvider serves repeated texts from a Cache and embeds the misses
// in a single call to the wrapped provider.
type CachedProvider struct {
	next      Provider
	cache     Cache
	namespace string
	logger    *zap.Logger
}

// NewCachedProvider wraps next with cache. Keys are scoped by namespace,
// normally CacheNamespace of the backend config.
func NewCachedProvider(next Provider, cache Cache, namespace string, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, namespace: namespace, logger: logger}
}

func (p *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + p.namespace + ":" + hex.EncodeToString(sum[:])
}

// Embed implements Provider. Cache failures degrade to a full miss.
func (p *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = p.key(t)
	}

	cacheOK := true
	out, err := p.cache.GetMany(ctx, keys)
	if err != nil || len(out) != len(texts) {
		if err != nil {
			p.logger.Warn("embedding cache read failed", zap.Error(err))
		}
		cacheOK = false
		out = make([][]float32, len(texts))
	}

	var missIdx []int
	var missTexts []string
	for i, v := range out {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := p.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedding: provider returned %d embeddings for %d inputs", len(vecs), len(missTexts))
	}

	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		out[i] = vecs[j]
		missKeys[j] = keys[i]
	}
	// Skip the write when the read already failed; the cache is likely down.
	if cacheOK {
		if err := p.cache.SetMany(ctx, missKeys, vecs); err != nil {
			p.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}

	p.logger.Debug("embedding cache",
		zap.Int("hits", len(texts)-len(missTexts)),
		zap.Int("misses", len(missTexts)))
	return out, nil
}
