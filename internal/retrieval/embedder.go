package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// #region embedder
// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache stores vectors by key. Get reports false on a miss.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// #endregion embedder

// #region memory-cache
// MemoryCache is a process-local EmbeddingCache with expiry.
type MemoryCache struct {
	c *cache.Cache
}

// NewMemoryCache creates a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{c: cache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	vec, ok := v.([]float32)
	return vec, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, vec []float32) error {
	m.c.SetDefault(key, vec)
	return nil
}

// #endregion memory-cache

// #region redis-cache
// RedisCache shares embeddings between controller processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps client. Keys are stored under prefix; ttl 0 keeps them forever.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "emb:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get embedding: %w", err)
	}
	return decodeVector(b), true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	if err := r.client.Set(ctx, r.prefix+key, encodeVector(vec), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set embedding: %w", err)
	}
	return nil
}

// #endregion redis-cache

// #region cached-embedder
// CachedEmbedder consults cache before calling the wrapped Embedder.
// Cache failures fall through to the embedder.
type CachedEmbedder struct {
	embedder Embedder
	cache    EmbeddingCache
	model    string
}

// NewCachedEmbedder keys cache entries by model and text hash.
func NewCachedEmbedder(e Embedder, c EmbeddingCache, model string) *CachedEmbedder {
	return &CachedEmbedder{embedder: e, cache: c, model: model}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		return vec, nil
	}
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, key, vec)
	return vec, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.model + ":" + hex.EncodeToString(sum[:])
}

// #endregion cached-embedder

// #region vector-encoding
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// #endregion vector-encoding
