package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// embeddingCacheTTL bounds how long a cached embedding is trusted before the
// text is re-embedded, in case the upstream embedding model changes.
const embeddingCacheTTL = 24 * time.Hour

// embeddingCache is the minimal contract an embedding cache must satisfy:
// float32 vectors keyed by a hash of the text type and the exact text.
type embeddingCache interface {
	get(ctx context.Context, key string) ([]float32, bool)
	set(ctx context.Context, key string, vec []float32)
}

// embeddingCacheKey hashes the text type and the chunk text as given (no
// normalization), so re-indexing byte-identical
// content (across re-index calls, or across documents that share
// boilerplate clauses) skips a redundant embedding call.
func embeddingCacheKey(textType, text string) string {
	sum := sha256.Sum256([]byte(textType + "\x00" + text))
	return "embed:" + hex.EncodeToString(sum[:])
}

// cachedEmbedder wraps an Embedder with a cache lookup/store around every
// call, falling through to the underlying embedder on a miss.
type cachedEmbedder struct {
	inner Embedder
	cache embeddingCache
}

// newCachedEmbedder returns inner unchanged when cache is nil, so callers
// that never configured a cache pay no overhead.
func newCachedEmbedder(inner Embedder, cache embeddingCache, logger *zap.Logger) Embedder {
	if cache == nil {
		return inner
	}
	return &cachedEmbedder{inner: inner, cache: cache}
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string, textType ...string) ([]float32, error) {
	tt := "document"
	if len(textType) > 0 && textType[0] != "" {
		tt = textType[0]
	}
	key := embeddingCacheKey(tt, text)
	if vec, ok := c.cache.get(ctx, key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text, textType...)
	if err != nil {
		return nil, err
	}
	c.cache.set(ctx, key, vec)
	return vec, nil
}

func (c *cachedEmbedder) EmbedBatch(ctx context.Context, texts []string, textType ...string) ([][]float32, error) {
	tt := "document"
	if len(textType) > 0 && textType[0] != "" {
		tt = textType[0]
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if vec, ok := c.cache.get(ctx, embeddingCacheKey(tt, t)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missTexts, textType...)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = computed[j]
		c.cache.set(ctx, embeddingCacheKey(tt, missTexts[j]), computed[j])
	}
	return out, nil
}

// redisEmbeddingCache is the production cache, storing sonic-encoded
// float32 vectors so cached embeddings survive process restarts.
type redisEmbeddingCache struct {
	client *redis.Client
	log    *zap.Logger
}

// newRedisEmbeddingCache parses a standard redis:// URL and verifies
// connectivity with a bounded ping.
func newRedisEmbeddingCache(url string, logger *zap.Logger) (*redisEmbeddingCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &redisEmbeddingCache{client: client, log: logger}, nil
}

func (r *redisEmbeddingCache) get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := sonic.Unmarshal(raw, &vec); err != nil {
		r.log.Warn("vectorstore.embedcache.decode_failed", zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (r *redisEmbeddingCache) set(ctx context.Context, key string, vec []float32) {
	raw, err := sonic.Marshal(vec)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, raw, embeddingCacheTTL).Err(); err != nil {
		r.log.Warn("vectorstore.embedcache.set_failed", zap.Error(err))
	}
}

// memEmbeddingCache is the fallback used when no Redis URL is configured.
// No janitor goroutine; entries simply expire lazily on lookup.
type memEmbeddingCache struct {
	mu    sync.Mutex
	items map[string]cachedVector
}

type cachedVector struct {
	vec       []float32
	expiresAt time.Time
}

func newMemEmbeddingCache() *memEmbeddingCache {
	return &memEmbeddingCache{items: map[string]cachedVector{}}
}

func (m *memEmbeddingCache) get(_ context.Context, key string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(m.items, key)
		return nil, false
	}
	return e.vec, true
}

func (m *memEmbeddingCache) set(_ context.Context, key string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = cachedVector{vec: vec, expiresAt: time.Now().Add(embeddingCacheTTL)}
}
