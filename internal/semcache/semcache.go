// Package semcache is the Semantic Cache: an exact-key store for vote
// outcomes and a similarity-scanned store for retrieval answers, both
// backed by Redis. Grounded on src/cache/semantic_cache.go and
// src/cache/redis_cache.go from the teacher repo, with the scan step
// switched from the teacher's KEYS call to a cursor-bounded SCAN per
// spec.md's MAX_SCAN bound, and the embedding step kept on the teacher's
// go-openai client. Every public method degrades to a cache miss on any
// backend error instead of propagating it: the cache is always an
// optimization, never a dependency the rest of the system can fail on.
package semcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/domain"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/embedding"
)

const (
	exactPrefix    = "exact:"
	semanticPrefix = "semantic:"
)

// Options configures a Cache.
type Options struct {
	TTL                 time.Duration
	SimilarityThreshold float64
	MaxScan             int
}

// DefaultOptions mirrors spec.md's defaults.
func DefaultOptions() Options {
	return Options{
		TTL:                 time.Hour,
		SimilarityThreshold: 0.93,
		MaxScan:             200,
	}
}

// Cache is the two-level semantic cache.
type Cache struct {
	redis    *redis.Client
	embedder embedding.Embedder
	opts     Options
}

// New constructs a Cache over an existing Redis client and embedder. A nil
// embedder is valid: semantic lookups then always miss, while exact lookups
// keep working, matching the teacher's degrade-on-missing-dependency
// posture.
func New(redisClient *redis.Client, embedder embedding.Embedder, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.93
	}
	if opts.MaxScan <= 0 {
		opts.MaxScan = 200
	}
	return &Cache{redis: redisClient, embedder: embedder, opts: opts}
}

// ExactKey derives the sha256 vote-cache key over prompt, context, mode and
// a config fingerprint, per spec.md §4.3.
func ExactKey(prompt, context, mode, configFingerprint string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(context))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(configFingerprint))
	return hex.EncodeToString(h.Sum(nil))
}

// GetExact looks up a vote outcome by exact key. The bool return is false
// on both a true miss and any backend failure; callers cannot and should
// not distinguish the two.
func (c *Cache) GetExact(ctx context.Context, key string) (domain.VoteOutcome, bool) {
	var out domain.VoteOutcome
	val, err := c.redis.Get(ctx, exactPrefix+key).Result()
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return out, false
	}
	return out, true
}

// SetExact stores a vote outcome (including a timeout outcome — spec.md's
// Open Question preserves the same TTL for both). Failures are swallowed.
func (c *Cache) SetExact(ctx context.Context, key string, outcome domain.VoteOutcome) {
	data, err := json.Marshal(outcome)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, exactPrefix+key, data, c.opts.TTL).Err()
}

// GetSemantic scans cached retrieval entries for the closest embedding
// match at or above the similarity threshold, bounded by MaxScan entries
// visited (not matched). It returns ok=false on embedder failure, Redis
// failure, or no match at or above threshold.
func (c *Cache) GetSemantic(ctx context.Context, queryText string) (domain.CacheEntry, bool) {
	var best domain.CacheEntry
	if c.embedder == nil {
		return best, false
	}

	queryEmbedding, err := c.embedder.Embed(ctx, queryText)
	if err != nil {
		return best, false
	}

	var cursor uint64
	scanned := 0
	bestSim := c.opts.SimilarityThreshold
	found := false

	for {
		keys, next, err := c.redis.Scan(ctx, cursor, semanticPrefix+"*", 50).Result()
		if err != nil {
			break
		}
		for _, key := range keys {
			if scanned >= c.opts.MaxScan {
				break
			}
			scanned++

			val, err := c.redis.Get(ctx, key).Result()
			if err != nil {
				continue
			}
			var entry domain.CacheEntry
			if err := json.Unmarshal([]byte(val), &entry); err != nil {
				continue
			}
			if len(entry.Embedding) == 0 {
				continue
			}
			sim := cosineSimilarity(queryEmbedding, entry.Embedding)
			if sim >= bestSim {
				bestSim = sim
				best = entry
				found = true
			}
		}
		cursor = next
		if cursor == 0 || scanned >= c.opts.MaxScan {
			break
		}
	}

	return best, found
}

// SetSemantic embeds and stores a retrieval answer under a semantic key
// derived from the sha256 of the query text, so storing the same query
// again overwrites the earlier entry. Failures are swallowed.
func (c *Cache) SetSemantic(ctx context.Context, queryText string, entry domain.CacheEntry) {
	if c.embedder == nil {
		return
	}
	vec, err := c.embedder.Embed(ctx, queryText)
	if err != nil {
		return
	}
	entry.Embedding = vec
	entry.QueryText = queryText
	entry.StoredAt = time.Now()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := semanticPrefix + ExactKey(queryText, "", "", "")
	_ = c.redis.Set(ctx, key, data, c.opts.TTL).Err()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
