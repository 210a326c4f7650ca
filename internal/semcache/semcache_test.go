package semcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/domain"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/embedding"
)

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, nil, DefaultOptions()), mr
}

// stubEmbedder returns a fixed vector per query text, keyed by exact text
// match, so tests can control cosine similarity deterministically.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vectors[text], nil
}

func setupCacheWithEmbedder(t *testing.T, embedder embedding.Embedder) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, embedder, DefaultOptions()), mr
}

func TestExactKey_DeterministicAndFieldSeparated(t *testing.T) {
	k1 := ExactKey("prompt", "ctx", "precision", "fp1")
	k2 := ExactKey("prompt", "ctx", "precision", "fp1")
	assert.Equal(t, k1, k2)

	k3 := ExactKey("promptctx", "", "precision", "fp1")
	assert.NotEqual(t, k1, k3, "concatenating fields without a separator must not collide")
}

func TestGetExact_MissReturnsFalse(t *testing.T) {
	c, mr := setupCache(t)
	defer mr.Close()

	_, ok := c.GetExact(context.Background(), "nope")
	assert.False(t, ok)
}

func TestSetExact_ThenGetExact_RoundTrips(t *testing.T) {
	c, mr := setupCache(t)
	defer mr.Close()

	ctx := context.Background()
	key := ExactKey("p", "c", "precision", "fp")
	outcome := domain.VoteOutcome{
		Status:      domain.StatusOK,
		FinalAnswer: "42",
		Confidence:  0.8,
	}
	c.SetExact(ctx, key, outcome)

	got, ok := c.GetExact(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "42", got.FinalAnswer)
	assert.Equal(t, domain.StatusOK, got.Status)
}

func TestSetExact_AlsoCachesTimeoutOutcomes(t *testing.T) {
	c, mr := setupCache(t)
	defer mr.Close()

	ctx := context.Background()
	key := ExactKey("p", "c", "precision", "fp")
	c.SetExact(ctx, key, domain.VoteOutcome{Status: domain.StatusTimeout, Confidence: 0})

	got, ok := c.GetExact(ctx, key)
	require.True(t, ok)
	assert.Equal(t, domain.StatusTimeout, got.Status)
}

func TestGetExact_DegradesSilentlyWhenRedisIsDown(t *testing.T) {
	c, mr := setupCache(t)
	mr.Close()

	_, ok := c.GetExact(context.Background(), "any")
	assert.False(t, ok)
}

func TestGetSemantic_NilEmbedderAlwaysMisses(t *testing.T) {
	c, mr := setupCache(t)
	defer mr.Close()

	_, ok := c.GetSemantic(context.Background(), "what is the capital of France")
	assert.False(t, ok)
}

func TestCosineSimilarity_Bounds(t *testing.T) {
	assert.Equal(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, []float32{0, 1}))
}

func TestSetSemantic_ThenGetSemantic_SelfSimilarityHits(t *testing.T) {
	embedder := stubEmbedder{vectors: map[string][]float32{
		"what is the capital of France": {0.1, 0.2, 0.3},
	}}
	c, mr := setupCacheWithEmbedder(t, embedder)
	defer mr.Close()

	ctx := context.Background()
	c.SetSemantic(ctx, "what is the capital of France", domain.CacheEntry{Answer: "Paris"})

	entry, ok := c.GetSemantic(ctx, "what is the capital of France")
	require.True(t, ok)
	assert.Equal(t, "Paris", entry.Answer)
}

func TestGetSemantic_BelowThresholdMisses(t *testing.T) {
	embedder := stubEmbedder{vectors: map[string][]float32{
		"what is the capital of France": {1, 0},
		"unrelated query about weather": {0, 1},
	}}
	c, mr := setupCacheWithEmbedder(t, embedder)
	defer mr.Close()

	ctx := context.Background()
	c.SetSemantic(ctx, "what is the capital of France", domain.CacheEntry{Answer: "Paris"})

	_, ok := c.GetSemantic(ctx, "unrelated query about weather")
	assert.False(t, ok)
}

func TestDefaultOptions_AppliedWhenZero(t *testing.T) {
	c := New(nil, nil, Options{})
	assert.Equal(t, time.Hour, c.opts.TTL)
	assert.Equal(t, 0.93, c.opts.SimilarityThreshold)
	assert.Equal(t, 200, c.opts.MaxScan)
}
