// Package experts implements the four retrieval adapters dispatched by
// the MoME router: lexical, semantic, temporal and graph. Grounded on
// core/mome_router.py's _search_lexical / _search_semantic /
// _search_temporal / _search_graph. Lexical and temporal target a
// Meilisearch-shaped search endpoint; semantic and graph target a
// Qdrant-shaped one. Every adapter swallows its own transport errors into
// an empty bucket rather than propagating them, matching the Python
// originals' bare `except Exception` catch-alls.
package experts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/domain"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/embedding"
)

// Expert is the uniform retrieval contract dispatched by the MoME router.
type Expert interface {
	Tag() string
	Search(ctx context.Context, query string, k int) domain.ExpertBucket
}

// MeiliConfig addresses a Meilisearch-shaped search index.
type MeiliConfig struct {
	Host  string
	Key   string
	Index string
}

// QdrantConfig addresses a Qdrant-shaped vector collection.
type QdrantConfig struct {
	Host       string
	Collection string
}

const defaultTimeout = 3 * time.Second

type meiliHit struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Text      string `json:"text"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

type meiliResponse struct {
	Hits []meiliHit `json:"hits"`
}

func postMeili(ctx context.Context, cfg MeiliConfig, body map[string]any) ([]meiliHit, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/indexes/%s/search", cfg.Host, cfg.Index)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.Key)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meilisearch returned %d", resp.StatusCode)
	}

	var out meiliResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Hits, nil
}

// Lexical is a full-text search expert over Meilisearch.
type Lexical struct{ Config MeiliConfig }

func (l Lexical) Tag() string { return "lexical" }

func (l Lexical) Search(ctx context.Context, query string, k int) domain.ExpertBucket {
	hits, err := postMeili(ctx, l.Config, map[string]any{"q": query, "limit": k})
	if err != nil {
		return nil
	}
	bucket := make(domain.ExpertBucket, 0, len(hits))
	for i, hit := range hits {
		text := hit.Content
		if text == "" {
			text = hit.Text
		}
		source := hit.Source
		if source == "" {
			source = "unknown"
		}
		id := hit.ID
		if id == "" {
			id = fmt.Sprintf("meili_%d", i)
		}
		bucket = append(bucket, domain.Document{
			DocID:     id,
			Text:      text,
			SourceURI: source,
			Score:     1.0 / float64(i+1),
			ExpertTag: "lexical",
		})
	}
	return bucket
}

// Temporal re-ranks the same Meilisearch index sorted by recency.
type Temporal struct{ Config MeiliConfig }

func (t Temporal) Tag() string { return "temporal" }

func (t Temporal) Search(ctx context.Context, query string, k int) domain.ExpertBucket {
	hits, err := postMeili(ctx, t.Config, map[string]any{
		"q":     query,
		"limit": k,
		"sort":  []string{"timestamp:desc"},
	})
	if err != nil {
		return nil
	}
	bucket := make(domain.ExpertBucket, 0, len(hits))
	for i, hit := range hits {
		source := hit.Source
		if source == "" {
			source = "unknown"
		}
		id := hit.ID
		if id == "" {
			id = fmt.Sprintf("temporal_%d", i)
		}
		bucket = append(bucket, domain.Document{
			DocID:     id,
			Text:      hit.Content,
			SourceURI: source,
			Score:     0.85,
			ExpertTag: "temporal",
		})
	}
	return bucket
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type qdrantResponse struct {
	Result []qdrantPoint `json:"result"`
}

func postQdrant(ctx context.Context, cfg QdrantConfig, path string, body map[string]any) ([]qdrantPoint, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/collections/%s/points/%s", cfg.Host, cfg.Collection, path)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant returned %d", resp.StatusCode)
	}

	var out qdrantResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Semantic performs a vector similarity search over Qdrant. Embedding is
// supplied by the caller (EmbeddingSemantic embeds each query through the
// same embedder the semantic cache uses) so this adapter stays a pure
// HTTP client with no embedding dependency of its own.
type Semantic struct {
	Config    QdrantConfig
	Embedding []float32
}

func (s Semantic) Tag() string { return "semantic" }

func (s Semantic) Search(ctx context.Context, query string, k int) domain.ExpertBucket {
	if len(s.Embedding) == 0 {
		return nil
	}
	points, err := postQdrant(ctx, s.Config, "search", map[string]any{
		"vector":       s.Embedding,
		"limit":        k,
		"with_payload": true,
	})
	if err != nil {
		return nil
	}
	bucket := make(domain.ExpertBucket, 0, len(points))
	for _, p := range points {
		bucket = append(bucket, documentFromQdrant(p, "semantic"))
	}
	return bucket
}

// Graph performs a recommend-style traversal over Qdrant, standing in for
// a dedicated graph store the spec names but does not require by Phase 2
// scope (core/mome_router.py's _search_graph is itself an explicit stub
// returning an empty list).
type Graph struct {
	Config    QdrantConfig
	Embedding []float32
}

func (g Graph) Tag() string { return "graph" }

func (g Graph) Search(ctx context.Context, query string, k int) domain.ExpertBucket {
	if len(g.Embedding) == 0 {
		return nil
	}
	points, err := postQdrant(ctx, g.Config, "recommend", map[string]any{
		"positive":     [][]float32{g.Embedding},
		"limit":        k,
		"with_payload": true,
	})
	if err != nil {
		return nil
	}
	bucket := make(domain.ExpertBucket, 0, len(points))
	for _, p := range points {
		bucket = append(bucket, documentFromQdrant(p, "graph"))
	}
	return bucket
}

// EmbeddingSemantic wraps Semantic so it can live in a Router's
// Dependencies for the whole process lifetime: rather than freezing a
// single embedding at construction, it embeds each query at Search time
// through a shared embedding.Embedder (the same one the semantic cache
// uses), then delegates to Semantic.
type EmbeddingSemantic struct {
	Config   QdrantConfig
	Embedder embedding.Embedder
}

func (s EmbeddingSemantic) Tag() string { return "semantic" }

func (s EmbeddingSemantic) Search(ctx context.Context, query string, k int) domain.ExpertBucket {
	if s.Embedder == nil {
		return nil
	}
	vec, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		return nil
	}
	return Semantic{Config: s.Config, Embedding: vec}.Search(ctx, query, k)
}

// EmbeddingGraph is EmbeddingSemantic's counterpart for Graph.
type EmbeddingGraph struct {
	Config   QdrantConfig
	Embedder embedding.Embedder
}

func (g EmbeddingGraph) Tag() string { return "graph" }

func (g EmbeddingGraph) Search(ctx context.Context, query string, k int) domain.ExpertBucket {
	if g.Embedder == nil {
		return nil
	}
	vec, err := g.Embedder.Embed(ctx, query)
	if err != nil {
		return nil
	}
	return Graph{Config: g.Config, Embedding: vec}.Search(ctx, query, k)
}

func documentFromQdrant(p qdrantPoint, tag string) domain.Document {
	text, _ := p.Payload["text"].(string)
	source, _ := p.Payload["source"].(string)
	if source == "" {
		source = "unknown"
	}
	return domain.Document{
		DocID:     p.ID,
		Text:      text,
		SourceURI: source,
		Score:     p.Score,
		ExpertTag: tag,
	}
}
