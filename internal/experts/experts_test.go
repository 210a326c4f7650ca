package experts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

func TestLexical_ParsesHitsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hits":[{"id":"a","content":"first"},{"id":"b","content":"second"}]}`))
	}))
	defer srv.Close()

	l := Lexical{Config: MeiliConfig{Host: srv.URL, Key: "k", Index: "docs"}}
	bucket := l.Search(context.Background(), "q", 5)

	assert.Len(t, bucket, 2)
	assert.Equal(t, "a", bucket[0].DocID)
	assert.Equal(t, 1.0, bucket[0].Score)
	assert.Equal(t, 0.5, bucket[1].Score)
	assert.Equal(t, "lexical", bucket[1].ExpertTag)
}

func TestLexical_NonOKStatusReturnsEmptyBucket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := Lexical{Config: MeiliConfig{Host: srv.URL, Index: "docs"}}
	bucket := l.Search(context.Background(), "q", 5)
	assert.Nil(t, bucket)
}

func TestLexical_UnreachableHostReturnsEmptyBucket(t *testing.T) {
	l := Lexical{Config: MeiliConfig{Host: "http://127.0.0.1:1", Index: "docs"}}
	bucket := l.Search(context.Background(), "q", 5)
	assert.Nil(t, bucket)
}

func TestTemporal_FixedScoreAndSortParam(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 512)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hits":[{"id":"t1","content":"x","timestamp":"2026-01-01"}]}`))
	}))
	defer srv.Close()

	tmp := Temporal{Config: MeiliConfig{Host: srv.URL, Index: "docs"}}
	bucket := tmp.Search(context.Background(), "q", 5)
	assert.Len(t, bucket, 1)
	assert.Equal(t, 0.85, bucket[0].Score)
	assert.Contains(t, gotBody, "timestamp:desc")
}

func TestSemantic_EmptyEmbeddingSkipsSearch(t *testing.T) {
	s := Semantic{Config: QdrantConfig{Host: "http://unused"}}
	bucket := s.Search(context.Background(), "q", 5)
	assert.Nil(t, bucket)
}

func TestSemantic_ParsesQdrantPoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[{"id":"p1","score":0.9,"payload":{"text":"hello","source":"qdrant"}}]}`))
	}))
	defer srv.Close()

	s := Semantic{Config: QdrantConfig{Host: srv.URL, Collection: "docs"}, Embedding: []float32{0.1, 0.2}}
	bucket := s.Search(context.Background(), "q", 5)
	assert.Len(t, bucket, 1)
	assert.Equal(t, "p1", bucket[0].DocID)
	assert.Equal(t, "hello", bucket[0].Text)
	assert.Equal(t, "semantic", bucket[0].ExpertTag)
}

func TestGraph_EmptyEmbeddingSkipsSearch(t *testing.T) {
	g := Graph{Config: QdrantConfig{Host: "http://unused"}}
	bucket := g.Search(context.Background(), "q", 5)
	assert.Nil(t, bucket)
}

func TestEmbeddingSemantic_EmbedsQueryThenSearches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[{"id":"p1","score":0.9,"payload":{"text":"hello"}}]}`))
	}))
	defer srv.Close()

	s := EmbeddingSemantic{
		Config:   QdrantConfig{Host: srv.URL, Collection: "docs"},
		Embedder: stubEmbedder{vec: []float32{0.1, 0.2}},
	}
	bucket := s.Search(context.Background(), "q", 5)
	assert.Len(t, bucket, 1)
	assert.Equal(t, "p1", bucket[0].DocID)
}

func TestEmbeddingSemantic_EmbedderFailureReturnsEmptyBucket(t *testing.T) {
	s := EmbeddingSemantic{
		Config:   QdrantConfig{Host: "http://unused"},
		Embedder: stubEmbedder{err: errors.New("embedding service down")},
	}
	assert.Nil(t, s.Search(context.Background(), "q", 5))
}

func TestEmbeddingSemantic_NilEmbedderReturnsEmptyBucket(t *testing.T) {
	s := EmbeddingSemantic{Config: QdrantConfig{Host: "http://unused"}}
	assert.Nil(t, s.Search(context.Background(), "q", 5))
}

func TestEmbeddingGraph_EmbedsQueryThenSearches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[{"id":"g1","score":0.7,"payload":{"text":"graph hit"}}]}`))
	}))
	defer srv.Close()

	g := EmbeddingGraph{
		Config:   QdrantConfig{Host: srv.URL, Collection: "docs"},
		Embedder: stubEmbedder{vec: []float32{0.3, 0.4}},
	}
	bucket := g.Search(context.Background(), "q", 5)
	assert.Len(t, bucket, 1)
	assert.Equal(t, "g1", bucket[0].DocID)
}

func TestTags(t *testing.T) {
	assert.Equal(t, "lexical", Lexical{}.Tag())
	assert.Equal(t, "semantic", Semantic{}.Tag())
	assert.Equal(t, "temporal", Temporal{}.Tag())
	assert.Equal(t, "graph", Graph{}.Tag())
}
