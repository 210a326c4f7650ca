// Package fusion implements score normalization, weighted reciprocal rank
// fusion and MMR diversification over retrieval expert buckets. It is
// grounded on core/mome_router.py's _reciprocal_rank_fusion, generalized
// with the weighting and MMR steps the spec adds. Nothing here suspends;
// it is pure computation over already-fetched documents.
package fusion

import (
	"math"
	"sort"

	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/domain"
)

// Normalize min-max scales scores to [0,1]. If the spread is below 1e-9,
// every score is assigned 0.5.
func Normalize(docs []domain.Document) []domain.Document {
	if len(docs) == 0 {
		return docs
	}
	min, max := docs[0].Score, docs[0].Score
	for _, d := range docs {
		if d.Score < min {
			min = d.Score
		}
		if d.Score > max {
			max = d.Score
		}
	}
	out := make([]domain.Document, len(docs))
	copy(out, docs)
	if max-min < 1e-9 {
		for i := range out {
			out[i].Score = 0.5
		}
		return out
	}
	for i := range out {
		out[i].Score = (out[i].Score - min) / (max - min)
	}
	return out
}

// docID picks the stable identifier for a document: DocID, else the text
// itself.
func docID(d domain.Document) string {
	if d.DocID != "" {
		return d.DocID
	}
	return d.Text
}

// WeightedRRF fuses ranked buckets from multiple experts using weighted
// reciprocal rank fusion: contribution = weight[expert] * 1/(k + rank).
// Expert iteration order is the order of the experts slice, so that ties
// are broken deterministically by first appearance regardless of map
// insertion order upstream.
func WeightedRRF(experts []string, buckets map[string]domain.ExpertBucket, weights domain.WeightVector, k int) []domain.FusedDocument {
	scores := make(map[string]float64)
	order := make([]string, 0)
	docs := make(map[string]domain.Document)
	contributors := make(map[string][]string)
	seenContributor := make(map[string]map[string]bool)

	for _, expert := range experts {
		bucket := buckets[expert]
		weight := weights[expert]
		for rank, doc := range bucket {
			id := docID(doc)
			if id == "" {
				continue
			}
			if _, ok := docs[id]; !ok {
				docs[id] = doc
				order = append(order, id)
				seenContributor[id] = make(map[string]bool)
			}
			scores[id] += weight * (1.0 / float64(k+rank+1))
			if !seenContributor[id][expert] {
				seenContributor[id][expert] = true
				contributors[id] = append(contributors[id], expert)
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	out := make([]domain.FusedDocument, 0, len(order))
	for _, id := range order {
		out = append(out, domain.FusedDocument{
			Document:            docs[id],
			FinalScore:          scores[id],
			ContributingExperts: contributors[id],
		})
	}
	return out
}

// Dedup removes duplicate documents by DocID, first occurrence wins. It is
// idempotent: Dedup(Dedup(x)) == Dedup(x).
func Dedup(docs []domain.FusedDocument) []domain.FusedDocument {
	seen := make(map[string]bool, len(docs))
	out := make([]domain.FusedDocument, 0, len(docs))
	for _, d := range docs {
		id := docID(d.Document)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, d)
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		denom = 1.0
	}
	return dot / denom
}

// MMRCandidate pairs a fused document with the embedding used for
// diversity scoring.
type MMRCandidate struct {
	Doc       domain.FusedDocument
	Embedding []float32
}

// MMR greedily selects up to topK candidates maximizing
// (1-lambda)*relevance - lambda*max(cosine to already-selected). Relevance
// is the min-max normalized fused score. The first pick is pure relevance.
func MMR(candidates []MMRCandidate, topK int, lambda float64) []domain.FusedDocument {
	if len(candidates) == 0 || topK <= 0 {
		return nil
	}

	min, max := candidates[0].Doc.FinalScore, candidates[0].Doc.FinalScore
	for _, c := range candidates {
		if c.Doc.FinalScore < min {
			min = c.Doc.FinalScore
		}
		if c.Doc.FinalScore > max {
			max = c.Doc.FinalScore
		}
	}
	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		if max-min < 1e-9 {
			relevance[i] = 0.5
		} else {
			relevance[i] = (c.Doc.FinalScore - min) / (max - min)
		}
	}

	selected := make([]int, 0, topK)
	remaining := make([]bool, len(candidates))
	for i := range candidates {
		remaining[i] = true
	}
	remainingCount := len(candidates)

	for len(selected) < topK && remainingCount > 0 {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i := 0; i < len(candidates); i++ {
			if !remaining[i] {
				continue
			}
			score := relevance[i]
			if len(selected) > 0 {
				maxSim := 0.0
				for _, s := range selected {
					sim := cosine(candidates[i].Embedding, candidates[s].Embedding)
					if sim > maxSim {
						maxSim = sim
					}
				}
				score = (1-lambda)*relevance[i] - lambda*maxSim
			}
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, bestIdx)
		remaining[bestIdx] = false
		remainingCount--
	}

	out := make([]domain.FusedDocument, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx].Doc
	}
	return out
}
