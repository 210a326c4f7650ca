// Package domain holds the shared data model for the retrieval and
// consensus cores: queries, committee configuration, votes, documents and
// fused results. Nothing in this package performs I/O.
package domain

import "time"

// Mode tags the intent of a query; it selects a ModeConfig for consensus
// voting and influences nothing in the MoME router directly.
type Mode string

const (
	ModePrecision   Mode = "precision"
	ModeInteractive Mode = "interactive"
)

// Query is the input to either route() or vote().
type Query struct {
	Text    string
	Context string
	Mode    Mode
}

// CommitteeMember describes one voting LLM role. TimeoutS is the on-disk
// seconds-based form of the per-call timeout (matching the _s-suffixed
// duration convention the rest of the committee file uses for
// soft_deadline_s/grace_s/hard_deadline_s); config.LoadModeConfig derives
// Timeout from it after a strict decode, since yaml.v3 cannot decode a
// duration string directly into a time.Duration field. Code constructing a
// CommitteeMember directly (tests, other call sites) sets Timeout and
// leaves TimeoutS at its zero value.
type CommitteeMember struct {
	Role              string        `yaml:"role"`
	Model             string        `yaml:"model"`
	System            string        `yaml:"system"`
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       float64       `yaml:"temperature"`
	TopP              float64       `yaml:"top_p"`
	RepetitionPenalty float64       `yaml:"repetition_penalty"`
	TimeoutS          float64       `yaml:"timeout_s"`
	Timeout           time.Duration `yaml:"-"`
}

// ModeConfig is the per-mode committee and deadline policy. Invariant:
// 0 < Soft <= Soft+Grace <= Hard.
type ModeConfig struct {
	Committee     []CommitteeMember `yaml:"committee"`
	Soft          time.Duration     `yaml:"soft_deadline"`
	Grace         time.Duration     `yaml:"grace"`
	Hard          time.Duration     `yaml:"hard_deadline"`
	RequireHeavy  bool              `yaml:"require_heavy"`
	Conductor     CommitteeMember   `yaml:"conductor"`
}

// Vote is one committee member's response.
type Vote struct {
	Role    string `json:"role"`
	Model   string `json:"model"`
	Answer  string `json:"answer"`
	Success bool   `json:"success"`
}

// VoteStatus is the terminal status of a vote() call.
type VoteStatus string

const (
	StatusOK      VoteStatus = "ok"
	StatusTimeout VoteStatus = "timeout"
)

// VoteOutcome is the result of a consensus vote.
//
// Invariants: Status == StatusTimeout implies RequireHeavy was set and no
// heavy model produced a successful vote. Confidence is in [0.55, 0.95]
// for StatusOK and exactly 0.0 for StatusTimeout.
type VoteOutcome struct {
	Status      VoteStatus `json:"status"`
	FinalAnswer string     `json:"final_answer"`
	Votes       []Vote     `json:"votes"`
	Confidence  float64    `json:"confidence"`
	ElapsedS    float64    `json:"elapsed_s"`
	Mode        Mode       `json:"mode"`
	CacheHit    bool       `json:"cache_hit"`
}

// Document is a single retrieved result from one expert. DocID is stable
// and unique across a single fusion bucket from one expert.
type Document struct {
	DocID     string  `json:"doc_id"`
	Text      string  `json:"text"`
	SourceURI string  `json:"source_uri"`
	Score     float64 `json:"score"`
	ExpertTag string  `json:"expert_tag"`
}

// ExpertBucket is the ranked, best-first sequence of documents from one
// retriever.
type ExpertBucket []Document

// FusedDocument is a Document enriched with its fused score and the set
// of experts that contributed to it.
type FusedDocument struct {
	Document
	FinalScore          float64  `json:"final_score"`
	ContributingExperts []string `json:"contributing_experts"`
}

// QueryClass is the MoME router's classification of a query.
type QueryClass string

const (
	ClassFactual    QueryClass = "factual"
	ClassConceptual QueryClass = "conceptual"
	ClassRecent     QueryClass = "recent"
	ClassDefault    QueryClass = "default"
)

// WeightVector maps an expert tag to its fusion weight.
type WeightVector map[string]float64

// CacheEntry is a semantically-keyed cache record. It carries the full
// RouteResponse shape so a semantic-cache hit can answer /route without
// falling back to a degraded partial response.
type CacheEntry struct {
	QueryText     string          `json:"query"`
	Embedding     []float32       `json:"embedding"`
	Answer        string          `json:"answer"`
	Sources       []FusedDocument `json:"sources,omitempty"`
	ExpertsUsed   []string        `json:"experts_used,omitempty"`
	QueryType     QueryClass      `json:"query_type,omitempty"`
	FusionMethod  string          `json:"fusion_method,omitempty"`
	FusionWeights WeightVector    `json:"fusion_weights,omitempty"`
	StoredAt      time.Time       `json:"stored_at"`
}

// Heuristics tunes the MoME router's short/long-query adaptive override.
type Heuristics struct {
	ShortQueryChars      int
	ShortQueryTokens     int
	BoostLexicalOnShort  float64
	BoostSemanticOnLong  float64
}

// DefaultHeuristics mirrors the spec's default adaptive-override values.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		ShortQueryChars:     20,
		ShortQueryTokens:    3,
		BoostLexicalOnShort: 0.7,
		BoostSemanticOnLong: 0.7,
	}
}

// RouteResponse is the MoME router's answer to GET /route.
type RouteResponse struct {
	Answer        string          `json:"answer"`
	Sources       []FusedDocument `json:"sources"`
	ExpertsUsed   []string        `json:"experts_used"`
	QueryType     QueryClass      `json:"query_type"`
	FusionMethod  string          `json:"fusion_method"`
	FusionWeights WeightVector    `json:"fusion_weights"`
}
