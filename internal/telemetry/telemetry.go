// Package telemetry exposes process metrics in Prometheus text-exposition
// format (spec.md §6) and token/cost estimation. The metrics half is new
// (the teacher has no metrics package), wired on `prometheus/client_golang`
// because that library is a direct dependency of `luxfi-consensus`
// elsewhere in the retrieval pack and is the textbook producer of exactly
// the wire format spec.md names. The cost half is adapted from
// src/utils/cost_calculator.go, repointed from the teacher's cloud-LLM/SLM
// split onto this system's heavy/light model split.
package telemetry

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge the orchestrator exports.
type Metrics struct {
	CacheHits        *prometheus.CounterVec
	HeavyGateInUse   prometheus.Gauge
	HeavyGateWaiters prometheus.Gauge
	VoteOutcomes     *prometheus.CounterVec
	ExpertLatency    *prometheus.HistogramVec
	EstimatedCostUSD prometheus.Counter
}

// New registers and returns the metric set against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_cache_lookups_total",
			Help: "Semantic cache lookups by kind (exact|semantic) and outcome (hit|miss).",
		}, []string{"kind", "outcome"}),
		HeavyGateInUse: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_heavy_gate_in_use",
			Help: "Number of heavy-model calls currently holding the gate.",
		}),
		HeavyGateWaiters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_heavy_gate_waiters",
			Help: "Number of heavy-model calls waiting for the gate.",
		}),
		VoteOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_vote_outcomes_total",
			Help: "Consensus vote outcomes by status (ok|timeout).",
		}, []string{"status", "mode"}),
		ExpertLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexus_expert_dispatch_seconds",
			Help:    "Per-expert retrieval dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"expert"}),
		EstimatedCostUSD: factory.NewCounter(prometheus.CounterOpts{
			Name: "nexus_estimated_cost_usd_total",
			Help: "Running estimated USD spend across vote/route calls (token-count heuristic, not a billing figure).",
		}),
	}
}

// RecordCost adds a CostEstimate's total to the running cost counter.
func (m *Metrics) RecordCost(c CostEstimate) {
	m.EstimatedCostUSD.Add(c.TotalCost)
}

// ObserveGateMetrics pushes a heavygate.Metrics snapshot into the gauges;
// takes plain ints rather than importing internal/heavygate to avoid a
// dependency cycle risk as the package graph grows.
func (m *Metrics) ObserveGateMetrics(inUse, waiters int64) {
	m.HeavyGateInUse.Set(float64(inUse))
	m.HeavyGateWaiters.Set(float64(waiters))
}

// Pricing per 1M tokens, carried over from the teacher's cost_calculator.go
// and repointed at this system's two model tiers instead of cloud/local.
const (
	HeavyModelInputPer1M  = 2.00
	HeavyModelOutputPer1M = 6.00
	LightModelInputPer1M  = 0.10
	LightModelOutputPer1M = 0.10
	EmbeddingPer1M        = 0.10
)

// EstimateTokenCount approximates token count at ~1 token per 4 characters,
// matching the teacher's heuristic exactly.
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	tokenCount := len(text) / 4
	if tokenCount < 10 {
		tokenCount = 10
	}
	return tokenCount
}

// CostEstimate is the cost breakdown for a single vote or route call.
type CostEstimate struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	CacheCost    float64 `json:"cache_cost"`
	TotalCost    float64 `json:"total_cost"`
}

// EstimateCost prices a call based on whether it used a heavy model, and
// whether the semantic cache's embedding step was exercised.
func EstimateCost(prompt, response string, isHeavy, semanticCacheEnabled bool) CostEstimate {
	inputTokens := EstimateTokenCount(prompt)
	outputTokens := EstimateTokenCount(response)

	var cost float64
	if isHeavy {
		cost = float64(inputTokens)*HeavyModelInputPer1M/1_000_000 + float64(outputTokens)*HeavyModelOutputPer1M/1_000_000
	} else {
		cost = float64(inputTokens)*LightModelInputPer1M/1_000_000 + float64(outputTokens)*LightModelOutputPer1M/1_000_000
	}

	var cacheCost float64
	if semanticCacheEnabled {
		cacheCost = float64(inputTokens) * EmbeddingPer1M / 1_000_000
	}

	return CostEstimate{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		CacheCost:    cacheCost,
		TotalCost:    cost + cacheCost,
	}
}
