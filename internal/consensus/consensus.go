// Package consensus is the Consensus Engine: deadline-driven committee
// voting with heavy-model gating and conductor synthesis. Grounded on
// core/consensus.py::vote for the exact phase semantics (cache check,
// config load, prewarm, context build, fan-out, three-phase deadline
// state machine, synthesis, confidence, cache write including timeouts)
// and on kube-zen's internal/consensus/consensus.go for the Go fan-out
// texture: a per-member goroutine feeding a results channel, collected
// under select against deadlines, and a separate arbiter/conductor
// synthesis call over the collected results.
package consensus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/adapter"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/domain"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/grounding"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/heavygate"
)

// Generator is the subset of *adapter.Backend the engine needs, narrowed
// to an interface so tests can substitute a deterministic fake instead of
// standing up a real Ollama endpoint.
type Generator interface {
	Generate(ctx context.Context, modelID, prompt string, opts adapter.Options) string
	Prewarm(ctx context.Context, modelIDs []string)
}

// Engine runs vote() over a committee config against a single LLM backend.
type Engine struct {
	backend   Generator
	gate      *heavygate.Gate
	grounding *grounding.Builder
}

// New constructs an Engine.
func New(backend Generator, gate *heavygate.Gate, builder *grounding.Builder) *Engine {
	return &Engine{backend: backend, gate: gate, grounding: builder}
}

type memberResult struct {
	vote domain.Vote
}

// Vote runs the full deadline-driven committee vote described in
// spec.md §4.7. It is deterministic modulo caching and backend
// non-determinism; the caller is responsible for the cache phase (see
// internal/httpapi), since the cache key also depends on a config
// fingerprint the engine itself has no opinion about.
func (e *Engine) Vote(ctx context.Context, prompt, userContext string, mode domain.Mode, cfg domain.ModeConfig) domain.VoteOutcome {
	start := time.Now()

	uniqueModels := uniqueModelIDs(cfg.Committee)
	e.backend.Prewarm(ctx, uniqueModels)

	promptCtx := e.grounding.BuildContext(userContext, []string{"MoME", "RAG"})

	resultCh := make(chan memberResult, len(cfg.Committee))
	for _, member := range cfg.Committee {
		member := member
		go func() {
			resultCh <- memberResult{vote: e.askMember(ctx, member, promptCtx, prompt)}
		}()
	}

	results := e.collect(resultCh, len(cfg.Committee), cfg, start)

	elapsed := time.Since(start).Seconds()

	if cfg.RequireHeavy && !haveHeavySuccess(results, cfg.Committee) {
		return domain.VoteOutcome{
			Status:      domain.StatusTimeout,
			FinalAnswer: "Precision mode: heavy model unavailable.",
			Votes:       results,
			Confidence:  0.0,
			ElapsedS:    round3(elapsed),
			Mode:        mode,
			CacheHit:    false,
		}
	}

	valid := successfulVotes(results)

	if len(valid) == 1 && len(cfg.Committee) == 1 {
		return domain.VoteOutcome{
			Status:      domain.StatusOK,
			FinalAnswer: valid[0].Answer,
			Votes:       results,
			Confidence:  0.9,
			ElapsedS:    round3(elapsed),
			Mode:        mode,
			CacheHit:    false,
		}
	}

	synthesis := e.synthesize(ctx, cfg.Conductor, promptCtx, valid)

	base := 0.55
	if anyHeavy(valid) {
		base = 0.7
	}
	confidence := base + 0.15
	if confidence > 0.95 {
		confidence = 0.95
	}

	return domain.VoteOutcome{
		Status:      domain.StatusOK,
		FinalAnswer: synthesis,
		Votes:       results,
		Confidence:  round2(confidence),
		ElapsedS:    round3(elapsed),
		Mode:        mode,
		CacheHit:    false,
	}
}

// askMember invokes the backend for one committee member, passing through
// the Heavy Gate when the member's model is heavy.
func (e *Engine) askMember(ctx context.Context, m domain.CommitteeMember, promptCtx, question string) domain.Vote {
	release, err := e.gate.Section(ctx, m.Model)
	if err != nil {
		return domain.Vote{Role: m.Role, Model: m.Model, Answer: "[ERROR] gate: " + err.Error(), Success: false}
	}
	defer release()

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fullPrompt := fmt.Sprintf(
		"%s\nProject context (REQUIRED):\n%s\n\nQuestion:\n%s\n\nConstraints: answer concisely. Do not invent acronyms.",
		m.System, promptCtx, question,
	)

	answer := e.backend.Generate(callCtx, m.Model, fullPrompt, adapter.Options{
		MaxTokens:         m.MaxTokens,
		Temperature:       m.Temperature,
		TopP:              m.TopP,
		RepetitionPenalty: m.RepetitionPenalty,
	})

	return domain.Vote{
		Role:    m.Role,
		Model:   m.Model,
		Answer:  answer,
		Success: !strings.HasPrefix(answer, "[ERROR") && !strings.HasPrefix(answer, "[TIMEOUT"),
	}
}

// collect runs the three-phase deadline state machine: wait on resultCh
// until the first member completes or cfg.Soft elapses, whichever comes
// first, and take whatever else is already buffered (SOFT), then — only if require_heavy and no
// heavy success yet — keep waiting through cfg.Grace (GRACE) and then the
// remainder of cfg.Hard (HARD). Once the phases close, any goroutines
// still writing to resultCh are abandoned (resultCh is buffered to their
// full count so none block forever).
func (e *Engine) collect(resultCh chan memberResult, want int, cfg domain.ModeConfig, start time.Time) []domain.Vote {
	var results []domain.Vote
	received := 0

	softDeadline := start.Add(cfg.Soft)
	results, received = drainSoft(resultCh, results, received, want, softDeadline)

	if cfg.RequireHeavy && !haveHeavySuccess(results, cfg.Committee) && received < want {
		graceDeadline := time.Now().Add(cfg.Grace)
		results, received = drainUntil(resultCh, results, received, want, graceDeadline)
	}

	if cfg.RequireHeavy && !haveHeavySuccess(results, cfg.Committee) && received < want {
		hardDeadline := start.Add(cfg.Hard)
		results, received = drainUntil(resultCh, results, received, want, hardDeadline)
	}

	return results
}

// drainSoft implements the SOFT phase: wait until the earlier of the soft
// deadline or the first member completing, then greedily collect any
// further results that are already sitting in the channel without
// extending the wait — spec.md §4.7 "collect all successful results
// available" at the moment either condition fires.
func drainSoft(ch chan memberResult, results []domain.Vote, received, want int, deadline time.Time) ([]domain.Vote, int) {
	if received >= want {
		return results, received
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case r := <-ch:
		results = append(results, r.vote)
		received++
	case <-timer.C:
		return results, received
	}
	for received < want {
		select {
		case r := <-ch:
			results = append(results, r.vote)
			received++
		default:
			return results, received
		}
	}
	return results, received
}

func drainUntil(ch chan memberResult, results []domain.Vote, received, want int, deadline time.Time) ([]domain.Vote, int) {
	for received < want {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return results, received
		}
		timer := time.NewTimer(remaining)
		select {
		case r := <-ch:
			timer.Stop()
			results = append(results, r.vote)
			received++
		case <-timer.C:
			return results, received
		}
	}
	return results, received
}

func (e *Engine) synthesize(ctx context.Context, conductor domain.CommitteeMember, promptCtx string, valid []domain.Vote) string {
	timeout := 10 * time.Second
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var sb strings.Builder
	for _, v := range valid {
		sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", v.Role, v.Model, v.Answer))
	}

	prompt := fmt.Sprintf(
		"%s\nProject context (REQUIRED):\n%s\n\nCommittee answers:\n%s\nProduce a single short synthesis faithful to the project context.",
		conductor.System, promptCtx, sb.String(),
	)

	maxTokens := conductor.MaxTokens
	if maxTokens == 0 {
		maxTokens = 256
	}
	temperature := conductor.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	return e.backend.Generate(callCtx, conductor.Model, prompt, adapter.Options{
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

func uniqueModelIDs(committee []domain.CommitteeMember) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range committee {
		if !seen[m.Model] {
			seen[m.Model] = true
			out = append(out, m.Model)
		}
	}
	return out
}

func successfulVotes(votes []domain.Vote) []domain.Vote {
	var out []domain.Vote
	for _, v := range votes {
		if v.Success {
			out = append(out, v)
		}
	}
	return out
}

// haveHeavySuccess mirrors core/consensus.py::have_heavy exactly: if the
// committee contains no heavy model at all, this returns false (matching
// Python's `any()` over an empty sequence), so require_heavy against an
// all-light committee always times out — a configuration error the
// original surfaces the same way, not a case this port should paper over.
func haveHeavySuccess(votes []domain.Vote, committee []domain.CommitteeMember) bool {
	heavyModels := make(map[string]bool)
	for _, m := range committee {
		if heavygate.IsHeavy(m.Model) {
			heavyModels[m.Model] = true
		}
	}
	for _, v := range votes {
		if v.Success && heavyModels[v.Model] {
			return true
		}
	}
	return false
}

func anyHeavy(votes []domain.Vote) bool {
	for _, v := range votes {
		if heavygate.IsHeavy(v.Model) {
			return true
		}
	}
	return false
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
