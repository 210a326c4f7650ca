// Package adapter is the LLM Backend Adapter: a thin wrapper over
// langchaingo's Ollama binding that downgrades every failure mode to a
// sentinel string instead of propagating an error, so callers in
// internal/consensus can always treat a vote's Answer as text. Grounded on
// src/inference/llm_engine.go and src/inference/slm_engine.go from the
// teacher repo, adapted from the OpenAI binding to Ollama to match the
// committee's local-model wire contract, and on core/multi_llm_voting.py's
// `_ollama_generate` for the retry/degrade shape.
package adapter

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Options configure a single generate call.
type Options struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}

// Backend generates text against a single Ollama-shaped endpoint.
type Backend struct {
	endpoint string
	mu       sync.Mutex
	clients  map[string]*ollama.LLM
}

// New creates a Backend targeting the given Ollama base URL. Model clients
// are constructed lazily on first use, since the committee roster is not
// known until a ModeConfig loads.
func New(endpoint string) *Backend {
	return &Backend{
		endpoint: endpoint,
		clients:  make(map[string]*ollama.LLM),
	}
}

// clientFor is called from concurrent per-member goroutines during
// consensus fan-out, so the lazy client cache needs its own lock — several
// committee roles commonly share one model-id.
func (b *Backend) clientFor(modelID string) (*ollama.LLM, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[modelID]; ok {
		return c, nil
	}
	c, err := ollama.New(
		ollama.WithModel(modelID),
		ollama.WithServerURL(b.endpoint),
	)
	if err != nil {
		return nil, err
	}
	b.clients[modelID] = c
	return c, nil
}

// Generate issues a single prompt to modelID and returns its text. On any
// failure it returns the `[ERROR ...]` sentinel instead of an error, except
// when ctx is already done (deadline passed or cancelled), in which case it
// returns the `[TIMEOUT_<s>s]` sentinel carrying the seconds left until
// ctx's deadline (0 once it has passed, or when ctx has no deadline). A
// single linear-backoff retry (1.5s * attempt) is attempted for non-timeout
// failures, mirroring the teacher's degrade-to-fallback style.
func (b *Backend) Generate(ctx context.Context, modelID, prompt string, opts Options) string {
	if err := ctx.Err(); err != nil {
		return timeoutSentinel(ctx)
	}

	client, err := b.clientFor(modelID)
	if err != nil {
		return fmt.Sprintf("[ERROR] %v", err)
	}

	callOpts := buildCallOptions(opts)

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := llms.GenerateFromSinglePrompt(ctx, client, prompt, callOpts...)
		if err == nil {
			return resp
		}
		lastErr = err
		if ctx.Err() != nil {
			return timeoutSentinel(ctx)
		}
		if attempt < 2 {
			time.Sleep(time.Duration(1.5*float64(attempt)) * time.Second)
		}
	}
	return fmt.Sprintf("[ERROR] %v", lastErr)
}

func timeoutSentinel(ctx context.Context) string {
	dl, ok := ctx.Deadline()
	if !ok {
		return "[TIMEOUT_0s]"
	}
	remaining := time.Until(dl).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("[TIMEOUT_%.0fs]", remaining)
}

func buildCallOptions(opts Options) []llms.CallOption {
	var callOpts []llms.CallOption
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	temp := opts.Temperature
	if temp == 0 {
		temp = 0.7
	}
	callOpts = append(callOpts, llms.WithTemperature(temp))
	if opts.TopP > 0 {
		callOpts = append(callOpts, llms.WithTopP(opts.TopP))
	}
	if opts.RepetitionPenalty > 0 {
		callOpts = append(callOpts, llms.WithRepetitionPenalty(opts.RepetitionPenalty))
	}
	return callOpts
}

// Prewarm issues a minimal 1-token generate call against each model,
// best-effort: failures are swallowed since prewarming is an optimization,
// not a correctness requirement.
func (b *Backend) Prewarm(ctx context.Context, modelIDs []string) {
	for _, m := range modelIDs {
		_ = b.Generate(ctx, m, "ping", Options{MaxTokens: 1})
	}
}

// HealthCheck reports whether the backend process itself is reachable, via
// spec.md §6's documented `GET /api/tags` liveness probe — cheaper than a
// real generate call and doesn't require picking a model.
func (b *Backend) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ModelHealthCheck reports whether modelID answers within ctx's deadline.
// Either sentinel form ([ERROR ...] or [TIMEOUT_<s>s]) counts as unhealthy.
func (b *Backend) ModelHealthCheck(ctx context.Context, modelID string) bool {
	resp := b.Generate(ctx, modelID, "ok", Options{MaxTokens: 1})
	return !isSentinel(resp)
}

func isSentinel(s string) bool {
	return len(s) > 0 && s[0] == '['
}
