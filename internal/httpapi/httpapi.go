// Package httpapi wires the gin HTTP surface described in spec.md §6 onto
// the internal packages, grounded on src/handlers/inference_handler.go for
// the handler shape (bind request, check cache, call the core, map
// errors to status codes) and on cmd/main/main.go for route grouping.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/adapter"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/companion"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/config"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/consensus"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/domain"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/heavygate"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/mome"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/scheduler"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/semcache"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/telemetry"
)

// Server bundles every dependency the HTTP handlers call through to.
type Server struct {
	Consensus           *consensus.Engine
	Router              *mome.Router
	Cache               *semcache.Cache
	Journal             *companion.Journal
	Metrics             *telemetry.Metrics
	Backend             *adapter.Backend
	Redis               *redis.Client
	Gate                *heavygate.Gate
	MeiliHost           string
	QdrantHost          string
	ModesPath           string
	SemanticCacheEnabled bool
	FingerprintF        func() string
}

// NewRouter builds the gin engine with every route from spec.md §6. Extra
// middleware (e.g. a caller-supplied CORS policy) must be passed in here
// rather than added to the returned engine afterward, since gin snapshots
// a route's middleware chain at registration time.
func NewRouter(s *Server, middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(gin.Recovery())
	for _, m := range middleware {
		r.Use(m)
	}

	r.GET("/health", s.handleHealth)
	r.GET("/route", s.handleRoute)
	r.POST("/vote", s.handleVote)
	r.GET("/schedule/predict", s.handleSchedulePredict)
	r.POST("/models/swap", s.handleModelsSwap)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// handleHealth reports liveness of every external dependency this process
// talks to, per spec.md §6. Each probe is bounded to a short timeout so a
// single wedged backend cannot hang the health check itself; a dependency
// that is not configured for this process reports unhealthy rather than
// being silently omitted.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	meiliOK := s.pingHTTP(ctx, s.MeiliHost, "/health")
	qdrantOK := s.pingHTTP(ctx, s.QdrantHost, "/healthz")
	llmOK := s.pingLLM(ctx)
	cacheOK := s.pingRedis(ctx)

	deps := gin.H{
		"meili":  meiliOK,
		"qdrant": qdrantOK,
		"llm":    llmOK,
		"cache":  cacheOK,
	}

	status := "ok"
	if !meiliOK || !qdrantOK || !llmOK || !cacheOK {
		status = "degraded"
	}

	suggestedMode := string(domain.ModePrecision)
	if status != "ok" {
		suggestedMode = string(domain.ModeInteractive)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"deps":           deps,
		"suggested_mode": suggestedMode,
	})
}

func (s *Server) pingRedis(ctx context.Context) bool {
	if s.Redis == nil {
		return false
	}
	return s.Redis.Ping(ctx).Err() == nil
}

func (s *Server) pingLLM(ctx context.Context) bool {
	if s.Backend == nil {
		return false
	}
	return s.Backend.HealthCheck(ctx)
}

func (s *Server) pingHTTP(ctx context.Context, host, path string) bool {
	if host == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+path, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

type routeRequest struct {
	Query string `form:"q" binding:"required"`
	K     int    `form:"k"`
}

func (s *Server) handleRoute(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.K <= 0 {
		req.K = 5
	}

	if entry, ok := s.Cache.GetSemantic(c.Request.Context(), req.Query); ok {
		s.Metrics.CacheHits.WithLabelValues("semantic", "hit").Inc()
		c.JSON(http.StatusOK, domain.RouteResponse{
			Answer:        entry.Answer,
			Sources:       entry.Sources,
			ExpertsUsed:   entry.ExpertsUsed,
			QueryType:     entry.QueryType,
			FusionMethod:  entry.FusionMethod,
			FusionWeights: entry.FusionWeights,
		})
		return
	}
	s.Metrics.CacheHits.WithLabelValues("semantic", "miss").Inc()

	resp, err := s.Router.Route(c.Request.Context(), req.Query, req.K)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.Cache.SetSemantic(c.Request.Context(), req.Query, domain.CacheEntry{
		Answer:        resp.Answer,
		Sources:       resp.Sources,
		ExpertsUsed:   resp.ExpertsUsed,
		QueryType:     resp.QueryType,
		FusionMethod:  resp.FusionMethod,
		FusionWeights: resp.FusionWeights,
	})
	s.Metrics.RecordCost(telemetry.EstimateCost(req.Query, resp.Answer, false, s.SemanticCacheEnabled))
	if s.Journal != nil {
		s.Journal.Record(c.Request.Context(), "route", req.Query, resp.Answer, false)
	}

	c.JSON(http.StatusOK, resp)
}

type voteRequest struct {
	Prompt     string `json:"prompt" binding:"required"`
	Context    string `json:"context"`
	Mode       string `json:"mode"`
	ConfigPath string `json:"config_path"`
}

func (s *Server) handleVote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Mode == "" {
		req.Mode = string(domain.ModePrecision)
	}
	if req.ConfigPath == "" {
		req.ConfigPath = s.ModesPath
	}

	fingerprint := ""
	if s.FingerprintF != nil {
		fingerprint = s.FingerprintF()
	}
	key := semcache.ExactKey(req.Prompt, req.Context, req.Mode, fingerprint)

	if outcome, ok := s.Cache.GetExact(c.Request.Context(), key); ok {
		s.Metrics.CacheHits.WithLabelValues("exact", "hit").Inc()
		outcome.CacheHit = true
		c.JSON(http.StatusOK, outcome)
		return
	}
	s.Metrics.CacheHits.WithLabelValues("exact", "miss").Inc()

	cfg, err := config.LoadModeConfig(req.ConfigPath, req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := s.Consensus.Vote(c.Request.Context(), req.Prompt, req.Context, domain.Mode(req.Mode), *cfg)
	s.Cache.SetExact(c.Request.Context(), key, outcome)
	s.Metrics.VoteOutcomes.WithLabelValues(string(outcome.Status), req.Mode).Inc()
	if s.Gate != nil {
		gm := s.Gate.Metrics()
		s.Metrics.ObserveGateMetrics(gm.InUse, gm.Waiters)
	}
	s.Metrics.RecordCost(telemetry.EstimateCost(req.Prompt, outcome.FinalAnswer, voteUsedHeavyModel(outcome), s.SemanticCacheEnabled))
	if s.Journal != nil {
		s.Journal.Record(c.Request.Context(), "vote", req.Prompt, outcome.FinalAnswer, false)
	}

	c.JSON(http.StatusOK, outcome)
}

// voteUsedHeavyModel reports whether any successful committee vote came
// from a heavy model, for cost-estimation purposes.
func voteUsedHeavyModel(outcome domain.VoteOutcome) bool {
	for _, v := range outcome.Votes {
		if v.Success && heavygate.IsHeavy(v.Model) {
			return true
		}
	}
	return false
}

func (s *Server) handleSchedulePredict(c *gin.Context) {
	c.JSON(http.StatusOK, scheduler.Predict())
}

type modelsSwapRequest struct {
	Prewarm []string `json:"prewarm" binding:"required"`
}

// handleModelsSwap pre-warms the given model IDs against the Ollama backend
// so the next vote() call that needs them doesn't pay first-load latency. Matches spec.md's documented /models/swap contract exactly.
func (s *Server) handleModelsSwap(c *gin.Context) {
	var req modelsSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.Backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Backend.Prewarm(ctx, req.Prewarm)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "models": req.Prewarm})
}
