package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/adapter"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/companion"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/config"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/consensus"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/domain"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/embedding"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/experts"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/grounding"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/heavygate"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/httpapi"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/mome"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/semcache"
	"github.com/meienjalbert-bot/hub-nexus-cortex/internal/telemetry"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("⚠️  no .env file found, using system environment variables")
	} else {
		log.Info().Msg("✅ loaded .env file")
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log.Info().Msg("✓ config loaded")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Str("addr", cfg.Redis.Address).Msg("✓ redis connected")

	backend := adapter.New(cfg.LLM.Endpoint)
	log.Info().Str("endpoint", cfg.LLM.Endpoint).Msg("✓ ollama backend ready")

	gate := heavygate.New(cfg.HeavyGate.Capacity)
	log.Info().Int64("capacity", cfg.HeavyGate.Capacity).Msg("✓ heavy-model gate ready")

	builder := grounding.New("configs/glossary.yaml")
	engine := consensus.New(backend, gate, builder)
	log.Info().Msg("✓ consensus engine ready")

	var embedder embedding.Embedder
	if cfg.SemanticCache.Enabled {
		if cfg.SemanticCache.APIKey == "" {
			log.Warn().Msg("⚠️  semantic cache enabled but SEMANTIC_CACHE_API_KEY not set, falling back to exact-match cache only")
		} else {
			embedder = embedding.New(openai.NewClient(cfg.SemanticCache.APIKey))
			log.Info().Msg("✓ embedder ready")
		}
	} else {
		log.Info().Msg("ℹ️  semantic cache disabled, using exact-match cache only")
	}

	cache := semcache.New(redisClient, embedder, semcache.Options{
		SimilarityThreshold: cfg.SemanticCache.SimilarityThreshold,
		MaxScan:             cfg.SemanticCache.MaxScan,
		TTL:                 cfg.Redis.CacheTTL,
	})

	lexical := experts.Lexical{Config: experts.MeiliConfig{Host: cfg.Search.MeiliHost, Key: cfg.Search.MeiliKey, Index: cfg.Search.Index}}
	temporal := experts.Temporal{Config: experts.MeiliConfig{Host: cfg.Search.MeiliHost, Key: cfg.Search.MeiliKey, Index: cfg.Search.Index}}

	deps := mome.Dependencies{
		Lexical:  lexical,
		Temporal: temporal,
	}
	if embedder != nil {
		qdrantCfg := experts.QdrantConfig{Host: cfg.Search.QdrantHost, Collection: cfg.Search.Collection}
		deps.Semantic = experts.EmbeddingSemantic{Config: qdrantCfg, Embedder: embedder}
		deps.Graph = experts.EmbeddingGraph{Config: qdrantCfg, Embedder: embedder}
	} else {
		log.Warn().Msg("⚠️  no embedder configured, semantic and graph experts disabled")
	}

	router := mome.New(deps, domain.DefaultHeuristics())
	log.Info().Msg("✓ mome router ready")

	journal := companion.New(redisClient)
	metrics := telemetry.New(prometheus.DefaultRegisterer)
	log.Info().Msg("✓ telemetry registered")

	server := &httpapi.Server{
		Consensus:            engine,
		Router:               router,
		Cache:                cache,
		Journal:              journal,
		Metrics:              metrics,
		Backend:              backend,
		Redis:                redisClient,
		Gate:                 gate,
		MeiliHost:            cfg.Search.MeiliHost,
		QdrantHost:           cfg.Search.QdrantHost,
		ModesPath:            "configs/consensus_models.yaml",
		SemanticCacheEnabled: embedder != nil,
		FingerprintF:         func() string { return "v1" },
	}

	gin.SetMode(gin.ReleaseMode)
	r := httpapi.NewRouter(server, corsMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("port", cfg.Server.Port).Msg("🚀 nexus orchestrator running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func corsMiddleware() gin.HandlerFunc {
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	var allowedOrigins []string
	if allowedOriginsEnv != "" {
		allowedOrigins = strings.Split(allowedOriginsEnv, ",")
		for i := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
		}
	} else {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowed := false
		for _, o := range allowedOrigins {
			if origin == o {
				allowed = true
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		if !allowed {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
