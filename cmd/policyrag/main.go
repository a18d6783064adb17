package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/procurekit/policyrag/internal/config"
	"github.com/procurekit/policyrag/internal/domain"
	"github.com/procurekit/policyrag/internal/extract"
	"github.com/procurekit/policyrag/internal/kv"
	kvMemory "github.com/procurekit/policyrag/internal/kv/memory"
	kvRedis "github.com/procurekit/policyrag/internal/kv/redis"
	logpkg "github.com/procurekit/policyrag/internal/logger"
	"github.com/procurekit/policyrag/internal/metrics"
	"github.com/procurekit/policyrag/internal/repository/embcache"
	"github.com/procurekit/policyrag/internal/store/sqlite"
	chiTransport "github.com/procurekit/policyrag/internal/transport/chi"
	openaiTransport "github.com/procurekit/policyrag/internal/transport/openai"
	healthuc "github.com/procurekit/policyrag/internal/usecase/health"
	ingestuc "github.com/procurekit/policyrag/internal/usecase/ingest"
	retrievaluc "github.com/procurekit/policyrag/internal/usecase/retrieval"
	workflowuc "github.com/procurekit/policyrag/internal/usecase/workflow"
	"github.com/procurekit/policyrag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting policyrag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_path", cfg.Storage.Path),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterProviderMetrics()
	metrics.RegisterPipelineMetrics()

	// Open the vector store
	store, err := sqlite.Open(cfg.Storage.Path, cfg.Embedding.Dimensions)
	if err != nil {
		logger.Fatal("Failed to open vector store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("Vector store not ready", zap.Error(err))
	}
	logger.Info("Vector store opened")

	// Embedding cache based on driver
	var cache kv.Store
	switch cfg.Cache.Driver {
	case "redis":
		cache, err = kvRedis.NewStore(kvRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create redis cache", zap.Error(err))
		}
	case "memory":
		cache = kvMemory.NewStore()
	case "none":
		// No cache — every embed hits the provider.
	default:
		logger.Fatal("Unknown cache driver", zap.String("driver", cfg.Cache.Driver))
	}
	if cache != nil {
		defer cache.Close()
	}

	// Build embedder chain — composition root
	docEmbedder := buildEmbedder(cfg, cfg.Embedding.DocumentInstruction, cache, logger)
	queryEmbedder := buildEmbedder(cfg, cfg.Embedding.QueryInstruction, cache, logger)
	logger.Info("Embedders created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Provider:    "openai",
		Logger:      logger,
	})

	// Create use case services
	ingestSvc := ingestuc.New(
		store, docEmbedder, extract.New(),
		cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, logger,
	)
	searchSvc := retrievaluc.New(store, queryEmbedder, retrievaluc.Options{
		TopK:            cfg.Retrieval.TopK,
		MinScore:        cfg.Retrieval.MinScore,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
	}, logger)
	workflowSvc := workflowuc.New(searchSvc, completer, logger)

	// Health service — cache is optional, nil disables its check
	var cachePinger healthuc.CachePinger
	if cache != nil {
		cachePinger = cache
	}
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(queryEmbedder), cachePinger)

	// Create chi server
	server := chiTransport.NewServer(ingestSvc, searchSvc, workflowSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// fullEmbedder is the combined contract the pipeline consumes: single-text
// embeds for queries, batch embeds for chunked documents.
type fullEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction
func buildEmbedder(cfg config.Config, instruction string, cache kv.Store, logger *zap.Logger) fullEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:       cfg.Embedding.APIKey,
		BaseURL:      cfg.Embedding.BaseURL,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
		MaxBatchSize: cfg.Embedding.MaxBatchSize,
		Timeout:      time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Provider:     "openai",
		Logger:       logger,
	})

	// Cached
	var embedder fullEmbedder = base
	if cache != nil {
		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		embedder = embcache.New(base, cache, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
