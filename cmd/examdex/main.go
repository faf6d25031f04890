package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/examdex/examdex/internal/config"
	dbRedis "github.com/examdex/examdex/internal/db/redis"
	"github.com/examdex/examdex/internal/domain/chunk"
	logpkg "github.com/examdex/examdex/internal/logger"
	"github.com/examdex/examdex/internal/metrics"
	"github.com/examdex/examdex/internal/repository/embcache"
	fragmentrepo "github.com/examdex/examdex/internal/repository/fragment"
	paperrepo "github.com/examdex/examdex/internal/repository/paper"
	searchrepo "github.com/examdex/examdex/internal/repository/search"
	chiTransport "github.com/examdex/examdex/internal/transport/chi"
	"github.com/examdex/examdex/internal/transport/ollama"
	openaiChat "github.com/examdex/examdex/internal/transport/openai"
	answeruc "github.com/examdex/examdex/internal/usecase/answer"
	healthuc "github.com/examdex/examdex/internal/usecase/health"
	ingestuc "github.com/examdex/examdex/internal/usecase/ingest"
	lookupuc "github.com/examdex/examdex/internal/usecase/lookup"
	queryuc "github.com/examdex/examdex/internal/usecase/query"
	retrievaluc "github.com/examdex/examdex/internal/usecase/retrieval"
	"github.com/examdex/examdex/internal/version"
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

	logger.Info("Starting examdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register domain metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterQueryMetrics()

	// Embedder chain: Ollama -> Cached. The cache sits outside the provider
	// so fallback vectors produced during an outage are never persisted.
	baseEmbedder := ollama.NewEmbedder(&ollama.Config{
		BaseURL:    cfg.Embedding.ServiceURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:     logger,
	})
	embedder := embcache.New(baseEmbedder, store, cfg.Embedding.Model, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	chat := openaiChat.NewChat(&openaiChat.Config{
		APIKey:    cfg.Model.APIKey,
		BaseURL:   cfg.Model.BaseURL,
		Model:     cfg.Model.Name,
		MaxTokens: cfg.Model.MaxTokens,
		Logger:    logger,
	})

	// Create repositories (domain-native, no adapters)
	fragRepo := fragmentrepo.New(store)
	papRepo := paperrepo.New(store)
	srchRepo := searchrepo.New(store)

	if err := fragRepo.EnsureIndex(ctx, cfg.Embedding.Dimensions, fragmentrepo.HNSWConfig{
		M:           cfg.Retrieval.HNSWM,
		EFConstruct: cfg.Retrieval.HNSWEFConstruct,
	}); err != nil {
		logger.Fatal("Failed to create fragment index", zap.Error(err))
	}
	if err := papRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to create document index", zap.Error(err))
	}

	// Create use case services
	chunker := chunk.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, cfg.Ingest.FragmentCap)
	ingestSvc := ingestuc.New(fragRepo, embedder, chunker, cfg.Embedding.Model, logger).
		WithConcurrency(cfg.Ingest.Concurrency).
		WithMinDocChars(cfg.Ingest.MinDocChars)
	retrievalSvc := retrievaluc.New(embedder, srchRepo, logger).
		WithTuning(cfg.Retrieval.TopK, cfg.Retrieval.MinSimilarity, cfg.Retrieval.GroupCap)
	answerSvc := answeruc.New(chat, logger)
	lookupSvc := lookupuc.New(papRepo)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	querySvc := queryuc.New(retrievalSvc, answerSvc, lookupSvc, rng, logger)

	healthSvc := healthuc.New(store, baseEmbedder)

	server := chiTransport.NewServer(querySvc, ingestSvc, papRepo, healthSvc, logger)
	handler := server.Router(cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
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
