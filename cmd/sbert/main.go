package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/sbert-service/internal/api"
	"github.com/nidhogg/sbert-service/internal/config"
	"github.com/nidhogg/sbert-service/internal/embedding"
	"github.com/nidhogg/sbert-service/internal/metrics"
	"github.com/nidhogg/sbert-service/internal/service"
	"go.uber.org/zap"
)

// loadTimeout bounds the startup probe against the inference backend.
const loadTimeout = 2 * time.Minute

func main() {
	_ = godotenv.Load()

	zcfg := zap.NewProductionConfig()
	logger, _ := zcfg.Build()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Server.LogLevel); err == nil {
		zcfg.Level.SetLevel(lvl.Level())
	} else {
		logger.Warn("invalid log level, using info", zap.String("level", cfg.Server.LogLevel))
	}

	// Build embedding provider
	expectedDim := cfg.Embedding.Dimension
	if expectedDim == 0 {
		expectedDim = embedding.KnownDimension(cfg.Embedding.Model)
	}
	embCfg := embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: expectedDim,
	}
	provider, err := embedding.New(embCfg)
	if err != nil {
		logger.Fatal("failed to create embedding provider", zap.Error(err))
	}

	var redisCache *embedding.RedisCache
	switch cfg.Cache.Type {
	case "memory":
		mc, err := embedding.NewMemoryCache(cfg.Cache.Size)
		if err != nil {
			logger.Fatal("failed to create memory cache", zap.Error(err))
		}
		provider = embedding.NewCachedProvider(provider, mc, embedding.CacheNamespace(embCfg), logger)
		logger.Info("Embedding cache enabled", zap.String("type", "memory"), zap.Int("size", cfg.Cache.Size))
	case "redis":
		rc, err := embedding.NewRedisCache(context.Background(), cfg.Cache.RedisURL, cfg.CacheTTL())
		if err != nil {
			logger.Warn("Redis unavailable, running without embedding cache", zap.Error(err))
			break
		}
		redisCache = rc
		provider = embedding.NewCachedProvider(provider, rc, embedding.CacheNamespace(embCfg), logger)
		logger.Info("Embedding cache enabled", zap.String("type", "redis"), zap.Duration("ttl", cfg.CacheTTL()))
	}

	// Load the model once; it is shared by every request.
	loadCtx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	model, err := embedding.Load(loadCtx, provider, cfg.Embedding.Model, expectedDim, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to load model",
			zap.String("model", cfg.Embedding.Model),
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("endpoint", cfg.Embedding.Endpoint),
			zap.Error(err))
	}

	// Build HTTP handler
	svc := service.New(model, logger)
	handler := api.NewHandler(svc, metrics.New(), logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting SBERT service", zap.String("addr", srv.Addr), zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down SBERT service...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown did not complete cleanly", zap.Error(err))
	}
	if redisCache != nil {
		redisCache.Close()
	}
}
