package main

import (
	"context"
	"fmt"

	"github.com/compounding/growth-backend/internal/config"
	"github.com/compounding/growth-backend/internal/insight"
	"github.com/compounding/growth-backend/internal/metrics"
	"github.com/compounding/growth-backend/internal/storage"
	"github.com/compounding/growth-backend/pkg/logger"
)

// newInsightProvider wires the Gemini client behind a cache: Redis when an
// address is configured, process memory otherwise. The returned func releases
// the cache connection.
func newInsightProvider(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Collector) (insight.Provider, func(), error) {
	gemini := insight.NewGeminiClient(insight.GeminiConfig{
		APIKey:  cfg.Insight.APIKey,
		Model:   cfg.Insight.Model,
		BaseURL: cfg.Insight.BaseURL,
		Timeout: cfg.InsightTimeout(),
	}, log)
	if cfg.Insight.APIKey == "" {
		log.Warn("No insight API key configured, completed runs get the offline insight")
	}

	if cfg.Redis.Addr == "" {
		cache := storage.NewMemoryInsightCache(cfg.CacheTTL())
		return insight.NewCachingProvider(gemini, cache, log, m), func() {}, nil
	}

	cache, err := storage.NewRedisInsightCache(ctx, storage.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.CacheTTL())
	if err != nil {
		return nil, nil, fmt.Errorf("insight cache: %w", err)
	}
	log.Info("Connected to Redis", logger.F("addr", cfg.Redis.Addr))

	return insight.NewCachingProvider(gemini, cache, log, m), func() {
		if err := cache.Close(); err != nil {
			log.Warn("Failed to close Redis client", logger.F("error", err.Error()))
		}
	}, nil
}

// loadConfig reads the config file named by CONFIG_PATH plus env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
