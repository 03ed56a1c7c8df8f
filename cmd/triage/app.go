package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/config"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/persistence"
	"github.com/spec-kit/triage-engine/internal/provider"
	"github.com/spec-kit/triage-engine/internal/repository"
	"github.com/spec-kit/triage-engine/internal/semcache"
	"github.com/spec-kit/triage-engine/internal/service"
)

// app is the explicitly constructed application context shared by all
// commands: configuration, infrastructure handles, and the triage service.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	pg         *persistence.Postgres
	redis      *persistence.Redis
	cache      *semcache.Cache
	classifier provider.Classifier
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	triage     *service.TriageService
}

// newApp wires the full dependency graph. Configuration failures (empty
// category list, missing credentials) abort here, before any work is done.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	logger.Info("loaded classification categories", zap.Int("count", len(cfg.Triage.Categories)))

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)

	index, err := semcache.NewRedisIndex(ctx, redis.Client, cfg.Embedding.Dimensions, logger)
	if err != nil {
		pg.Close()
		redis.Close()
		return nil, fmt.Errorf("init vector index: %w", err)
	}
	embedder := semcache.NewOllamaEmbedder(cfg.Embedding.Host, cfg.Embedding.Model)
	cache := semcache.NewCache(embedder, index, logger)

	classifier, err := buildClassifier(cfg.Provider, logger)
	if err != nil {
		pg.Close()
		redis.Close()
		return nil, err
	}

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	metrics.Subscribe(dispatcher)

	triage := service.NewTriageService(cfg.Triage, service.TriageDependencies{
		TicketRepo: repository.NewTicketRepository(pg.PoolHandle()),
		Cache:      cache,
		Classifier: classifier,
		Dispatcher: dispatcher,
	}, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		pg:         pg,
		redis:      redis,
		cache:      cache,
		classifier: classifier,
		dispatcher: dispatcher,
		metrics:    metrics,
		triage:     triage,
	}, nil
}

// buildClassifier selects the provider implementation at process start.
func buildClassifier(cfg config.ProviderConfig, logger *zap.Logger) (provider.Classifier, error) {
	switch cfg.Kind {
	case "gemini":
		client, err := provider.NewGeminiClient(cfg.GeminiAPIKey, provider.GeminiOptions{
			Model:       cfg.GeminiModel,
			Timeout:     cfg.Timeout(),
			MaxAttempts: cfg.MaxAttempts,
			RetryBase:   cfg.RetryBase(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init gemini provider: %w", err)
		}
		logger.Info("classification provider initialized", zap.String("provider", "gemini"), zap.String("model", cfg.GeminiModel))
		return client, nil
	case "ollama":
		client := provider.NewOllamaClient(cfg.OllamaHost, provider.OllamaOptions{
			Model:       cfg.OllamaModel,
			Timeout:     cfg.Timeout(),
			MaxAttempts: cfg.MaxAttempts,
			RetryBase:   cfg.RetryBase(),
		}, logger)
		logger.Info("classification provider initialized", zap.String("provider", "ollama"), zap.String("model", cfg.OllamaModel))
		return client, nil
	case "none", "":
		logger.Warn("no classification provider configured; tickets will fail with Failed_No_AI")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.Kind)
	}
}

// Close releases infrastructure handles.
func (a *app) Close() {
	a.redis.Close()
	a.pg.Close()
	_ = a.logger.Sync()
}
