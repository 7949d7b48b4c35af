package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/Veraticus/parcel/internal/config"
	"github.com/Veraticus/parcel/internal/engine"
	"github.com/Veraticus/parcel/internal/executor"
	"github.com/Veraticus/parcel/internal/extract"
	"github.com/Veraticus/parcel/internal/llm"
	"github.com/Veraticus/parcel/internal/metrics"
	"github.com/Veraticus/parcel/internal/notify"
	"github.com/Veraticus/parcel/internal/proposal"
	"github.com/Veraticus/parcel/internal/service"
	"github.com/Veraticus/parcel/internal/storage"
	"github.com/Veraticus/parcel/internal/validate"
)

// app holds the wired collaborators shared by the commands.
type app struct {
	storage   *storage.SQLiteStorage
	inferrer  *llm.Inferrer
	resolver  *extract.Resolver
	validator *validate.Validator
	pipeline  *engine.Pipeline
	metrics   *metrics.Collectors
	registry  *prometheus.Registry
	cfg       config.Config
}

// loadConfig reads the immutable configuration from viper.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// initStorage opens the record database and applies migrations.
func initStorage(ctx context.Context, cfg config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initInferrer builds the inference client. A nil inferrer means every
// request takes the pattern path.
func initInferrer(cfg config.Config) *llm.Inferrer {
	if p := strings.ToLower(cfg.LLM.Provider); p == "" || p == "none" {
		slog.Info("Inference disabled, using pattern extraction only")
		return nil
	}

	inferrer, err := llm.NewInferrer(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		MaxRetries:  cfg.LLM.MaxRetries,
		CacheTTL:    cfg.LLM.CacheTTL,
		RateLimit:   cfg.LLM.RateLimit,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, slog.Default())
	if err != nil {
		slog.Warn("Inference unavailable, using pattern extraction only",
			"provider", cfg.LLM.Provider,
			"error", err)
		return nil
	}
	return inferrer
}

// newApp wires the pipeline. Extra notifiers receive proposal and execution
// events alongside the log and metrics.
func newApp(ctx context.Context, notifiers ...service.Notifier) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)

	resolver, inferrer, err := newResolver(cfg, collectors)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	validator := validate.New(validate.DefaultPolicy())

	ops := proposal.NewStore(
		proposal.WithArchiver(store),
		proposal.WithObserver(collectors),
		proposal.WithRetention(cfg.Pipeline.Retention),
		proposal.WithSweepInterval(cfg.Pipeline.SweepInterval),
		proposal.WithLogger(slog.Default()),
	)

	fanout := notify.Multi{notify.NewLog(slog.Default()), collectors}
	fanout = append(fanout, notifiers...)

	pipeline := engine.New(resolver, validator,
		proposal.NewBuilder(cfg.Pipeline.ProposalTTL),
		ops,
		executor.New(store, slog.Default()),
		engine.Config{
			ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
			HistoryLimit:        cfg.Pipeline.ContextTurns,
		},
		engine.WithNotifier(fanout),
		engine.WithLogger(slog.Default()),
	)

	return &app{
		storage:   store,
		inferrer:  inferrer,
		resolver:  resolver,
		validator: validator,
		pipeline:  pipeline,
		metrics:   collectors,
		registry:  registry,
		cfg:       cfg,
	}, nil
}

// newResolver builds the extraction resolver from configuration.
func newResolver(cfg config.Config, rec extract.Recorder) (*extract.Resolver, *llm.Inferrer, error) {
	pattern, err := extract.NewPatternExtractor(extract.DefaultPatterns(), cfg.Pipeline.PatternConfidence)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile patterns: %w", err)
	}

	inferrer := initInferrer(cfg)
	var primary extract.Extractor
	if inferrer != nil {
		primary = extract.NewInferenceExtractor(inferrer, slog.Default())
	}

	opts := extract.Options{
		Timeout:           cfg.Pipeline.InferenceTimeout,
		BreakerCooldown:   cfg.Pipeline.BreakerCooldown,
		BreakerThreshold:  cfg.Pipeline.BreakerThreshold,
		PatternConfidence: cfg.Pipeline.PatternConfidence,
	}
	return extract.NewResolver(primary, pattern, opts, slog.Default(), extract.WithRecorder(rec)), inferrer, nil
}

// Close releases the pipeline, inference client and database.
func (a *app) Close() {
	a.pipeline.Close()
	if a.inferrer != nil {
		a.inferrer.Close()
	}
	if err := a.storage.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}
