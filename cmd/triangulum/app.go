package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nstogner/triangulum/pkg/backend"
	"github.com/nstogner/triangulum/pkg/backoff"
	"github.com/nstogner/triangulum/pkg/cache"
	"github.com/nstogner/triangulum/pkg/cache/sqlite"
	"github.com/nstogner/triangulum/pkg/config"
	"github.com/nstogner/triangulum/pkg/controller"
	"github.com/nstogner/triangulum/pkg/model/gemini"
	"github.com/nstogner/triangulum/pkg/source"
	"github.com/nstogner/triangulum/pkg/tools"
)

// app holds everything built at startup. The tool registry is created here
// once and only read afterwards.
type app struct {
	cfg        *config.Config
	cache      cache.Store
	registry   *tools.Registry
	oracle     *gemini.Oracle
	controller *controller.Controller
}

func newApp(cmd *cobra.Command, f *flags) (*app, error) {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return nil, err
	}

	store, err := newCache(cmd.Context(), cfg.Cache)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewDefault(toolOptions(cfg, store))
	if err != nil {
		closeCache(store)
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	oracle, err := gemini.New(cmd.Context(), gemini.Config{
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		Mode:        gemini.Mode(cfg.Gemini.Mode),
		Temperature: cfg.Gemini.Temperature,
	})
	if err != nil {
		closeCache(store)
		return nil, fmt.Errorf("initializing Gemini: %w", err)
	}

	ctrl := controller.New(oracle, registry, controller.Config{
		MaxIterations:   cfg.Agent.MaxIterations,
		MinAnswerLength: cfg.Agent.MinAnswerLength,
		RateLimit: backoff.Policy{
			Retries:   cfg.Agent.RateLimitRetries,
			BaseDelay: cfg.Agent.RateLimitBaseDelay,
		},
	})

	slog.Info("Triangulum ready", "model", oracle.Model(), "mode", cfg.Gemini.Mode, "tools", registry.Names())
	return &app{
		cfg:        cfg,
		cache:      store,
		registry:   registry,
		oracle:     oracle,
		controller: ctrl,
	}, nil
}

func (a *app) Close() {
	closeCache(a.cache)
}

func toolOptions(cfg *config.Config, store cache.Store) tools.Options {
	s := cfg.Sources
	disabled := map[string]bool{
		source.NameWikipedia:  !s.Wikipedia.Enabled,
		source.NameDuckDuckGo: !s.DuckDuckGo.Enabled,
		source.NameScholar:    !s.Scholar.Enabled,
		source.NameArXiv:      !s.ArXiv.Enabled,
		source.NamePubMed:     !s.PubMed.Enabled,
	}
	return tools.Options{
		Source: source.Config{
			MaxResults:    s.MaxResults,
			Policy:        backoff.Policy{Retries: s.Retries, BaseDelay: s.BaseDelay},
			SummaryChars:  s.SummaryChars,
			RecencyFilter: s.RecencyFilter,
			Cache:         store,
		},
		HTTP:          backend.Options{Timeout: s.Timeout},
		Disabled:      disabled,
		ScholarAPIKey: s.Scholar.APIKey,
		PubMedEmail:   s.PubMed.Email,
		PubMedAPIKey:  s.PubMed.APIKey,
	}
}

// newCache returns nil when caching is off. A sqlite cache drops the rows
// that expired since the last run.
func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "sqlite":
		s, err := sqlite.New(cfg.Path, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		if n, err := s.Prune(ctx); err != nil {
			slog.Warn("Failed to prune cache", "error", err)
		} else if n > 0 {
			slog.Debug("Pruned cache", "rows", n)
		}
		return s, nil
	case "memory", "":
		return cache.NewMemory(cfg.Size, cfg.TTL), nil
	}
	return nil, errors.New("unknown cache backend " + cfg.Backend)
}

func closeCache(s cache.Store) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		slog.Warn("Failed to close cache", "error", err)
	}
}
