package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/filmgrid/enrich-cli/internal/cache"
	"github.com/filmgrid/enrich-cli/internal/ratelimit"
	"github.com/filmgrid/enrich-cli/internal/resolver"
	"github.com/filmgrid/enrich-cli/internal/source"
	"github.com/filmgrid/enrich-cli/internal/store"
)

// Env bundles the wired engine and its collaborators for one command
// invocation. No global engine state exists outside this struct.
type Env struct {
	Repo     store.Repository
	Sources  *source.Config
	Registry *source.Registry
	Cache    *cache.Cache
	Limiter  *ratelimit.Limiter
	Engine   *resolver.Engine
}

// Close releases the environment's resources.
func (e *Env) Close() {
	if e.Repo != nil {
		if err := e.Repo.Close(); err != nil {
			zap.L().Warn("store close failed", zap.Error(err))
		}
	}
}

// initEngine builds the full engine stack from configuration: store,
// source registry, cache, rate limiter, resolver.
func initEngine(ctx context.Context) (*Env, error) {
	repo, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	sources, err := loadSources()
	if err != nil {
		repo.Close()
		return nil, err
	}

	registry := source.NewRegistry()
	if cfg.Sources.Fixtures != "" {
		if err := source.LoadFixtures(cfg.Sources.Fixtures, sources, registry); err != nil {
			repo.Close()
			return nil, err
		}
		zap.L().Info("loaded fixture sources", zap.Strings("sources", registry.Names()))
	}

	limiter := ratelimit.New(cfg.RateLimit.MaxInFlight, cfg.RateLimit.DefaultRPS, cfg.RateLimit.DefaultBurst)
	for _, spec := range sources.Sources {
		limiter.Configure(spec.Name, spec.Rate.RPS, spec.Rate.Burst)
	}

	c := cache.New(repo)

	engine := resolver.New(resolver.Config{
		Registry:           registry,
		Cache:              c,
		Limiter:            limiter,
		Sources:            sources,
		Repository:         repo,
		Thresholds:         cfg.Conflict,
		StopEarlyThreshold: cfg.Resolver.StopEarlyThreshold,
		ConfidenceFloor:    cfg.Resolver.ConfidenceFloor,
		RetryBackoff:       time.Duration(cfg.Resolver.RetryBackoffSecs) * time.Second,
	})

	return &Env{
		Repo:     repo,
		Sources:  sources,
		Registry: registry,
		Cache:    c,
		Limiter:  limiter,
		Engine:   engine,
	}, nil
}

func openStore(ctx context.Context) (store.Repository, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		repo, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	case "postgres":
		repo, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// loadSources reads sources.yaml; a missing file falls back to defaults
// so fixture-driven runs work without one.
func loadSources() (*source.Config, error) {
	if _, err := os.Stat(cfg.Sources.Path); os.IsNotExist(err) {
		zap.L().Debug("no sources config file, using defaults", zap.String("path", cfg.Sources.Path))
		return source.NewDefaultConfig(), nil
	}
	return source.LoadConfig(cfg.Sources.Path)
}
