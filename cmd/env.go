package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/scholarpath/scout-cli/internal/discovery"
	"github.com/scholarpath/scout-cli/internal/extract"
	"github.com/scholarpath/scout-cli/internal/fetcher"
	"github.com/scholarpath/scout-cli/internal/pipeline"
	"github.com/scholarpath/scout-cli/internal/review"
	"github.com/scholarpath/scout-cli/internal/store"
	anthropicpkg "github.com/scholarpath/scout-cli/pkg/anthropic"
	"github.com/scholarpath/scout-cli/pkg/perplexity"
)

// env bundles the wired subsystems shared by the run/serve/review commands.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Review   *review.Service
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// initStore opens the configured database backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv wires the full pipeline. Missing credentials surface here,
// before any work is attempted.
func initEnv(ctx context.Context) (*env, error) {
	if cfg.Perplexity.Key == "" {
		return nil, eris.New("perplexity API key not configured (SCOUT_PERPLEXITY_KEY)")
	}
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key not configured (SCOUT_ANTHROPIC_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	searchClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)
	disc, err := discovery.New(searchClient, discovery.Config{
		Model:     cfg.Perplexity.Model,
		MaxURLs:   cfg.Discovery.MaxURLsPerRun,
		Blocklist: cfg.Discovery.DomainBlocklist,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	fetch := fetcher.New(fetcher.Config{
		Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		UserAgent: cfg.Fetch.UserAgent,
		MaxChars:  cfg.Fetch.MaxChars,
		MinChars:  cfg.Fetch.MinChars,
	})

	engine, err := extract.New(anthropicpkg.NewClient(cfg.Anthropic.Key), extract.Config{
		Model:               cfg.Anthropic.Model,
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.Pipeline.ItemsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Pipeline.ItemsPerSecond), 1)
	}

	p, err := pipeline.New(st, disc, fetch, engine, limiter)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &env{
		Store:    st,
		Pipeline: p,
		Review:   review.NewService(st),
	}, nil
}
