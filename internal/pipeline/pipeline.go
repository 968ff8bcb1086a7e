// Package pipeline orchestrates one discovery run: build queries from a
// profile, discover candidate URLs, fetch and extract each one
// sequentially, and persist the results into the review queue.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scholarpath/scout-cli/internal/dedup"
	"github.com/scholarpath/scout-cli/internal/discovery"
	"github.com/scholarpath/scout-cli/internal/extract"
	"github.com/scholarpath/scout-cli/internal/model"
	"github.com/scholarpath/scout-cli/internal/query"
	"github.com/scholarpath/scout-cli/internal/store"
)

// Fetcher retrieves and cleans one page; nil means the page was
// unusable and the URL is skipped.
type Fetcher interface {
	Fetch(ctx context.Context, url string) *model.FetchedPage
}

// Extractor converts one fetched page into an extraction result.
type Extractor interface {
	Extract(ctx context.Context, page *model.FetchedPage) extract.Result
}

// Discoverer turns queries into new candidate URLs.
type Discoverer interface {
	Discover(ctx context.Context, queries []string, idx *dedup.Index) discovery.Results
}

// Pipeline runs the discovery ingestion flow for one profile.
type Pipeline struct {
	store      store.Store
	discoverer Discoverer
	fetcher    Fetcher
	extractor  Extractor
	limiter    *rate.Limiter
}

// New creates a Pipeline. Every collaborator is required; a nil one is
// a configuration fault surfaced immediately rather than mid-run.
func New(
	st store.Store,
	disc Discoverer,
	fetch Fetcher,
	ext Extractor,
	limiter *rate.Limiter,
) (*Pipeline, error) {
	switch {
	case st == nil:
		return nil, eris.New("pipeline: store not configured")
	case disc == nil:
		return nil, eris.New("pipeline: discovery source not configured")
	case fetch == nil:
		return nil, eris.New("pipeline: fetcher not configured")
	case ext == nil:
		return nil, eris.New("pipeline: extractor not configured")
	}
	if limiter == nil {
		// One item every 500ms keeps the metered search and extraction
		// APIs within their burst limits.
		limiter = rate.NewLimiter(rate.Every(500*time.Millisecond), 1)
	}
	return &Pipeline{
		store:      st,
		discoverer: disc,
		fetcher:    fetch,
		extractor:  ext,
		limiter:    limiter,
	}, nil
}

// Run executes one discovery run. It always returns statistics, even
// when individual items failed; only store-level faults while creating
// the run record abort early. The caller bounds the whole run with ctx.
func (p *Pipeline) Run(ctx context.Context, profile model.Profile) (*model.RunStats, error) {
	log := zap.L().With(zap.String("city", profile.City), zap.String("state", profile.State))

	queries := query.Build(profile)
	stats := &model.RunStats{Queried: len(queries)}
	if len(queries) == 0 {
		return stats, nil
	}

	run, err := p.store.CreateRun(ctx, profile)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting discovery run", zap.Int("queries", len(queries)))

	idx, err := dedup.NewIndex(ctx, p.store)
	if err != nil {
		p.failRun(ctx, run.ID, err)
		return nil, eris.Wrap(err, "pipeline: warm dedup index")
	}

	found := p.discoverer.Discover(ctx, queries, idx)
	stats.URLsDiscovered = found.Raw
	stats.URLsNewToDB = len(found.URLs)
	stats.Errors = append(stats.Errors, found.Errs...)

	for _, d := range found.URLs {
		if err := p.limiter.Wait(ctx); err != nil {
			stats.Errors = append(stats.Errors, model.RunError{URL: d.URL, Message: err.Error()})
			break
		}
		p.processItem(ctx, d, stats, log)
	}

	if err := p.store.CompleteRun(ctx, run.ID, stats); err != nil {
		log.Warn("pipeline: failed to record run completion", zap.Error(err))
	}

	log.Info("pipeline: run complete",
		zap.Int("discovered", stats.URLsDiscovered),
		zap.Int("fetched", stats.PagesFetched),
		zap.Int("queued", stats.Queued),
		zap.Int("skipped_deadline", stats.SkippedDeadline),
		zap.Int("errors", len(stats.Errors)),
	)
	return stats, nil
}

// processItem handles one discovered URL end to end. Failures are
// appended to stats.Errors; one bad URL never sinks the run.
func (p *Pipeline) processItem(ctx context.Context, d model.DiscoveredURL, stats *model.RunStats, log *zap.Logger) {
	target := d.OriginalURL
	if target == "" {
		target = "https://" + d.URL
	}
	page := p.fetcher.Fetch(ctx, target)
	if page == nil {
		stats.Errors = append(stats.Errors, model.RunError{
			URL:     d.URL,
			Query:   d.SourceQuery,
			Message: "fetch failed",
		})
		return
	}
	stats.PagesFetched++

	res := p.extractor.Extract(ctx, page)
	if res.Kind == extract.OutcomeDropped {
		stats.SkippedDeadline++
		log.Debug("pipeline: dropped stale record",
			zap.String("url", d.URL),
			zap.String("reason", res.DropReason),
		)
		return
	}
	if res.Data != nil {
		stats.Extracted++
	}

	status := model.StatusPending
	if res.Kind == extract.OutcomeNeedsReview {
		status = model.StatusNeedsReview
	}

	pending := &model.PendingScholarship{
		SourceURL:       d.URL,
		RawPageText:     page.Text,
		Extracted:       res.Data,
		ExtractionModel: res.Model,
		Confidence:      res.Confidence,
		Status:          status,
	}
	if err := p.store.InsertPending(ctx, pending); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another run persisted this URL after our index was warmed.
			log.Debug("pipeline: url persisted by concurrent run", zap.String("url", d.URL))
			return
		}
		stats.Errors = append(stats.Errors, model.RunError{
			URL:     d.URL,
			Query:   d.SourceQuery,
			Message: err.Error(),
		})
		return
	}
	stats.Queued++
}

func (p *Pipeline) failRun(ctx context.Context, runID string, cause error) {
	if err := p.store.FailRun(ctx, runID, cause.Error()); err != nil {
		zap.L().Warn("pipeline: failed to record run failure", zap.String("run_id", runID), zap.Error(err))
	}
}
