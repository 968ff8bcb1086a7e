// Package discovery turns profile-derived search queries into candidate
// scholarship URLs using a grounded search backend. Results are
// deduplicated against the catalog, the pending queue, and the current
// run before anything is fetched.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scholarpath/scout-cli/internal/dates"
	"github.com/scholarpath/scout-cli/internal/dedup"
	"github.com/scholarpath/scout-cli/internal/model"
	"github.com/scholarpath/scout-cli/pkg/perplexity"
)

const defaultMaxURLs = 30

// Config tunes the discovery source.
type Config struct {
	Model     string   `yaml:"model" mapstructure:"model"`
	MaxURLs   int      `yaml:"max_urls" mapstructure:"max_urls"`
	Blocklist []string `yaml:"blocklist" mapstructure:"blocklist"`
}

// Source issues grounded search queries and collects new candidate URLs.
type Source struct {
	client  perplexity.Client
	cfg     Config
	nowFunc func() time.Time
}

// Option configures the source.
type Option func(*Source)

// WithNowFunc overrides the clock used for pre-fetch staleness checks.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Source) {
		s.nowFunc = now
	}
}

// New creates a discovery Source. A nil client is a configuration fault.
func New(client perplexity.Client, cfg Config, opts ...Option) (*Source, error) {
	if client == nil {
		return nil, eris.New("discovery: search client not configured")
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = defaultMaxURLs
	}
	s := &Source{
		client:  client,
		cfg:     cfg,
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// searchHit is the shape each discovery result must match.
type searchHit struct {
	URL     string `json:"url"`
	Context string `json:"context"`
}

// Results is the outcome of one discovery pass across all queries.
type Results struct {
	URLs []model.DiscoveredURL // new to the index, in discovery order
	Raw  int                   // total hits returned before dedup and staleness filtering
	Errs []model.RunError
}

// Discover runs every query against the search backend and returns
// candidate URLs not yet known to the index, capped globally across the
// whole run. Per-query failures are collected, not fatal; remaining
// queries still run.
func (s *Source) Discover(ctx context.Context, queries []string, idx *dedup.Index) Results {
	var out []model.DiscoveredURL
	var raw int
	var errs []model.RunError
	now := s.nowFunc()

	for _, q := range queries {
		if len(out) >= s.cfg.MaxURLs {
			break
		}

		hits, err := s.search(ctx, q)
		if err != nil {
			zap.L().Warn("discovery: query failed", zap.String("query", q), zap.Error(err))
			errs = append(errs, model.RunError{Query: q, Message: err.Error()})
			continue
		}
		raw += len(hits)

		for _, h := range hits {
			if len(out) >= s.cfg.MaxURLs {
				break
			}
			normalized, err := dedup.Normalize(h.URL)
			if err != nil {
				zap.L().Debug("discovery: skipping unparseable url", zap.String("url", h.URL))
				continue
			}
			if s.blocked(normalized) {
				continue
			}
			if idx.Seen(normalized) {
				continue
			}
			// Drop before fetch when the result snippet already shows a
			// deadline too close to act on.
			if dl := dates.Extract(h.Context); dl != nil && dates.TooSoon(*dl, now) {
				zap.L().Debug("discovery: dropping stale candidate",
					zap.String("url", h.URL),
					zap.Time("deadline", *dl),
				)
				continue
			}
			idx.Mark(normalized)
			out = append(out, model.DiscoveredURL{
				URL:         normalized,
				OriginalURL: h.URL,
				SourceQuery: q,
				Context:     h.Context,
			})
		}
	}

	return Results{URLs: out, Raw: raw, Errs: errs}
}

func (s *Source) search(ctx context.Context, query string) ([]searchHit, error) {
	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []perplexity.Message{
			{Role: "system", Content: s.systemPrompt()},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "discovery: search request")
	}

	raw := cleanJSONArray(resp.Text())
	if raw == "" {
		return nil, eris.New("discovery: no JSON array in response")
	}

	var hits []searchHit
	if err := json.Unmarshal([]byte(raw), &hits); err != nil {
		return nil, eris.Wrap(err, "discovery: unmarshal results")
	}

	filtered := hits[:0]
	for _, h := range hits {
		if strings.TrimSpace(h.URL) != "" {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

func (s *Source) systemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are a scholarship research assistant. Search the web for scholarship opportunities matching the user's query.

Return ONLY a JSON array of objects with this exact shape, no prose:
[{"url": "https://...", "context": "one-sentence summary including the deadline if visible"}]

Rules:
- Only include pages that describe a specific scholarship a student can apply to.
- Exclude any scholarship whose application deadline has already passed.
- Prefer official sources: foundations, civic organizations, schools, employers.`)
	if len(s.cfg.Blocklist) > 0 {
		fmt.Fprintf(&b, "\n- Never include results from these aggregator domains: %s.", strings.Join(s.cfg.Blocklist, ", "))
	}
	return b.String()
}

func (s *Source) blocked(normalized string) bool {
	for _, d := range s.cfg.Blocklist {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if strings.HasPrefix(normalized, d) || strings.HasPrefix(normalized, "www."+d) {
			return true
		}
	}
	return false
}

// cleanJSONArray strips markdown fences and surrounding prose, keeping
// the outermost bracketed array. Returns "" when no array is present.
func cleanJSONArray(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}
