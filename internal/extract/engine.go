// Package extract converts cleaned page text into structured scholarship
// records via an LLM call. Model output is never trusted as-is: the
// deadline is re-parsed locally and the review gate is computed here,
// not taken from the model.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scholarpath/scout-cli/internal/dates"
	"github.com/scholarpath/scout-cli/internal/model"
	"github.com/scholarpath/scout-cli/pkg/anthropic"
)

// OutcomeKind discriminates the three extraction outcomes. Stale
// deadlines are silently dropped to keep noise out of the review queue;
// genuine extraction failures are surfaced for a human to look at.
type OutcomeKind string

const (
	OutcomeQueued      OutcomeKind = "queued"
	OutcomeNeedsReview OutcomeKind = "needs_review"
	OutcomeDropped     OutcomeKind = "dropped"
)

// Result is the outcome of extracting one fetched page.
type Result struct {
	SourceURL  string
	Kind       OutcomeKind
	Data       *model.ScholarshipExtracted
	Confidence float64
	Model      string
	DropReason string
}

// Config tunes the extraction engine.
type Config struct {
	Model               string  `yaml:"model" mapstructure:"model"`
	MaxTokens           int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
}

// Engine performs structured extraction of scholarship pages.
type Engine struct {
	client  anthropic.Client
	cfg     Config
	nowFunc func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithNowFunc overrides the clock used for deadline staleness checks.
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		e.nowFunc = now
	}
}

// New creates an extraction Engine. A nil client is a configuration fault.
func New(client anthropic.Client, cfg Config, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, eris.New("extract: model client not configured")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	e := &Engine{
		client:  client,
		cfg:     cfg,
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

const extractionSystemPrompt = `You extract scholarship details from web page text into JSON.

Return ONLY one JSON object, no prose, with these fields (use null for anything not literally present in the text):
{
  "name": string, "organization": string|null, "amount": integer|null,
  "deadline": "YYYY-MM-DD"|null, "application_url": string|null,
  "short_description": string|null, "full_description": string|null,
  "gpa_min": number|null, "gpa_max": number|null,
  "national": boolean|null, "states": [string]|null, "cities": [string]|null,
  "demographics": [string]|null, "majors": [string]|null,
  "athletics": [string]|null, "ec_categories": [string]|null,
  "essay_required": boolean|null, "essay_prompts": [string]|null,
  "essay_word_count": integer|null,
  "recommendation_required": boolean|null, "transcript_required": boolean|null,
  "resume_required": boolean|null,
  "competition_level": "local"|"regional"|"state"|"national"|null,
  "estimated_applicants": integer|null,
  "confidence": number
}

Rules:
- Extract only what the text literally states. Never guess or infer.
- When an award range is stated, "amount" is the minimum of the range.
- If the deadline is within 24 hours of now or has passed, set "deadline" to null.
- "confidence" is your confidence in the overall extraction, 0 to 1. If you could not determine the name, deadline, or application URL, it must be below 0.5.`

// modelPayload is the extraction shape plus the self-reported score.
type modelPayload struct {
	model.ScholarshipExtracted
	Confidence float64 `json:"confidence"`
}

// Extract runs structured extraction over one fetched page. Transport
// and parse failures yield a needs_review result so the raw page text
// still reaches a human; a record whose re-validated deadline is too
// close to act on is dropped entirely.
func (e *Engine) Extract(ctx context.Context, page *model.FetchedPage) Result {
	res := Result{
		SourceURL: page.URL,
		Model:     e.cfg.Model,
	}

	payload, err := e.callModel(ctx, page)
	if err != nil {
		zap.L().Warn("extract: model call failed", zap.String("url", page.URL), zap.Error(err))
		res.Kind = OutcomeNeedsReview
		return res
	}

	// Gate on the model's required-field output before any defaulting.
	missingName := strings.TrimSpace(payload.Name) == ""
	missingAppURL := strings.TrimSpace(payload.ApplicationURL) == ""

	// Re-validate the deadline locally; an unparseable value is absent.
	missingDeadline := true
	if payload.Deadline != nil {
		if dl, ok := dates.Parse(*payload.Deadline); ok {
			missingDeadline = false
			if dates.TooSoon(dl, e.nowFunc()) {
				res.Kind = OutcomeDropped
				res.DropReason = fmt.Sprintf("deadline %s too close to act on", dl.Format("2006-01-02"))
				return res
			}
		} else {
			payload.Deadline = nil
		}
	}

	res.Confidence = clamp01(payload.Confidence)
	res.Data = &payload.ScholarshipExtracted

	if res.Confidence < e.cfg.ConfidenceThreshold || missingName || missingDeadline || missingAppURL {
		res.Kind = OutcomeNeedsReview
	} else {
		res.Kind = OutcomeQueued
	}
	return res
}

func (e *Engine) callModel(ctx context.Context, page *model.FetchedPage) (*modelPayload, error) {
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System: []anthropic.SystemBlock{
			{Text: extractionSystemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf("Source URL: %s\n\nPage text:\n%s", page.URL, page.Text)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: create message")
	}
	resp.Usage.LogCost(e.cfg.Model, "extraction")

	raw := cleanJSONObject(resp.Text())
	if raw == "" {
		return nil, eris.New("extract: no JSON object in response")
	}

	var payload modelPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, eris.Wrap(err, "extract: unmarshal payload")
	}
	return &payload, nil
}

// cleanJSONObject strips markdown fences and surrounding prose, keeping
// the outermost braced object. Returns "" when no object is present.
func cleanJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
