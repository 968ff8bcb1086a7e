// Package fetcher downloads scholarship pages and reduces them to plain
// text suitable for extraction. A page that cannot be fetched or yields
// too little text is treated as a skip, never a pipeline failure.
package fetcher

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/scholarpath/scout-cli/internal/model"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; ScholarScout/1.0)"

// strippedSelectors are removed from the document before text
// extraction; they carry navigation and chrome, not award details.
var strippedSelectors = []string{
	"script", "style", "nav", "header", "footer", "iframe", "noscript", "svg", "form",
}

// Config tunes fetch behavior.
type Config struct {
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxChars  int           `yaml:"max_chars" mapstructure:"max_chars"`
	MinChars  int           `yaml:"min_chars" mapstructure:"min_chars"`
}

// Fetcher fetches and cleans web pages.
type Fetcher struct {
	http *http.Client
	cfg  Config
}

// Option configures the fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		f.http = hc
	}
}

// New creates a Fetcher. Zero config fields fall back to defaults:
// 8s timeout, 15000 char cap, 100 char minimum.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 15000
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = 100
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	f := &Fetcher{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch downloads the page at url and returns its cleaned text. Any
// failure (network error, timeout, non-2xx status, unparseable HTML,
// or a body under the minimum length) returns nil after logging; the
// caller counts it as a skipped page.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) *model.FetchedPage {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		zap.L().Warn("fetch: bad url", zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.http.Do(req)
	if err != nil {
		zap.L().Warn("fetch: request failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		zap.L().Warn("fetch: non-2xx status",
			zap.String("url", pageURL),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	}

	body := decodeCharset(resp)
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		zap.L().Warn("fetch: parse html", zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	for _, sel := range strippedSelectors {
		doc.Find(sel).Remove()
	}

	text := collapseWhitespace(doc.Find("body").Text())
	if text == "" {
		text = collapseWhitespace(doc.Text())
	}
	if len(text) > f.cfg.MaxChars {
		text = text[:f.cfg.MaxChars]
	}
	if len(text) < f.cfg.MinChars {
		zap.L().Warn("fetch: page too short",
			zap.String("url", pageURL),
			zap.Int("chars", len(text)),
		)
		return nil
	}

	return &model.FetchedPage{
		URL:        pageURL,
		Text:       text,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now().UTC(),
	}
}

// decodeCharset wraps the response body in a decoder when the
// Content-Type declares a non-UTF-8 charset.
func decodeCharset(resp *http.Response) io.Reader {
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return resp.Body
	}
	cs := params["charset"]
	if cs == "" || strings.EqualFold(cs, "utf-8") {
		return resp.Body
	}
	enc, err := htmlindex.Get(cs)
	if err != nil || enc == nil {
		return resp.Body
	}
	return transform.NewReader(resp.Body, enc.NewDecoder())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
