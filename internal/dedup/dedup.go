// Package dedup tracks which source URLs have already been seen, either
// in the approved catalog, the pending review queue, or earlier in the
// current ingestion run.
package dedup

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// URLSource provides the persisted URL sets the index warms from.
type URLSource interface {
	CatalogURLs(ctx context.Context) ([]string, error)
	PendingURLs(ctx context.Context) ([]string, error)
}

// Normalize canonicalizes a URL for dedup comparison: lowercased host
// and path with any trailing slash removed. Query strings and fragments
// are dropped. Returns an error for unparseable or schemeless input.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", eris.Wrapf(err, "dedup: parse url %q", raw)
	}
	if u.Host == "" {
		return "", eris.Errorf("dedup: url missing host: %q", raw)
	}

	host := strings.ToLower(u.Host)
	path := strings.ToLower(u.Path)
	path = strings.TrimRight(path, "/")

	return host + path, nil
}

// Index is a set of normalized URLs. It is warmed once per run from the
// catalog and pending tables, then grows as the run marks new URLs.
type Index struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewIndex loads the catalog and pending URL sets concurrently and
// returns an index seeded with both.
func NewIndex(ctx context.Context, src URLSource) (*Index, error) {
	var catalog, pending []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = src.CatalogURLs(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = src.PendingURLs(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "dedup: warm index")
	}

	idx := &Index{seen: make(map[string]struct{}, len(catalog)+len(pending))}
	for _, u := range catalog {
		idx.seen[u] = struct{}{}
	}
	for _, u := range pending {
		idx.seen[u] = struct{}{}
	}
	return idx, nil
}

// Seen reports whether the normalized URL is already in the index.
func (i *Index) Seen(normalized string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.seen[normalized]
	return ok
}

// Mark adds the normalized URL to the index. Returns false if it was
// already present.
func (i *Index) Mark(normalized string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.seen[normalized]; ok {
		return false
	}
	i.seen[normalized] = struct{}{}
	return true
}

// Len returns the number of URLs in the index.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.seen)
}
