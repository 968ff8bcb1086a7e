package model

import "time"

// RunStatus tracks an ingestion run's lifecycle.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunError records a single per-item failure without aborting the run.
type RunError struct {
	URL     string `json:"url,omitempty"`
	Query   string `json:"query,omitempty"`
	Message string `json:"message"`
}

// RunStats summarizes one discovery pipeline run. Every trigger receives
// one of these, even when individual items failed along the way.
type RunStats struct {
	Queried         int        `json:"queried"`
	URLsDiscovered  int        `json:"urls_discovered"`
	URLsNewToDB     int        `json:"urls_new_to_db"`
	PagesFetched    int        `json:"pages_fetched"`
	Extracted       int        `json:"extracted"`
	Queued          int        `json:"queued"`
	SkippedDeadline int        `json:"skipped_deadline"`
	Errors          []RunError `json:"errors"`
}

// IngestionRun is the persisted record of one pipeline invocation.
type IngestionRun struct {
	ID          string     `json:"id"`
	Profile     Profile    `json:"profile"`
	Status      RunStatus  `json:"status"`
	Stats       *RunStats  `json:"stats,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DiscoveredURL is a search hit that survived dedup and staleness checks.
// It exists only within a single pipeline run.
type DiscoveredURL struct {
	URL         string `json:"url"`        // normalized
	OriginalURL string `json:"original_url"`
	SourceQuery string `json:"source_query"`
	Context     string `json:"context,omitempty"`
}

// FetchedPage is the cleaned text of one successfully fetched page.
type FetchedPage struct {
	URL        string    `json:"url"`
	Text       string    `json:"text"` // cleaned, capped at 15000 chars
	FetchedAt  time.Time `json:"fetched_at"`
	StatusCode int       `json:"status_code"`
}
