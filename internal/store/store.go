package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/scholarpath/scout-cli/internal/model"
)

// Sentinel errors shared by both store backends.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict indicates the write collided with existing state: a
	// duplicate normalized source URL on insert, or a reviewer action
	// against a record already in a terminal status.
	ErrConflict = eris.New("store: conflict")
)

// PendingFilter specifies criteria for listing pending records.
type PendingFilter struct {
	Status model.ReviewStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing ingestion runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the discovery pipeline
// and the review queue.
type Store interface {
	// Pending queue
	InsertPending(ctx context.Context, p *model.PendingScholarship) error
	GetPending(ctx context.Context, id string) (*model.PendingScholarship, error)
	ListPending(ctx context.Context, filter PendingFilter) ([]model.PendingScholarship, error)
	PendingURLs(ctx context.Context) ([]string, error)

	// Catalog
	CatalogURLs(ctx context.Context) ([]string, error)
	GetScholarship(ctx context.Context, id int64) (*model.Scholarship, error)

	// Reviewer transitions. Approve atomically inserts the catalog row
	// and stamps the pending row; both writes commit or neither does.
	Approve(ctx context.Context, pendingID string, sch *model.Scholarship, reviewedBy string, notes *string) (int64, error)
	Reject(ctx context.Context, pendingID string, reviewedBy string, notes *string) error

	// Ingestion runs
	CreateRun(ctx context.Context, profile model.Profile) (*model.IngestionRun, error)
	CompleteRun(ctx context.Context, runID string, stats *model.RunStats) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.IngestionRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
