package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarpath/scout-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func samplePending(url string) *model.PendingScholarship {
	deadline := "2027-03-15"
	return &model.PendingScholarship{
		SourceURL:   url,
		RawPageText: "The Riverside Community Foundation awards $2,500 annually.",
		Extracted: &model.ScholarshipExtracted{
			Name:           "Riverside Scholarship",
			Deadline:       &deadline,
			ApplicationURL: "https://example.org/apply",
		},
		ExtractionModel: "claude-sonnet-4-5-20250929",
		Confidence:      0.9,
		Status:          model.StatusPending,
	}
}

func TestSQLiteStore_PendingRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	p := samplePending("example.org/award")
	require.NoError(t, s.InsertPending(ctx, p))

	got, err := s.GetPending(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.SourceURL, got.SourceURL)
	assert.Equal(t, model.StatusPending, got.Status)
	require.NotNil(t, got.Extracted)
	assert.Equal(t, "Riverside Scholarship", got.Extracted.Name)
	assert.InDelta(t, 0.9, got.Confidence, 0.001)
	assert.Nil(t, got.ReviewedAt)
	assert.Nil(t, got.ScholarshipID)
}

func TestSQLiteStore_InsertPending_DuplicateURL(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPending(ctx, samplePending("example.org/award")))
	err := s.InsertPending(ctx, samplePending("example.org/award"))
	require.ErrorIs(t, err, ErrConflict)
}

func TestSQLiteStore_InsertPending_NullExtracted(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	p := &model.PendingScholarship{
		SourceURL:   "example.org/failed",
		RawPageText: "page text the model could not parse",
		Status:      model.StatusNeedsReview,
	}
	require.NoError(t, s.InsertPending(ctx, p))

	got, err := s.GetPending(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Extracted)
	assert.Equal(t, model.StatusNeedsReview, got.Status)
}

func TestSQLiteStore_ListPending_ReviewFirst(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a := samplePending("example.org/a")
	a.Status = model.StatusPending
	b := samplePending("example.org/b")
	b.Status = model.StatusNeedsReview
	require.NoError(t, s.InsertPending(ctx, a))
	require.NoError(t, s.InsertPending(ctx, b))

	all, err := s.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, model.StatusNeedsReview, all[0].Status, "needs_review sorts first")

	flagged, err := s.ListPending(ctx, PendingFilter{Status: model.StatusNeedsReview})
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "example.org/b", flagged[0].SourceURL)
}

func TestSQLiteStore_Approve(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	p := samplePending("example.org/award")
	require.NoError(t, s.InsertPending(ctx, p))

	sch := model.FromExtracted(p.Extracted, p.SourceURL)
	notes := "verified with the foundation"
	id, err := s.Approve(ctx, p.ID, sch, "reviewer-7", &notes)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.GetPending(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	require.NotNil(t, got.ScholarshipID)
	assert.Equal(t, id, *got.ScholarshipID)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, "reviewer-7", *got.ReviewedBy)
	assert.NotNil(t, got.ReviewedAt)

	row, err := s.GetScholarship(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Riverside Scholarship", row.Name)
	assert.Equal(t, "example.org/award", row.SourceURL)

	urls, err := s.CatalogURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.org/award"}, urls)
}

func TestSQLiteStore_Approve_TerminalConflict(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	p := samplePending("example.org/award")
	require.NoError(t, s.InsertPending(ctx, p))
	sch := model.FromExtracted(p.Extracted, p.SourceURL)

	_, err := s.Approve(ctx, p.ID, sch, "reviewer-7", nil)
	require.NoError(t, err)

	_, err = s.Approve(ctx, p.ID, sch, "reviewer-8", nil)
	require.ErrorIs(t, err, ErrConflict)
}

func TestSQLiteStore_Approve_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	_, err := s.Approve(context.Background(), "missing", &model.Scholarship{Name: "x"}, "r", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Reject(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	p := samplePending("example.org/award")
	require.NoError(t, s.InsertPending(ctx, p))

	require.NoError(t, s.Reject(ctx, p.ID, "reviewer-7", nil))

	got, err := s.GetPending(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Nil(t, got.ScholarshipID, "no catalog row on reject")

	urls, err := s.CatalogURLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestSQLiteStore_Reject_TerminalConflict(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	p := samplePending("example.org/award")
	require.NoError(t, s.InsertPending(ctx, p))
	require.NoError(t, s.Reject(ctx, p.ID, "reviewer-7", nil))

	err := s.Reject(ctx, p.ID, "reviewer-8", nil)
	require.ErrorIs(t, err, ErrConflict)
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.Profile{City: "Riverside", State: "CA", GraduationYear: 2027})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	stats := &model.RunStats{Queried: 5, URLsDiscovered: 12, Queued: 4, SkippedDeadline: 1}
	require.NoError(t, s.CompleteRun(ctx, run.ID, stats))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Stats)
	assert.Equal(t, 12, got.Stats.URLsDiscovered)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "Riverside", got.Profile.City)

	runs, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLiteStore_FailRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.Profile{})
	require.NoError(t, err)
	require.NoError(t, s.FailRun(ctx, run.ID, "search credential missing"))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "search credential missing", got.Error)
}
