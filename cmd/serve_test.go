package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarpath/scout-cli/internal/model"
	"github.com/scholarpath/scout-cli/internal/review"
	"github.com/scholarpath/scout-cli/internal/store"
)

// newTestEnv wires a router against a real SQLite store in a temp dir.
// The pipeline is left nil; only the review and health routes are hit.
func newTestEnv(t *testing.T) (*env, store.Store) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	return &env{Store: s, Review: review.NewService(s)}, s
}

func seedPending(t *testing.T, s store.Store, url string) *model.PendingScholarship {
	t.Helper()
	deadline := "2027-03-15"
	p := &model.PendingScholarship{
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
	require.NoError(t, s.InsertPending(context.Background(), p))
	return p
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	e, _ := newTestEnv(t)
	r := buildRouter(e, "")

	rr := doRequest(r, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	e, _ := newTestEnv(t)
	r := buildRouter(e, "secret")

	rr := doRequest(r, http.MethodGet, "/admin/runs", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/runs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	ok := httptest.NewRecorder()
	r.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestRouter_AdminLockedWhenTokenUnset(t *testing.T) {
	// An empty configured token disables admin routes rather than
	// leaving them open.
	e, _ := newTestEnv(t)
	r := buildRouter(e, "")

	req := httptest.NewRequest(http.MethodGet, "/admin/runs", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_ListAndGetPending(t *testing.T) {
	e, s := newTestEnv(t)
	p := seedPending(t, s, "example.org/award")
	r := buildRouter(e, "")

	rr := doRequest(r, http.MethodGet, "/review/pending", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var records []model.PendingScholarship
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, p.ID, records[0].ID)

	rr = doRequest(r, http.MethodGet, "/review/pending/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(r, http.MethodGet, "/review/pending/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_ApproveFlow(t *testing.T) {
	e, s := newTestEnv(t)
	p := seedPending(t, s, "example.org/award")
	r := buildRouter(e, "")

	rr := doRequest(r, http.MethodPost, "/review/pending/"+p.ID+"/approve",
		map[string]string{"reviewed_by": "counselor-1"})
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotZero(t, resp["scholarship_id"])

	// A second approval of the same record conflicts.
	rr = doRequest(r, http.MethodPost, "/review/pending/"+p.ID+"/approve",
		map[string]string{"reviewed_by": "counselor-1"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRouter_ApproveMissingReviewer(t *testing.T) {
	e, s := newTestEnv(t)
	p := seedPending(t, s, "example.org/award")
	r := buildRouter(e, "")

	rr := doRequest(r, http.MethodPost, "/review/pending/"+p.ID+"/approve",
		map[string]string{"notes": "looks good"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "reviewed_by is required")
}

func TestRouter_ApproveValidationFailure(t *testing.T) {
	e, s := newTestEnv(t)
	p := &model.PendingScholarship{
		SourceURL:   "example.org/broken",
		RawPageText: "page text that failed extraction",
		Status:      model.StatusNeedsReview,
	}
	require.NoError(t, s.InsertPending(context.Background(), p))
	r := buildRouter(e, "")

	rr := doRequest(r, http.MethodPost, "/review/pending/"+p.ID+"/approve",
		map[string]string{"reviewed_by": "counselor-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRouter_RejectFlow(t *testing.T) {
	e, s := newTestEnv(t)
	p := seedPending(t, s, "example.org/award")
	r := buildRouter(e, "")

	rr := doRequest(r, http.MethodPost, "/review/pending/"+p.ID+"/reject",
		map[string]any{"reviewed_by": "counselor-1", "notes": "duplicate of an existing award"})
	assert.Equal(t, http.StatusOK, rr.Code)

	got, err := s.GetPending(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)

	rr = doRequest(r, http.MethodPost, "/review/pending/"+p.ID+"/reject",
		map[string]string{"reviewed_by": "counselor-1"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRouter_InvalidBody(t *testing.T) {
	e, s := newTestEnv(t)
	p := seedPending(t, s, "example.org/award")
	r := buildRouter(e, "")

	req := httptest.NewRequest(http.MethodPost, "/review/pending/"+p.ID+"/approve",
		bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}
