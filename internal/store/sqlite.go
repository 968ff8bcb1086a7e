package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scholarpath/scout-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// default backend for local development and single-operator deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scholarships (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	name                    TEXT NOT NULL,
	organization            TEXT,
	amount                  INTEGER,
	deadline                TEXT,
	application_url         TEXT NOT NULL,
	short_description       TEXT,
	full_description        TEXT,
	gpa_min                 REAL,
	gpa_max                 REAL,
	national                INTEGER NOT NULL DEFAULT 0,
	states                  TEXT,
	cities                  TEXT,
	demographics            TEXT,
	majors                  TEXT,
	athletics               TEXT,
	ec_categories           TEXT,
	essay_required          INTEGER NOT NULL DEFAULT 0,
	essay_prompts           TEXT,
	essay_word_count        INTEGER,
	recommendation_required INTEGER NOT NULL DEFAULT 0,
	transcript_required     INTEGER NOT NULL DEFAULT 0,
	resume_required         INTEGER NOT NULL DEFAULT 0,
	competition_level       TEXT,
	estimated_applicants    INTEGER,
	source_url              TEXT NOT NULL UNIQUE,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pending_scholarships (
	id                    TEXT PRIMARY KEY,
	source_url            TEXT NOT NULL UNIQUE,
	raw_page_text         TEXT NOT NULL,
	extracted_data        TEXT,
	extraction_model      TEXT NOT NULL DEFAULT '',
	extraction_confidence REAL NOT NULL DEFAULT 0,
	status                TEXT NOT NULL DEFAULT 'pending',
	reviewer_notes        TEXT,
	reviewed_by           TEXT,
	reviewed_at           DATETIME,
	scholarship_id        INTEGER REFERENCES scholarships(id),
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_scholarships(status);
CREATE INDEX IF NOT EXISTS idx_pending_created_at ON pending_scholarships(created_at);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id           TEXT PRIMARY KEY,
	profile      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	stats        TEXT,
	error        TEXT,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON ingestion_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON ingestion_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) InsertPending(ctx context.Context, p *model.PendingScholarship) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = model.StatusPending
	}

	var extractedJSON any
	if p.Extracted != nil {
		b, err := json.Marshal(p.Extracted)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal extracted data")
		}
		extractedJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_scholarships
		 (id, source_url, raw_page_text, extracted_data, extraction_model, extraction_confidence, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SourceURL, p.RawPageText, extractedJSON,
		p.ExtractionModel, p.Confidence, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return eris.Wrapf(ErrConflict, "sqlite: pending source_url %s", p.SourceURL)
		}
		return eris.Wrap(err, "sqlite: insert pending")
	}
	return nil
}

func (s *SQLiteStore) GetPending(ctx context.Context, id string) (*model.PendingScholarship, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_url, raw_page_text, extracted_data, extraction_model, extraction_confidence,
		        status, reviewer_notes, reviewed_by, reviewed_at, scholarship_id, created_at
		 FROM pending_scholarships WHERE id = ?`,
		id,
	)
	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: pending %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get pending %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListPending(ctx context.Context, filter PendingFilter) ([]model.PendingScholarship, error) {
	query := `SELECT id, source_url, raw_page_text, extracted_data, extraction_model, extraction_confidence,
	                 status, reviewer_notes, reviewed_by, reviewed_at, scholarship_id, created_at
	          FROM pending_scholarships WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}

	query += ` ORDER BY CASE status
		WHEN 'needs_review' THEN 0
		WHEN 'pending' THEN 1
		ELSE 2 END, created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending")
	}
	defer rows.Close()

	var out []model.PendingScholarship
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pending")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pending iterate")
}

func (s *SQLiteStore) PendingURLs(ctx context.Context) ([]string, error) {
	return s.collectURLs(ctx, `SELECT source_url FROM pending_scholarships`)
}

func (s *SQLiteStore) CatalogURLs(ctx context.Context) ([]string, error) {
	return s.collectURLs(ctx, `SELECT source_url FROM scholarships`)
}

func (s *SQLiteStore) collectURLs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: collect urls")
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan url")
		}
		urls = append(urls, u)
	}
	return urls, eris.Wrap(rows.Err(), "sqlite: collect urls iterate")
}

func (s *SQLiteStore) GetScholarship(ctx context.Context, id int64) (*model.Scholarship, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, organization, amount, deadline, application_url, short_description, full_description,
		        gpa_min, gpa_max, national, states, cities, demographics, majors, athletics, ec_categories,
		        essay_required, essay_prompts, essay_word_count, recommendation_required, transcript_required,
		        resume_required, competition_level, estimated_applicants, source_url, created_at
		 FROM scholarships WHERE id = ?`,
		id,
	)
	sch, err := scanScholarship(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: scholarship %d", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get scholarship %d", id)
	}
	return sch, nil
}

func (s *SQLiteStore) Approve(ctx context.Context, pendingID string, sch *model.Scholarship, reviewedBy string, notes *string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin approve")
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM pending_scholarships WHERE id = ?`,
		pendingID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, eris.Wrapf(ErrNotFound, "sqlite: pending %s", pendingID)
		}
		return 0, eris.Wrapf(err, "sqlite: load pending %s", pendingID)
	}
	if model.ReviewStatus(status).Terminal() {
		return 0, eris.Wrapf(ErrConflict, "sqlite: pending %s already %s", pendingID, status)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scholarships
		 (name, organization, amount, deadline, application_url, short_description, full_description,
		  gpa_min, gpa_max, national, states, cities, demographics, majors, athletics, ec_categories,
		  essay_required, essay_prompts, essay_word_count, recommendation_required, transcript_required,
		  resume_required, competition_level, estimated_applicants, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sch.Name, sch.Organization, sch.Amount, sch.Deadline, sch.ApplicationURL,
		sch.ShortDescription, sch.FullDescription, sch.GPAMin, sch.GPAMax, sch.National,
		listText(sch.States), listText(sch.Cities), listText(sch.Demographics),
		listText(sch.Majors), listText(sch.Athletics), listText(sch.ECCategories),
		sch.EssayRequired, listText(sch.EssayPrompts), sch.EssayWordCount,
		sch.RecommendationRequired, sch.TranscriptRequired, sch.ResumeRequired,
		sch.CompetitionLevel, sch.EstimatedApplicants, sch.SourceURL, time.Now().UTC(),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return 0, eris.Wrapf(ErrConflict, "sqlite: catalog source_url %s", sch.SourceURL)
		}
		return 0, eris.Wrap(err, "sqlite: insert scholarship")
	}
	scholarshipID, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: scholarship id")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE pending_scholarships
		 SET status = ?, reviewed_by = ?, reviewed_at = ?, reviewer_notes = ?, scholarship_id = ?
		 WHERE id = ?`,
		string(model.StatusApproved), reviewedBy, time.Now().UTC(), notes, scholarshipID, pendingID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: approve pending %s", pendingID)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit approve")
	}
	return scholarshipID, nil
}

func (s *SQLiteStore) Reject(ctx context.Context, pendingID string, reviewedBy string, notes *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_scholarships
		 SET status = ?, reviewed_by = ?, reviewed_at = ?, reviewer_notes = ?
		 WHERE id = ? AND status IN ('pending', 'needs_review')`,
		string(model.StatusRejected), reviewedBy, time.Now().UTC(), notes, pendingID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reject pending %s", pendingID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		if _, err := s.GetPending(ctx, pendingID); err != nil {
			return err
		}
		return eris.Wrapf(ErrConflict, "sqlite: pending %s already reviewed", pendingID)
	}
	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, profile model.Profile) (*model.IngestionRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal profile")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingestion_runs (id, profile, status, started_at) VALUES (?, ?, ?, ?)`,
		id, string(profileJSON), string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.IngestionRun{
		ID:        id,
		Profile:   profile,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_runs SET status = ?, stats = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusCompleted), string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.IngestionRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, profile, status, stats, error, started_at, completed_at
		 FROM ingestion_runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error) {
	query := `SELECT id, profile, status, stats, error, started_at, completed_at
	          FROM ingestion_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.IngestionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// listText JSON-encodes a list field, keeping nil as SQL NULL.
func listText(v []string) any {
	if v == nil {
		return nil
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", kind, id)
	}
	return nil
}
