package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scholarpath/scout-cli/internal/db"
	"github.com/scholarpath/scout-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations. The
// store methods invoke them by name.
var preparedStatements = map[string]string{
	"insert_pending": `INSERT INTO pending_scholarships
		(id, source_url, raw_page_text, extracted_data, extraction_model, extraction_confidence, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_pending":  `SELECT id, source_url, raw_page_text, extracted_data, extraction_model, extraction_confidence, status, reviewer_notes, reviewed_by, reviewed_at, scholarship_id, created_at FROM pending_scholarships WHERE id = $1`,
	"pending_urls": `SELECT source_url FROM pending_scholarships`,
	"catalog_urls": `SELECT source_url FROM scholarships`,
	"insert_run":   `INSERT INTO ingestion_runs (id, profile, status, started_at) VALUES ($1, $2, $3, $4)`,
	"complete_run": `UPDATE ingestion_runs SET status = $1, stats = $2, completed_at = $3 WHERE id = $4`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// The unique index on pending source_url doubles as the guard against
// two concurrent runs racing on the same newly discovered URL: the
// second insert fails with ErrConflict instead of creating a duplicate.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS scholarships (
	id                      BIGSERIAL PRIMARY KEY,
	name                    TEXT NOT NULL,
	organization            TEXT,
	amount                  INTEGER,
	deadline                DATE,
	application_url         TEXT NOT NULL,
	short_description       TEXT,
	full_description        TEXT,
	gpa_min                 DOUBLE PRECISION,
	gpa_max                 DOUBLE PRECISION,
	national                BOOLEAN NOT NULL DEFAULT false,
	states                  JSONB,
	cities                  JSONB,
	demographics            JSONB,
	majors                  JSONB,
	athletics               JSONB,
	ec_categories           JSONB,
	essay_required          BOOLEAN NOT NULL DEFAULT false,
	essay_prompts           JSONB,
	essay_word_count        INTEGER,
	recommendation_required BOOLEAN NOT NULL DEFAULT false,
	transcript_required     BOOLEAN NOT NULL DEFAULT false,
	resume_required         BOOLEAN NOT NULL DEFAULT false,
	competition_level       TEXT,
	estimated_applicants    INTEGER,
	source_url              TEXT NOT NULL UNIQUE,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pending_scholarships (
	id                    TEXT PRIMARY KEY,
	source_url            TEXT NOT NULL UNIQUE,
	raw_page_text         TEXT NOT NULL,
	extracted_data        JSONB,
	extraction_model      TEXT NOT NULL DEFAULT '',
	extraction_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                TEXT NOT NULL DEFAULT 'pending',
	reviewer_notes        TEXT,
	reviewed_by           TEXT,
	reviewed_at           TIMESTAMPTZ,
	scholarship_id        BIGINT REFERENCES scholarships(id),
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_scholarships(status);
CREATE INDEX IF NOT EXISTS idx_pending_created_at ON pending_scholarships(created_at);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id           TEXT PRIMARY KEY,
	profile      JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	stats        JSONB,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON ingestion_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON ingestion_runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) InsertPending(ctx context.Context, p *model.PendingScholarship) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = model.StatusPending
	}

	var extractedJSON []byte
	if p.Extracted != nil {
		var err error
		extractedJSON, err = json.Marshal(p.Extracted)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal extracted data")
		}
	}

	_, err := s.pool.Exec(ctx, "insert_pending",
		p.ID, p.SourceURL, p.RawPageText, extractedJSON,
		p.ExtractionModel, p.Confidence, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(ErrConflict, "postgres: pending source_url %s", p.SourceURL)
		}
		return eris.Wrap(err, "postgres: insert pending")
	}
	return nil
}

func (s *PostgresStore) GetPending(ctx context.Context, id string) (*model.PendingScholarship, error) {
	row := s.pool.QueryRow(ctx, "get_pending", id)
	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: pending %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get pending %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, filter PendingFilter) ([]model.PendingScholarship, error) {
	query := `SELECT id, source_url, raw_page_text, extracted_data, extraction_model, extraction_confidence,
	                 status, reviewer_notes, reviewed_by, reviewed_at, scholarship_id, created_at
	          FROM pending_scholarships WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}

	// Reviewer queue ordering: records flagged for review come first,
	// oldest first within each band.
	query += ` ORDER BY CASE status
		WHEN 'needs_review' THEN 0
		WHEN 'pending' THEN 1
		ELSE 2 END, created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending")
	}
	defer rows.Close()

	var out []model.PendingScholarship
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list pending iterate")
}

func (s *PostgresStore) PendingURLs(ctx context.Context) ([]string, error) {
	return s.collectURLs(ctx, "pending_urls")
}

func (s *PostgresStore) CatalogURLs(ctx context.Context) ([]string, error) {
	return s.collectURLs(ctx, "catalog_urls")
}

func (s *PostgresStore) collectURLs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: collect urls")
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "postgres: scan url")
		}
		urls = append(urls, u)
	}
	return urls, eris.Wrap(rows.Err(), "postgres: collect urls iterate")
}

func (s *PostgresStore) GetScholarship(ctx context.Context, id int64) (*model.Scholarship, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, organization, amount, deadline, application_url, short_description, full_description,
		        gpa_min, gpa_max, national, states, cities, demographics, majors, athletics, ec_categories,
		        essay_required, essay_prompts, essay_word_count, recommendation_required, transcript_required,
		        resume_required, competition_level, estimated_applicants, source_url, created_at
		 FROM scholarships WHERE id = $1`,
		id,
	)
	sch, err := scanScholarship(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: scholarship %d", id)
		}
		return nil, eris.Wrapf(err, "postgres: get scholarship %d", id)
	}
	return sch, nil
}

func (s *PostgresStore) Approve(ctx context.Context, pendingID string, sch *model.Scholarship, reviewedBy string, notes *string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin approve")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM pending_scholarships WHERE id = $1 FOR UPDATE`,
		pendingID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, eris.Wrapf(ErrNotFound, "postgres: pending %s", pendingID)
		}
		return 0, eris.Wrapf(err, "postgres: lock pending %s", pendingID)
	}
	if model.ReviewStatus(status).Terminal() {
		return 0, eris.Wrapf(ErrConflict, "postgres: pending %s already %s", pendingID, status)
	}

	states, _ := marshalList(sch.States)
	cities, _ := marshalList(sch.Cities)
	demographics, _ := marshalList(sch.Demographics)
	majors, _ := marshalList(sch.Majors)
	athletics, _ := marshalList(sch.Athletics)
	ecCategories, _ := marshalList(sch.ECCategories)
	essayPrompts, _ := marshalList(sch.EssayPrompts)

	var scholarshipID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO scholarships
		 (name, organization, amount, deadline, application_url, short_description, full_description,
		  gpa_min, gpa_max, national, states, cities, demographics, majors, athletics, ec_categories,
		  essay_required, essay_prompts, essay_word_count, recommendation_required, transcript_required,
		  resume_required, competition_level, estimated_applicants, source_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		         $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		 RETURNING id`,
		sch.Name, sch.Organization, sch.Amount, sch.Deadline, sch.ApplicationURL,
		sch.ShortDescription, sch.FullDescription, sch.GPAMin, sch.GPAMax, sch.National,
		states, cities, demographics, majors, athletics, ecCategories,
		sch.EssayRequired, essayPrompts, sch.EssayWordCount,
		sch.RecommendationRequired, sch.TranscriptRequired, sch.ResumeRequired,
		sch.CompetitionLevel, sch.EstimatedApplicants, sch.SourceURL, time.Now().UTC(),
	).Scan(&scholarshipID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, eris.Wrapf(ErrConflict, "postgres: catalog source_url %s", sch.SourceURL)
		}
		return 0, eris.Wrap(err, "postgres: insert scholarship")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE pending_scholarships
		 SET status = $1, reviewed_by = $2, reviewed_at = $3, reviewer_notes = $4, scholarship_id = $5
		 WHERE id = $6`,
		string(model.StatusApproved), reviewedBy, time.Now().UTC(), notes, scholarshipID, pendingID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: approve pending %s", pendingID)
	}
	if tag.RowsAffected() == 0 {
		return 0, eris.Wrapf(ErrNotFound, "postgres: pending %s", pendingID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit approve")
	}
	return scholarshipID, nil
}

func (s *PostgresStore) Reject(ctx context.Context, pendingID string, reviewedBy string, notes *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_scholarships
		 SET status = $1, reviewed_by = $2, reviewed_at = $3, reviewer_notes = $4
		 WHERE id = $5 AND status IN ('pending', 'needs_review')`,
		string(model.StatusRejected), reviewedBy, time.Now().UTC(), notes, pendingID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reject pending %s", pendingID)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a terminal one.
		if _, err := s.GetPending(ctx, pendingID); err != nil {
			return err
		}
		return eris.Wrapf(ErrConflict, "postgres: pending %s already reviewed", pendingID)
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, profile model.Profile) (*model.IngestionRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal profile")
	}

	_, err = s.pool.Exec(ctx, "insert_run",
		id, profileJSON, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.IngestionRun{
		ID:        id,
		Profile:   profile,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx, "complete_run",
		string(model.RunStatusCompleted), statsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.IngestionRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, profile, status, stats, error, started_at, completed_at
		 FROM ingestion_runs WHERE id = $1`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error) {
	query := `SELECT id, profile, status, stats, error, started_at, completed_at
	          FROM ingestion_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.IngestionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// scanPending reads one pending row from a pgx.Row or pgx.Rows.
func scanPending(row pgx.Row) (*model.PendingScholarship, error) {
	var p model.PendingScholarship
	var extractedJSON []byte
	var status string

	err := row.Scan(&p.ID, &p.SourceURL, &p.RawPageText, &extractedJSON,
		&p.ExtractionModel, &p.Confidence, &status,
		&p.ReviewerNotes, &p.ReviewedBy, &p.ReviewedAt, &p.ScholarshipID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.ReviewStatus(status)

	if len(extractedJSON) > 0 {
		p.Extracted = &model.ScholarshipExtracted{}
		if err := json.Unmarshal(extractedJSON, p.Extracted); err != nil {
			return nil, eris.Wrap(err, "unmarshal extracted data")
		}
	}
	return &p, nil
}

func scanScholarship(row pgx.Row) (*model.Scholarship, error) {
	var sch model.Scholarship
	var states, cities, demographics, majors, athletics, ecCategories, essayPrompts []byte

	err := row.Scan(&sch.ID, &sch.Name, &sch.Organization, &sch.Amount, &sch.Deadline,
		&sch.ApplicationURL, &sch.ShortDescription, &sch.FullDescription,
		&sch.GPAMin, &sch.GPAMax, &sch.National,
		&states, &cities, &demographics, &majors, &athletics, &ecCategories,
		&sch.EssayRequired, &essayPrompts, &sch.EssayWordCount,
		&sch.RecommendationRequired, &sch.TranscriptRequired, &sch.ResumeRequired,
		&sch.CompetitionLevel, &sch.EstimatedApplicants, &sch.SourceURL, &sch.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, pair := range []struct {
		raw []byte
		dst *[]string
	}{
		{states, &sch.States}, {cities, &sch.Cities}, {demographics, &sch.Demographics},
		{majors, &sch.Majors}, {athletics, &sch.Athletics}, {ecCategories, &sch.ECCategories},
		{essayPrompts, &sch.EssayPrompts},
	} {
		if len(pair.raw) > 0 {
			if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
				return nil, eris.Wrap(err, "unmarshal list field")
			}
		}
	}
	return &sch, nil
}

func scanRun(row pgx.Row) (*model.IngestionRun, error) {
	var r model.IngestionRun
	var profileJSON, statsJSON []byte
	var errMsg *string
	var status string

	err := row.Scan(&r.ID, &profileJSON, &status, &statsJSON, &errMsg, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if errMsg != nil {
		r.Error = *errMsg
	}
	if err := json.Unmarshal(profileJSON, &r.Profile); err != nil {
		return nil, eris.Wrap(err, "unmarshal profile")
	}
	if len(statsJSON) > 0 {
		r.Stats = &model.RunStats{}
		if err := json.Unmarshal(statsJSON, r.Stats); err != nil {
			return nil, eris.Wrap(err, "unmarshal stats")
		}
	}
	return &r, nil
}

// marshalList JSON-encodes a list field, keeping nil as SQL NULL.
func marshalList(v []string) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
