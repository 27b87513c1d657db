package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/recruitin/kandidatentekort/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore; pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a small connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pending_reports (
	deal_id       BIGINT PRIMARY KEY,
	email         TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	original_text TEXT NOT NULL DEFAULT '',
	analysis      JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	sent_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS submissions (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	payload    JSONB NOT NULL,
	result     TEXT NOT NULL,
	deal_id    BIGINT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS failed_emails (
	id         UUID PRIMARY KEY,
	recipient  TEXT NOT NULL,
	subject    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	error      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_reports_unsent ON pending_reports(created_at) WHERE sent_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_submissions_email ON submissions(email);
CREATE INDEX IF NOT EXISTS idx_failed_emails_created_at ON failed_emails(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, r model.PendingReport) error {
	analysis, err := json.Marshal(r.Analysis)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_reports (deal_id, email, first_name, company, title, original_text, analysis, created_at, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
		 ON CONFLICT (deal_id) DO UPDATE SET
		   email = EXCLUDED.email, first_name = EXCLUDED.first_name, company = EXCLUDED.company,
		   title = EXCLUDED.title, original_text = EXCLUDED.original_text, analysis = EXCLUDED.analysis,
		   created_at = EXCLUDED.created_at, sent_at = NULL`,
		r.DealID, r.Email, r.FirstName, r.Company, r.Title, r.OriginalText, analysis, r.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save report %d", r.DealID)
}

const postgresReportColumns = `deal_id, email, first_name, company, title, original_text, analysis, created_at, sent_at`

func (s *PostgresStore) GetReport(ctx context.Context, dealID int) (*model.PendingReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresReportColumns+` FROM pending_reports WHERE deal_id = $1`, dealID)
	r, err := scanPostgresReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %d", dealID)
	}
	return r, nil
}

func (s *PostgresStore) MarkReportSent(ctx context.Context, dealID int, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE pending_reports SET sent_at = $1 WHERE deal_id = $2`, at, dealID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark report sent %d", dealID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPendingReports(ctx context.Context) ([]model.PendingReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresReportColumns+` FROM pending_reports WHERE sent_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending reports")
	}
	defer rows.Close()

	var out []model.PendingReport
	for rows.Next() {
		r, err := scanPostgresReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate reports")
}

func scanPostgresReport(row pgx.Row) (*model.PendingReport, error) {
	var (
		r        model.PendingReport
		analysis []byte
	)
	if err := row.Scan(&r.DealID, &r.Email, &r.FirstName, &r.Company, &r.Title,
		&r.OriginalText, &analysis, &r.CreatedAt, &r.SentAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(analysis, &r.Analysis); err != nil {
		return nil, eris.Wrap(err, "unmarshal analysis")
	}
	return &r, nil
}

func (s *PostgresStore) RecordSubmission(ctx context.Context, rec model.SubmissionRecord) (string, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	id := newULID(rec.CreatedAt)
	payload, err := json.Marshal(rec.Submission)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal submission")
	}
	var dealID *int
	if rec.DealID != 0 {
		dealID = &rec.DealID
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO submissions (id, email, payload, result, deal_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, rec.Submission.Email, payload, rec.Result, dealID, rec.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert submission")
	}
	return id, nil
}

func (s *PostgresStore) RecordFailedEmail(ctx context.Context, fe model.FailedEmail) (string, error) {
	if fe.CreatedAt.IsZero() {
		fe.CreatedAt = time.Now().UTC()
	}
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failed_emails (id, recipient, subject, kind, error, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, fe.Recipient, fe.Subject, fe.Kind, fe.Error, fe.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert failed email")
	}
	return id, nil
}

func (s *PostgresStore) ListFailedEmails(ctx context.Context, limit int) ([]model.FailedEmail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, recipient, subject, kind, error, created_at FROM failed_emails ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failed emails")
	}
	defer rows.Close()

	var out []model.FailedEmail
	for rows.Next() {
		var fe model.FailedEmail
		if err := rows.Scan(&fe.ID, &fe.Recipient, &fe.Subject, &fe.Kind, &fe.Error, &fe.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failed email")
		}
		out = append(out, fe)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate failed emails")
}
