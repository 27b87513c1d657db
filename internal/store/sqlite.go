package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/recruitin/kandidatentekort/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "kandidatentekort.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pending_reports (
	deal_id       INTEGER PRIMARY KEY,
	email         TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	original_text TEXT NOT NULL DEFAULT '',
	analysis      TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	sent_at       DATETIME
);

CREATE TABLE IF NOT EXISTS submissions (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	result     TEXT NOT NULL,
	deal_id    INTEGER,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS failed_emails (
	id         TEXT PRIMARY KEY,
	recipient  TEXT NOT NULL,
	subject    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	error      TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_reports_sent_at ON pending_reports(sent_at);
CREATE INDEX IF NOT EXISTS idx_submissions_email ON submissions(email);
CREATE INDEX IF NOT EXISTS idx_failed_emails_created_at ON failed_emails(created_at);
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

// SaveReport inserts or replaces the report for r.DealID and clears any
// earlier sent mark.
func (s *SQLiteStore) SaveReport(ctx context.Context, r model.PendingReport) error {
	analysis, err := json.Marshal(r.Analysis)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_reports (deal_id, email, first_name, company, title, original_text, analysis, created_at, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT(deal_id) DO UPDATE SET
		   email = excluded.email, first_name = excluded.first_name, company = excluded.company,
		   title = excluded.title, original_text = excluded.original_text, analysis = excluded.analysis,
		   created_at = excluded.created_at, sent_at = NULL`,
		r.DealID, r.Email, r.FirstName, r.Company, r.Title, r.OriginalText, string(analysis), r.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save report %d", r.DealID)
}

const sqliteReportColumns = `deal_id, email, first_name, company, title, original_text, analysis, created_at, sent_at`

func (s *SQLiteStore) GetReport(ctx context.Context, dealID int) (*model.PendingReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteReportColumns+` FROM pending_reports WHERE deal_id = ?`, dealID)
	r, err := scanSQLiteReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %d", dealID)
	}
	return r, nil
}

func (s *SQLiteStore) MarkReportSent(ctx context.Context, dealID int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_reports SET sent_at = ? WHERE deal_id = ?`, at.UTC(), dealID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark report sent %d", dealID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListPendingReports(ctx context.Context) ([]model.PendingReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteReportColumns+` FROM pending_reports WHERE sent_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending reports")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PendingReport
	for rows.Next() {
		r, err := scanSQLiteReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate reports")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteReport(row rowScanner) (*model.PendingReport, error) {
	var (
		r        model.PendingReport
		analysis string
		sentAt   sql.NullTime
	)
	if err := row.Scan(&r.DealID, &r.Email, &r.FirstName, &r.Company, &r.Title,
		&r.OriginalText, &analysis, &r.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(analysis), &r.Analysis); err != nil {
		return nil, eris.Wrap(err, "unmarshal analysis")
	}
	if sentAt.Valid {
		t := sentAt.Time
		r.SentAt = &t
	}
	return &r, nil
}

func (s *SQLiteStore) RecordSubmission(ctx context.Context, rec model.SubmissionRecord) (string, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	id := newULID(rec.CreatedAt)
	payload, err := json.Marshal(rec.Submission)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal submission")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, email, payload, result, deal_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, rec.Submission.Email, string(payload), rec.Result, nullInt(rec.DealID), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert submission")
	}
	return id, nil
}

func (s *SQLiteStore) RecordFailedEmail(ctx context.Context, fe model.FailedEmail) (string, error) {
	if fe.CreatedAt.IsZero() {
		fe.CreatedAt = time.Now().UTC()
	}
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failed_emails (id, recipient, subject, kind, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, fe.Recipient, fe.Subject, fe.Kind, fe.Error, fe.CreatedAt.UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert failed email")
	}
	return id, nil
}

func (s *SQLiteStore) ListFailedEmails(ctx context.Context, limit int) ([]model.FailedEmail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient, subject, kind, error, created_at FROM failed_emails ORDER BY created_at DESC LIMIT ?`,
		clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failed emails")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FailedEmail
	for rows.Next() {
		var fe model.FailedEmail
		if err := rows.Scan(&fe.ID, &fe.Recipient, &fe.Subject, &fe.Kind, &fe.Error, &fe.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failed email")
		}
		out = append(out, fe)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate failed emails")
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
