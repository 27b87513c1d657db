// Package store persists pending review reports, the submission audit log
// and failed email sends.
package store

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rotisserie/eris"

	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/internal/model"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface.
type Store interface {
	// Pending reports, keyed by CRM deal id.
	SaveReport(ctx context.Context, r model.PendingReport) error
	GetReport(ctx context.Context, dealID int) (*model.PendingReport, error)
	MarkReportSent(ctx context.Context, dealID int, at time.Time) error
	ListPendingReports(ctx context.Context) ([]model.PendingReport, error)

	// Audit log
	RecordSubmission(ctx context.Context, rec model.SubmissionRecord) (string, error)

	// Dead letters
	RecordFailedEmail(ctx context.Context, fe model.FailedEmail) (string, error)
	ListFailedEmails(ctx context.Context, limit int) ([]model.FailedEmail, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store selected by cfg.Driver, migrated and ready.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newULID returns a time-sortable id for t.
func newULID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

const defaultFailedEmailLimit = 100

func clampLimit(n int) int {
	if n <= 0 || n > 1000 {
		return defaultFailedEmailLimit
	}
	return n
}
