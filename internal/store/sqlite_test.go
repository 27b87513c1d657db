package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitin/kandidatentekort/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleReport(dealID int) model.PendingReport {
	return model.PendingReport{
		DealID:       dealID,
		Email:        "jan@example.nl",
		FirstName:    "Jan",
		Company:      "Acme",
		Title:        "Servicemonteur",
		OriginalText: "Wij zoeken een servicemonteur.",
		Analysis: model.AnalysisResult{
			PromptVersion:   "panel",
			OverallScore:    28,
			MaxScore:        40,
			Score10:         7,
			TopImprovements: []model.Improvement{{Title: "Salaris noemen"}},
			RewrittenText:   "Nieuwe tekst",
			BonusTips:       []string{},
		},
	}
}

// --- Pending reports ---

func TestSQLite_SaveAndGetReport(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveReport(ctx, sampleReport(1)))

	got, err := st.GetReport(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "jan@example.nl", got.Email)
	assert.Equal(t, "Servicemonteur", got.Title)
	assert.InDelta(t, 28, got.Analysis.OverallScore, 0.001)
	require.Len(t, got.Analysis.TopImprovements, 1)
	assert.Nil(t, got.SentAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLite_GetReport_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetReport(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_SaveReport_Overwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveReport(ctx, sampleReport(5)))
	require.NoError(t, st.MarkReportSent(ctx, 5, time.Now().UTC()))

	r := sampleReport(5)
	r.Title = "Monteur"
	require.NoError(t, st.SaveReport(ctx, r))

	got, err := st.GetReport(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Monteur", got.Title)
	assert.Nil(t, got.SentAt)
}

func TestSQLite_MarkReportSent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveReport(ctx, sampleReport(2)))
	require.NoError(t, st.SaveReport(ctx, sampleReport(3)))

	pending, err := st.ListPendingReports(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, st.MarkReportSent(ctx, 2, time.Now().UTC()))

	pending, err = st.ListPendingReports(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].DealID)

	got, err := st.GetReport(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, got.SentAt)
}

func TestSQLite_MarkReportSent_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.MarkReportSent(context.Background(), 77, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Audit log ---

func TestSQLite_RecordSubmission(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id1, err := st.RecordSubmission(ctx, model.SubmissionRecord{
		Submission: model.Submission{Email: "a@b.nl"},
		Result:     "done",
		DealID:     10,
	})
	require.NoError(t, err)
	id2, err := st.RecordSubmission(ctx, model.SubmissionRecord{
		Submission: model.Submission{Email: "not-an-email"},
		Result:     "rejected",
	})
	require.NoError(t, err)

	assert.Len(t, id1, 26)
	assert.Less(t, id1, id2)
}

// --- Failed emails ---

func TestSQLite_FailedEmails(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, kind := range []string{"confirmation", "report", "nurture"} {
		_, err := st.RecordFailedEmail(ctx, model.FailedEmail{
			Recipient: "x@y.nl",
			Subject:   "s",
			Kind:      kind,
			Error:     "connection refused",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	out, err := st.ListFailedEmails(ctx, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "nurture", out[0].Kind)
	assert.Equal(t, "report", out[1].Kind)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
