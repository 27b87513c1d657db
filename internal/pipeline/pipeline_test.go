package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitin/kandidatentekort/internal/analysis"
	"github.com/recruitin/kandidatentekort/internal/crm"
	"github.com/recruitin/kandidatentekort/internal/model"
)

type fakeExtractor struct {
	text string
	urls []string
}

func (f *fakeExtractor) Text(_ context.Context, url string) string {
	f.urls = append(f.urls, url)
	return f.text
}

type fakeAnalyzer struct {
	err    error
	inputs []analysis.Input
}

func (f *fakeAnalyzer) Analyze(_ context.Context, in analysis.Input) (*model.AnalysisResult, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &model.AnalysisResult{OverallScore: 28, MaxScore: 40, Percentage: 70, Score10: 7, RewrittenText: "Nieuw"}, nil
}

type fakeCRM struct {
	result    crm.SyncResult
	err       error
	titles    []string
	notes     map[int][]string
	delivered []int
}

func (f *fakeCRM) SyncSubmission(_ context.Context, _ crm.Contact, title string) (crm.SyncResult, error) {
	f.titles = append(f.titles, title)
	return f.result, f.err
}

func (f *fakeCRM) AppendNote(_ context.Context, dealID int, content string) error {
	if f.notes == nil {
		f.notes = map[int][]string{}
	}
	f.notes[dealID] = append(f.notes[dealID], content)
	return nil
}

func (f *fakeCRM) ReportDelivered(_ context.Context, dealID int, _ time.Time) {
	f.delivered = append(f.delivered, dealID)
}

type fakeNotifier struct {
	confirmations []string
	reports       []string
	reportOK      bool
}

func (f *fakeNotifier) SendConfirmation(_ context.Context, to, _, _, _ string) bool {
	f.confirmations = append(f.confirmations, to)
	return true
}

func (f *fakeNotifier) SendAnalysisReport(_ context.Context, to, _, _, _ string, _ model.AnalysisResult, _ string) bool {
	f.reports = append(f.reports, to)
	return f.reportOK
}

type fakeReviewer struct{ held []model.PendingReport }

func (f *fakeReviewer) Hold(_ context.Context, r model.PendingReport) error {
	f.held = append(f.held, r)
	return nil
}

type fakeAudit struct{ records []model.SubmissionRecord }

func (f *fakeAudit) RecordSubmission(_ context.Context, rec model.SubmissionRecord) (string, error) {
	f.records = append(f.records, rec)
	return "01J", nil
}

type fixture struct {
	ext    *fakeExtractor
	llm    *fakeAnalyzer
	crm    *fakeCRM
	mail   *fakeNotifier
	review *fakeReviewer
	audit  *fakeAudit
}

func newFixture() *fixture {
	return &fixture{
		ext:    &fakeExtractor{},
		llm:    &fakeAnalyzer{},
		crm:    &fakeCRM{result: crm.SyncResult{OrgID: 3, PersonID: 5, DealID: 7}},
		mail:   &fakeNotifier{reportOK: true},
		review: &fakeReviewer{},
		audit:  &fakeAudit{},
	}
}

func (f *fixture) orchestrator(opts Options) *Orchestrator {
	o := New(Deps{
		Extractor: f.ext,
		Analyzer:  f.llm,
		CRM:       f.crm,
		Notifier:  f.mail,
		Reviewer:  f.review,
		Audit:     f.audit,
	}, opts)
	o.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return o
}

func payload(text string) map[string]any {
	return map[string]any{
		"email":         "jan@acme.nl",
		"naam":          "Jan Jansen",
		"bedrijf":       "Acme BV",
		"telefoon":      "0612345678",
		"vacaturetekst": text,
	}
}

var vacancy = "Monteur gezocht\n" + strings.Repeat("Wij zoeken een ervaren monteur. ", 4)

func TestProcess_SendsReportAutomatically(t *testing.T) {
	f := newFixture()
	res, err := f.orchestrator(Options{}).Process(context.Background(), payload(vacancy))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.ConfirmationSent)
	assert.True(t, res.Analyzed)
	assert.True(t, res.AnalysisSent)
	assert.False(t, res.AnalysisPending)
	assert.True(t, res.NoteAdded)
	assert.Equal(t, 7, res.DealID)
	require.NotNil(t, res.Score)
	assert.Equal(t, 28.0, *res.Score)
	assert.Equal(t, 40.0, *res.MaxScore)

	assert.Equal(t, []model.State{
		model.StateReceived, model.StateNormalized, model.StateEmailValidated,
		model.StateConfirmationSent, model.StateRawText, model.StateAnalyzed,
		model.StateCrmSynced, model.StateReportSent, model.StateDone,
	}, res.States)

	assert.Equal(t, []string{"Vacature Analyse - Acme BV - Monteur gezocht"}, f.crm.titles)
	assert.Equal(t, []string{"jan@acme.nl"}, f.mail.confirmations)
	assert.Equal(t, []string{"jan@acme.nl"}, f.mail.reports)
	assert.Equal(t, []int{7}, f.crm.delivered)
	assert.Empty(t, f.review.held)
	require.Len(t, f.audit.records, 1)
	assert.Equal(t, "done", f.audit.records[0].Result)
}

func TestProcess_ManualReviewHoldsReport(t *testing.T) {
	f := newFixture()
	res, err := f.orchestrator(Options{ManualReview: true}).Process(context.Background(), payload(vacancy))
	require.NoError(t, err)

	assert.True(t, res.AnalysisPending)
	assert.False(t, res.AnalysisSent)
	assert.Contains(t, res.States, model.StateReportPending)
	assert.NotContains(t, res.States, model.StateReportSent)
	assert.Empty(t, f.mail.reports)
	assert.Empty(t, f.crm.delivered)

	require.Len(t, f.review.held, 1)
	held := f.review.held[0]
	assert.Equal(t, 7, held.DealID)
	assert.Equal(t, "jan@acme.nl", held.Email)
	assert.Equal(t, "Jan", held.FirstName)
	assert.Equal(t, 28.0, held.Analysis.OverallScore)
}

func TestProcess_ManualReviewWithoutDeal(t *testing.T) {
	f := newFixture()
	f.crm.result = crm.SyncResult{}
	f.crm.err = errors.New("pipedrive down")

	res, err := f.orchestrator(Options{ManualReview: true}).Process(context.Background(), payload(vacancy))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.AnalysisPending)
	assert.False(t, res.AnalysisSent)
	assert.False(t, res.NoteAdded)
	assert.Empty(t, f.review.held)
	assert.Contains(t, res.States, model.StateCrmSynced)
}

func TestProcess_RejectsMissingEmail(t *testing.T) {
	f := newFixture()
	p := payload(vacancy)
	p["email"] = "geen-adres"

	res, err := f.orchestrator(Options{}).Process(context.Background(), p)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Acme BV", verr.Submission.Company)
	assert.False(t, res.Success)
	assert.Equal(t, model.StateRejected, res.States[len(res.States)-1])

	assert.Empty(t, f.mail.confirmations)
	assert.Empty(t, f.llm.inputs)
	assert.Empty(t, f.crm.titles)
	require.Len(t, f.audit.records, 1)
	assert.Equal(t, "rejected", f.audit.records[0].Result)
}

func TestProcess_MinTextLengthBoundary(t *testing.T) {
	for _, tc := range []struct {
		chars   int
		analyze bool
	}{{49, false}, {50, true}} {
		f := newFixture()
		text := strings.Repeat("x", tc.chars)
		res, err := f.orchestrator(Options{}).Process(context.Background(), payload(text))
		require.NoError(t, err)
		assert.Equal(t, tc.analyze, res.Analyzed, "chars=%d", tc.chars)
		assert.Equal(t, tc.analyze, len(f.llm.inputs) == 1, "chars=%d", tc.chars)
		if !tc.analyze {
			assert.Contains(t, res.States, model.StateAnalysisSkipped)
			assert.Empty(t, f.mail.reports)
			assert.True(t, res.ConfirmationSent)
		}
	}
}

func TestProcess_UsesExtractedText(t *testing.T) {
	f := newFixture()
	f.ext.text = "Servicetechnicus\n" + strings.Repeat("Uit het document. ", 5)
	p := payload("kort")
	p["attachment_url"] = "https://files.example/v.pdf"

	res, err := f.orchestrator(Options{}).Process(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, res.Extracted)
	assert.Contains(t, res.States, model.StateExtractedText)
	assert.Equal(t, []string{"https://files.example/v.pdf"}, f.ext.urls)
	require.Len(t, f.llm.inputs, 1)
	assert.Contains(t, f.llm.inputs[0].Text, "Uit het document")
	assert.Equal(t, []string{"Vacature Analyse - Acme BV - Servicetechnicus"}, f.crm.titles)
}

func TestProcess_ExtractionFallsBackToInlineText(t *testing.T) {
	f := newFixture()
	p := payload(vacancy)
	p["attachment_url"] = "https://files.example/scan.pdf"

	res, err := f.orchestrator(Options{}).Process(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, res.Extracted)
	assert.Contains(t, res.States, model.StateRawText)
	require.Len(t, f.llm.inputs, 1)
	assert.Contains(t, f.llm.inputs[0].Text, "ervaren monteur")
}

func TestProcess_AnalysisFailureStillSyncs(t *testing.T) {
	f := newFixture()
	f.llm.err = errors.New("overloaded")

	res, err := f.orchestrator(Options{}).Process(context.Background(), payload(vacancy))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Analyzed)
	assert.Nil(t, res.Score)
	assert.Contains(t, res.States, model.StateAnalysisSkipped)
	assert.Empty(t, f.mail.reports)

	require.Len(t, f.crm.notes[7], 1)
	assert.Contains(t, f.crm.notes[7][0], "Geen analyse beschikbaar")
}

func TestProcess_DealReuse(t *testing.T) {
	f := newFixture()
	f.crm.result = crm.SyncResult{PersonID: 5, DealID: 11, Reused: true}

	res, err := f.orchestrator(Options{}).Process(context.Background(), payload(vacancy))
	require.NoError(t, err)
	assert.True(t, res.DealReused)
	assert.Equal(t, 11, res.DealID)
	assert.Equal(t, []int{11}, f.crm.delivered)
}

func TestProcess_FailedReportSkipsCRMUpdate(t *testing.T) {
	f := newFixture()
	f.mail.reportOK = false

	res, err := f.orchestrator(Options{}).Process(context.Background(), payload(vacancy))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.AnalysisSent)
	assert.NotContains(t, res.States, model.StateReportSent)
	assert.Empty(t, f.crm.delivered)
}

func TestProcess_OptionalIntegrationsMissing(t *testing.T) {
	mail := &fakeNotifier{reportOK: true}
	o := New(Deps{Notifier: mail}, Options{})

	res, err := o.Process(context.Background(), payload(vacancy))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Analyzed)
	assert.Zero(t, res.DealID)
	assert.Equal(t, []string{"jan@acme.nl"}, mail.confirmations)
	assert.Contains(t, res.States, model.StateCrmSynced)
}
