// Package pipeline processes one form submission end to end: normalize,
// confirm, extract, analyse, sync to the CRM and deliver or hold the report.
package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/analysis"
	"github.com/recruitin/kandidatentekort/internal/crm"
	"github.com/recruitin/kandidatentekort/internal/intake"
	"github.com/recruitin/kandidatentekort/internal/model"
)

// DefaultMinTextLength is the shortest vacancy text (in characters) that
// is sent for analysis.
const DefaultMinTextLength = 50

// ValidationError rejects a submission without a usable email address.
type ValidationError struct {
	Submission model.Submission
	Err        error
}

func (e *ValidationError) Error() string {
	return "pipeline: invalid submission: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Extractor downloads an attachment and returns its text, or "".
type Extractor interface {
	Text(ctx context.Context, url string) string
}

// Analyzer produces the vacancy analysis.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (*model.AnalysisResult, error)
}

// CRM is the subset of crm.Sync used per submission.
type CRM interface {
	SyncSubmission(ctx context.Context, c crm.Contact, title string) (crm.SyncResult, error)
	AppendNote(ctx context.Context, dealID int, content string) error
	ReportDelivered(ctx context.Context, dealID int, at time.Time)
}

// Notifier sends the submitter emails.
type Notifier interface {
	SendConfirmation(ctx context.Context, to, firstName, company, title string) bool
	SendAnalysisReport(ctx context.Context, to, firstName, company, title string, a model.AnalysisResult, originalText string) bool
}

// Reviewer holds reports for manual approval.
type Reviewer interface {
	Hold(ctx context.Context, r model.PendingReport) error
}

// AuditLog records every processed submission.
type AuditLog interface {
	RecordSubmission(ctx context.Context, rec model.SubmissionRecord) (string, error)
}

// Deps are the collaborators of an Orchestrator. Analyzer, CRM, Reviewer
// and Audit may be nil when the integration is not configured.
type Deps struct {
	Layouts   intake.Layouts
	Extractor Extractor
	Analyzer  Analyzer
	CRM       CRM
	Notifier  Notifier
	Reviewer  Reviewer
	Audit     AuditLog
}

// Options tune the orchestrator.
type Options struct {
	ManualReview  bool
	MinTextLength int
}

// Orchestrator runs the submission state machine. Every step after
// validation is best effort.
type Orchestrator struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = DefaultMinTextLength
	}
	if deps.Layouts == nil {
		deps.Layouts = intake.DefaultLayouts()
	}
	return &Orchestrator{deps: deps, opts: opts, now: time.Now}
}

// ManualReview reports whether reports are held for approval.
func (o *Orchestrator) ManualReview() bool { return o.opts.ManualReview }

// Process handles one webhook payload. A *ValidationError is returned when
// no valid email is found; the result is returned in every case.
func (o *Orchestrator) Process(ctx context.Context, payload map[string]any) (*model.ProcessResult, error) {
	res := &model.ProcessResult{States: []model.State{model.StateReceived}}

	sub := intake.Normalize(payload, o.deps.Layouts)
	res.States = append(res.States, model.StateNormalized)

	if err := sub.Validate(); err != nil {
		res.States = append(res.States, model.StateRejected)
		zap.L().Warn("pipeline: submission rejected", zap.String("email", sub.Email), zap.Error(err))
		o.audit(ctx, sub, res, "rejected")
		return res, &ValidationError{Submission: sub, Err: err}
	}
	res.States = append(res.States, model.StateEmailValidated)

	log := zap.L().With(zap.String("email", sub.Email), zap.String("company", sub.Company))
	log.Info("pipeline: processing submission", zap.String("submission_id", sub.SubmissionID))

	res.ConfirmationSent = o.deps.Notifier.SendConfirmation(ctx, sub.Email, sub.FirstName, sub.Company, sub.VacancyTitle)
	res.States = append(res.States, model.StateConfirmationSent)

	sub = o.extract(ctx, sub, res)

	a := o.analyze(ctx, sub, res)
	res.LeadScore = LeadScore(sub, a)

	o.syncCRM(ctx, sub, a, res)
	o.deliver(ctx, sub, a, res)

	res.States = append(res.States, model.StateDone)
	res.Success = true
	o.audit(ctx, sub, res, "done")

	log.Info("pipeline: submission processed",
		zap.Int("deal_id", res.DealID),
		zap.Bool("analyzed", res.Analyzed),
		zap.Bool("analysis_sent", res.AnalysisSent),
		zap.Bool("analysis_pending", res.AnalysisPending),
		zap.Int("lead_score", res.LeadScore),
	)
	return res, nil
}

func (o *Orchestrator) extract(ctx context.Context, sub model.Submission, res *model.ProcessResult) model.Submission {
	if sub.AttachmentURL == "" || o.deps.Extractor == nil {
		res.States = append(res.States, model.StateRawText)
		return sub
	}
	text := strings.TrimSpace(o.deps.Extractor.Text(ctx, sub.AttachmentURL))
	if utf8.RuneCountInString(text) < o.opts.MinTextLength {
		zap.L().Info("pipeline: extraction empty or short, using inline text",
			zap.String("url", sub.AttachmentURL), zap.Int("chars", utf8.RuneCountInString(text)))
		res.States = append(res.States, model.StateRawText)
		return sub
	}
	res.Extracted = true
	res.States = append(res.States, model.StateExtractedText)
	return sub.WithVacancyText(text)
}

func (o *Orchestrator) analyze(ctx context.Context, sub model.Submission, res *model.ProcessResult) *model.AnalysisResult {
	skip := func(reason string, fields ...zap.Field) *model.AnalysisResult {
		zap.L().Info("pipeline: analysis skipped", append(fields, zap.String("reason", reason))...)
		res.States = append(res.States, model.StateAnalysisSkipped)
		return nil
	}

	n := utf8.RuneCountInString(strings.TrimSpace(sub.VacancyText))
	if n < o.opts.MinTextLength {
		return skip("text too short", zap.Int("chars", n))
	}
	if o.deps.Analyzer == nil {
		return skip("analyzer not configured")
	}

	a, err := o.deps.Analyzer.Analyze(ctx, analysis.Input{
		Text:    sub.VacancyText,
		Company: sub.Company,
		Sector:  sub.Sector,
		Goal:    sub.Goal,
	})
	if err != nil || a == nil {
		zap.L().Warn("pipeline: analysis failed", zap.String("email", sub.Email), zap.Error(err))
		res.States = append(res.States, model.StateAnalysisSkipped)
		return nil
	}

	res.Analyzed = true
	res.Analysis = a
	score, maxScore := a.OverallScore, a.MaxScore
	res.Score, res.MaxScore = &score, &maxScore
	res.States = append(res.States, model.StateAnalyzed)
	return a
}

func (o *Orchestrator) syncCRM(ctx context.Context, sub model.Submission, a *model.AnalysisResult, res *model.ProcessResult) {
	defer func() { res.States = append(res.States, model.StateCrmSynced) }()
	if o.deps.CRM == nil {
		return
	}

	out, err := o.deps.CRM.SyncSubmission(ctx, crm.Contact{
		FullName: sub.FullName,
		Email:    sub.Email,
		Phone:    sub.Phone,
		Company:  sub.Company,
	}, crm.DealTitle(sub.Company, sub.VacancyTitle))
	res.OrgID, res.PersonID, res.DealID, res.DealReused = out.OrgID, out.PersonID, out.DealID, out.Reused
	if err != nil || out.DealID == 0 {
		return
	}

	if err := o.deps.CRM.AppendNote(ctx, out.DealID, crm.SummaryNote(sub, a, res.LeadScore)); err != nil {
		zap.L().Warn("pipeline: analysis note failed", zap.Int("deal_id", out.DealID), zap.Error(err))
		return
	}
	res.NoteAdded = true
}

func (o *Orchestrator) deliver(ctx context.Context, sub model.Submission, a *model.AnalysisResult, res *model.ProcessResult) {
	if a == nil {
		return
	}

	if o.opts.ManualReview && o.deps.Reviewer != nil {
		if res.DealID == 0 {
			zap.L().Error("pipeline: manual review needs a deal, report not held",
				zap.String("email", sub.Email))
			return
		}
		err := o.deps.Reviewer.Hold(ctx, model.PendingReport{
			DealID:       res.DealID,
			Email:        sub.Email,
			FirstName:    sub.FirstName,
			Company:      sub.Company,
			Title:        sub.VacancyTitle,
			OriginalText: sub.VacancyText,
			Analysis:     *a,
			CreatedAt:    o.now().UTC(),
		})
		if err != nil {
			zap.L().Error("pipeline: hold report failed", zap.Int("deal_id", res.DealID), zap.Error(err))
			return
		}
		res.AnalysisPending = true
		res.States = append(res.States, model.StateReportPending)
		return
	}

	res.AnalysisSent = o.deps.Notifier.SendAnalysisReport(ctx, sub.Email, sub.FirstName, sub.Company, sub.VacancyTitle, *a, sub.VacancyText)
	if !res.AnalysisSent {
		return
	}
	res.States = append(res.States, model.StateReportSent)
	if o.deps.CRM != nil && res.DealID != 0 {
		o.deps.CRM.ReportDelivered(ctx, res.DealID, o.now())
	}
}

func (o *Orchestrator) audit(ctx context.Context, sub model.Submission, res *model.ProcessResult, outcome string) {
	if o.deps.Audit == nil {
		return
	}
	if _, err := o.deps.Audit.RecordSubmission(ctx, model.SubmissionRecord{
		Submission: sub,
		Result:     outcome,
		DealID:     res.DealID,
		CreatedAt:  o.now().UTC(),
	}); err != nil {
		zap.L().Warn("pipeline: audit record failed", zap.Error(err))
	}
}
