// Package notify renders and delivers the transactional emails and the
// internal chat notifications.
package notify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/model"
)

// ErrUnknownStep is returned for a nurture step without a template.
var ErrUnknownStep = eris.New("notify: unknown nurture step")

// Email kinds recorded with failed sends.
const (
	KindConfirmation = "confirmation"
	KindReport       = "report"
	KindNurture      = "nurture"
)

// FailureRecorder persists failed sends for later inspection.
type FailureRecorder interface {
	RecordFailedEmail(ctx context.Context, fe model.FailedEmail) (string, error)
}

// Dispatcher renders emails and hands them to a Mailer. Send failures are
// logged, recorded and reported as false; they never propagate.
type Dispatcher struct {
	mailer   Mailer
	render   *Renderer
	failures FailureRecorder
}

// NewDispatcher creates a Dispatcher. failures may be nil.
func NewDispatcher(m Mailer, r *Renderer, failures FailureRecorder) *Dispatcher {
	return &Dispatcher{mailer: m, render: r, failures: failures}
}

// Renderer returns the template renderer.
func (d *Dispatcher) Renderer() *Renderer { return d.render }

// SendConfirmation sends the receipt email.
func (d *Dispatcher) SendConfirmation(ctx context.Context, to, firstName, company, title string) bool {
	email, err := d.render.Confirmation(ConfirmationView{FirstName: firstName, Company: company, Title: title})
	if err != nil {
		zap.L().Error("notify: render confirmation", zap.String("email", to), zap.Error(err))
		return false
	}
	return d.deliver(ctx, KindConfirmation, to, email)
}

// SendAnalysisReport sends the analysis report.
func (d *Dispatcher) SendAnalysisReport(ctx context.Context, to, firstName, company, title string, a model.AnalysisResult, originalText string) bool {
	email, err := d.render.Report(d.render.NewReportView(firstName, company, title, a, originalText))
	if err != nil {
		zap.L().Error("notify: render report", zap.String("email", to), zap.Error(err))
		return false
	}
	return d.deliver(ctx, KindReport, to, email)
}

// SendNurtureStep sends step (1..8) of the nurture sequence. An unknown
// step is an error; a delivery failure is reported as false.
func (d *Dispatcher) SendNurtureStep(ctx context.Context, to string, step int, firstName, title string) (bool, error) {
	email, err := d.render.NurtureStep(step, NurtureView{FirstName: firstName, Title: title})
	if err != nil {
		return false, err
	}
	return d.deliver(ctx, KindNurture, to, email), nil
}

func (d *Dispatcher) deliver(ctx context.Context, kind, to string, email Email) bool {
	err := d.mailer.Send(ctx, Message{To: to, Subject: email.Subject, HTML: email.HTML, Text: email.Text})
	if err == nil {
		zap.L().Info("notify: email sent", zap.String("kind", kind), zap.String("email", to))
		return true
	}

	zap.L().Error("notify: email failed",
		zap.String("kind", kind),
		zap.String("email", to),
		zap.Error(err),
	)
	if d.failures != nil {
		if _, rerr := d.failures.RecordFailedEmail(ctx, model.FailedEmail{
			Recipient: to,
			Subject:   email.Subject,
			Kind:      kind,
			Error:     err.Error(),
			CreatedAt: time.Now().UTC(),
		}); rerr != nil {
			zap.L().Warn("notify: record failed email", zap.Error(rerr))
		}
	}
	return false
}
