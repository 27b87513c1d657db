// Package review holds analysis reports back for manual approval and
// releases them on request.
package review

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/model"
	"github.com/recruitin/kandidatentekort/internal/store"
)

var (
	// ErrNotFound is returned when no report is held for the deal.
	ErrNotFound = eris.New("review: no pending report for deal")
	// ErrAlreadySent is returned when the held report was already released.
	ErrAlreadySent = eris.New("review: report already sent")
	// ErrSendFailed is returned when the report email could not be delivered.
	ErrSendFailed = eris.New("review: report email failed")
)

// ReportStore persists held reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r model.PendingReport) error
	GetReport(ctx context.Context, dealID int) (*model.PendingReport, error)
	MarkReportSent(ctx context.Context, dealID int, at time.Time) error
	ListPendingReports(ctx context.Context) ([]model.PendingReport, error)
}

// CRM records review events on the deal.
type CRM interface {
	AppendNote(ctx context.Context, dealID int, content string) error
	ReportDelivered(ctx context.Context, dealID int, at time.Time)
}

// ReportSender sends the analysis report email.
type ReportSender interface {
	SendAnalysisReport(ctx context.Context, to, firstName, company, title string, a model.AnalysisResult, originalText string) bool
}

// Notifier posts internal chat messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Service implements hold, approve and listing of pending reports.
type Service struct {
	store   ReportStore
	crm     CRM
	mail    ReportSender
	chat    Notifier
	signer  *Signer
	baseURL string
	now     func() time.Time
}

// NewService creates a Service. crm and chat may be nil.
func NewService(st ReportStore, crm CRM, mail ReportSender, chat Notifier, signer *Signer, publicBaseURL string) *Service {
	return &Service{
		store:   st,
		crm:     crm,
		mail:    mail,
		chat:    chat,
		signer:  signer,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		now:     time.Now,
	}
}

// Hold stores r for later approval, notes it on the deal and notifies the
// team chat. Only the store write can fail the call.
func (s *Service) Hold(ctx context.Context, r model.PendingReport) error {
	if r.DealID == 0 {
		return eris.New("review: hold requires a deal id")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if err := s.store.SaveReport(ctx, r); err != nil {
		return eris.Wrapf(err, "review: hold deal %d", r.DealID)
	}

	log := zap.L().With(zap.Int("deal_id", r.DealID), zap.String("email", r.Email))
	if s.crm != nil {
		note := fmt.Sprintf("⏳ Analyse (score %.1f/10) wacht op handmatige review voordat het rapport wordt verstuurd.", r.Analysis.Score10)
		if err := s.crm.AppendNote(ctx, r.DealID, note); err != nil {
			log.Warn("review: pending note failed", zap.Error(err))
		}
	}
	if s.chat != nil {
		if err := s.chat.Notify(ctx, s.pendingMessage(r)); err != nil {
			log.Warn("review: chat notification failed", zap.Error(err))
		}
	}
	log.Info("review: report held for approval")
	return nil
}

func (s *Service) pendingMessage(r model.PendingReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 Nieuwe vacature-analyse wacht op review\n")
	fmt.Fprintf(&b, "Bedrijf: %s\nVacature: %s\nContact: %s\n", r.Company, r.Title, r.Email)
	fmt.Fprintf(&b, "Score: %.1f/10 (%s)\n", r.Analysis.Score10, r.Analysis.ScoreLabel())
	fmt.Fprintf(&b, "Deal: %d\n", r.DealID)
	if link := s.ApproveURL(r.DealID); link != "" {
		fmt.Fprintf(&b, "Goedkeuren en versturen: %s", link)
	} else {
		fmt.Fprintf(&b, "Goedkeuren: POST /approve/%d", r.DealID)
	}
	return b.String()
}

// ApproveURL returns a signed approval link, or "" when no public base URL
// or secret is configured.
func (s *Service) ApproveURL(dealID int) string {
	if s.baseURL == "" || !s.signer.Enabled() {
		return ""
	}
	token, err := s.signer.Issue(dealID)
	if err != nil {
		zap.L().Warn("review: issue approval token", zap.Int("deal_id", dealID), zap.Error(err))
		return ""
	}
	return fmt.Sprintf("%s/approve/%d?token=%s", s.baseURL, dealID, url.QueryEscape(token))
}

// VerifyToken checks an approval link token for dealID.
func (s *Service) VerifyToken(token string, dealID int) error {
	return s.signer.Verify(token, dealID)
}

// Approve sends the held report for dealID and marks it sent.
func (s *Service) Approve(ctx context.Context, dealID int) (*model.PendingReport, error) {
	r, err := s.store.GetReport(ctx, dealID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "review: load deal %d", dealID)
	}
	if r.SentAt != nil {
		return r, ErrAlreadySent
	}

	if !s.mail.SendAnalysisReport(ctx, r.Email, r.FirstName, r.Company, r.Title, r.Analysis, r.OriginalText) {
		return r, ErrSendFailed
	}

	now := s.now().UTC()
	if err := s.store.MarkReportSent(ctx, dealID, now); err != nil {
		// The email went out; a failed mark only risks a duplicate later.
		zap.L().Error("review: mark sent failed", zap.Int("deal_id", dealID), zap.Error(err))
	}
	r.SentAt = &now
	if s.crm != nil {
		s.crm.ReportDelivered(ctx, dealID, now)
	}
	zap.L().Info("review: report approved and sent", zap.Int("deal_id", dealID), zap.String("email", r.Email))
	return r, nil
}

// Pending lists held reports that have not been sent.
func (s *Service) Pending(ctx context.Context) ([]model.PendingReport, error) {
	out, err := s.store.ListPendingReports(ctx)
	return out, eris.Wrap(err, "review: list pending")
}
