// Package crm keeps organizations, persons, deals and notes in Pipedrive in
// step with incoming submissions.
package crm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/pkg/pipedrive"
)

// Sync wraps a pipedrive.Client with the pipeline layout from config.
type Sync struct {
	client       pipedrive.Client
	cfg          config.PipedriveConfig
	placeholders map[string]struct{}
}

// New creates a Sync.
func New(client pipedrive.Client, cfg config.PipedriveConfig) *Sync {
	ph := make(map[string]struct{}, len(cfg.PlaceholderNames))
	for _, n := range cfg.PlaceholderNames {
		ph[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	return &Sync{client: client, cfg: cfg, placeholders: ph}
}

// FindPersonByEmail returns the id of the person whose email list contains
// email (case-insensitive), or 0 when there is none.
func (s *Sync) FindPersonByEmail(ctx context.Context, email string) (int, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, nil
	}
	persons, err := s.client.SearchPersons(ctx, email)
	if err != nil {
		return 0, eris.Wrap(err, "crm: find person")
	}
	for _, p := range persons {
		if p.HasEmail(email) {
			return p.ID, nil
		}
	}
	return 0, nil
}

// IsPlaceholder reports whether name is empty or one of the configured
// placeholder values ("onbekend", "-", ...).
func (s *Sync) IsPlaceholder(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return true
	}
	_, ok := s.placeholders[name]
	return ok
}

// UpsertOrganization returns the id of the organization called name,
// creating it when no exact match exists. Placeholder names yield 0.
func (s *Sync) UpsertOrganization(ctx context.Context, name string) (int, error) {
	if s.IsPlaceholder(name) {
		return 0, nil
	}
	name = strings.TrimSpace(name)

	orgs, err := s.client.SearchOrganizations(ctx, name)
	if err != nil {
		// Search failure does not block creation.
		zap.L().Warn("crm: organization search failed", zap.String("org", name), zap.Error(err))
	}
	for _, o := range orgs {
		if strings.EqualFold(strings.TrimSpace(o.Name), name) {
			return o.ID, nil
		}
	}

	org, err := s.client.CreateOrganization(ctx, name)
	if err != nil {
		return 0, eris.Wrap(err, "crm: create organization")
	}
	if org == nil {
		return 0, eris.New("crm: create organization: empty response")
	}
	return org.ID, nil
}

// PersonInput describes the contact to upsert.
type PersonInput struct {
	FullName string
	Email    string
	Phone    string
	OrgID    int
}

// UpsertPerson returns the id of the person with in.Email, creating the
// person when none is found.
func (s *Sync) UpsertPerson(ctx context.Context, in PersonInput) (int, error) {
	id, err := s.FindPersonByEmail(ctx, in.Email)
	if err != nil {
		zap.L().Warn("crm: person lookup failed, creating", zap.String("email", in.Email), zap.Error(err))
	}
	if id != 0 {
		return id, nil
	}

	name := strings.TrimSpace(in.FullName)
	if name == "" {
		name = in.Email
	}
	p, err := s.client.CreatePerson(ctx, pipedrive.PersonInput{
		Name:  name,
		Email: in.Email,
		Phone: in.Phone,
		OrgID: optionalID(in.OrgID),
	})
	if err != nil {
		return 0, eris.Wrap(err, "crm: create person")
	}
	if p == nil {
		return 0, eris.New("crm: create person: empty response")
	}
	return p.ID, nil
}

// FindOpenDealInPipeline returns the first open deal of personID that sits
// in the intake stage of the configured pipeline, or nil. Deals in later
// stages are skipped.
func (s *Sync) FindOpenDealInPipeline(ctx context.Context, personID int) (*pipedrive.Deal, error) {
	if personID == 0 {
		return nil, nil
	}
	deals, err := s.client.PersonDeals(ctx, personID, "open")
	if err != nil {
		return nil, eris.Wrap(err, "crm: person deals")
	}
	for i := range deals {
		d := deals[i]
		if d.Status == "open" && d.PipelineID == s.cfg.PipelineID && d.StageID == s.cfg.IntakeStageID {
			return &deals[i], nil
		}
	}
	return nil, nil
}

// DealRequest describes the deal for one submission.
type DealRequest struct {
	Title    string
	PersonID int
	OrgID    int
}

// DealOutcome reports the deal that was written.
type DealOutcome struct {
	DealID int
	Reused bool
}

// CreateOrUpdateDeal reuses the person's open deal when it is still in the
// intake stage of the configured pipeline; otherwise it creates a new deal.
func (s *Sync) CreateOrUpdateDeal(ctx context.Context, req DealRequest) (DealOutcome, error) {
	existing, err := s.FindOpenDealInPipeline(ctx, req.PersonID)
	if err != nil {
		zap.L().Warn("crm: open deal lookup failed, creating new deal",
			zap.Int("person_id", req.PersonID), zap.Error(err))
	}

	if existing != nil {
		if _, err := s.client.UpdateDeal(ctx, existing.ID, map[string]any{"title": req.Title}); err != nil {
			zap.L().Warn("crm: update deal title failed", zap.Int("deal_id", existing.ID), zap.Error(err))
		}
		if err := s.AppendNote(ctx, existing.ID, "🔁 Nieuwe aanvraag ontvangen via het formulier: "+req.Title); err != nil {
			zap.L().Warn("crm: returning submitter note failed", zap.Int("deal_id", existing.ID), zap.Error(err))
		}
		return DealOutcome{DealID: existing.ID, Reused: true}, nil
	}

	deal, err := s.client.CreateDeal(ctx, pipedrive.DealInput{
		Title:      req.Title,
		PersonID:   optionalID(req.PersonID),
		OrgID:      optionalID(req.OrgID),
		PipelineID: s.cfg.PipelineID,
		StageID:    s.cfg.IntakeStageID,
		Value:      s.cfg.DealValue,
		Currency:   s.cfg.Currency,
	})
	if err != nil {
		return DealOutcome{}, eris.Wrap(err, "crm: create deal")
	}
	if deal == nil {
		return DealOutcome{}, eris.New("crm: create deal: empty response")
	}
	return DealOutcome{DealID: deal.ID}, nil
}

// AppendNote adds a note to a deal. Notes are never edited or removed.
func (s *Sync) AppendNote(ctx context.Context, dealID int, content string) error {
	if dealID == 0 {
		return eris.New("crm: append note: no deal")
	}
	_, err := s.client.AddNote(ctx, dealID, content)
	return eris.Wrapf(err, "crm: append note to deal %d", dealID)
}

// MoveToStage moves a deal to stageID. A zero stage is a no-op.
func (s *Sync) MoveToStage(ctx context.Context, dealID, stageID int) error {
	if dealID == 0 || stageID == 0 {
		return nil
	}
	_, err := s.client.UpdateDeal(ctx, dealID, map[string]any{"stage_id": stageID})
	return eris.Wrapf(err, "crm: move deal %d to stage %d", dealID, stageID)
}

// MoveToReportSent moves a deal to the configured "report sent" stage.
func (s *Sync) MoveToReportSent(ctx context.Context, dealID int) error {
	return s.MoveToStage(ctx, dealID, s.cfg.ReportSentStage)
}

// ReportDelivered records a sent analysis report on the deal: a note, the
// move to the "report sent" stage and the start of the nurture sequence.
// Failures are logged only.
func (s *Sync) ReportDelivered(ctx context.Context, dealID int, at time.Time) {
	if dealID == 0 {
		return
	}
	log := zap.L().With(zap.Int("deal_id", dealID))
	if err := s.AppendNote(ctx, dealID, "✅ Analyse-rapport per e-mail verstuurd op "+at.Format("02-01-2006 15:04")); err != nil {
		log.Warn("crm: report note failed", zap.Error(err))
	}
	if err := s.MoveToReportSent(ctx, dealID); err != nil {
		log.Warn("crm: move to report sent stage failed", zap.Error(err))
	}
	if err := s.StartNurture(ctx, dealID, at); err != nil && !errors.Is(err, ErrNurtureFieldsUnset) {
		log.Warn("crm: start nurture failed", zap.Error(err))
	}
}

// Contact is the submitter data written to the CRM.
type Contact struct {
	FullName string
	Email    string
	Phone    string
	Company  string
}

// SyncResult holds the ids written by SyncSubmission. Zero means the record
// could not be written.
type SyncResult struct {
	OrgID    int
	PersonID int
	DealID   int
	Reused   bool
}

// SyncSubmission upserts organization, person and deal. Each step is best
// effort: a failed organization or person still lets the deal be created
// without that reference. The returned error is only the deal failure.
func (s *Sync) SyncSubmission(ctx context.Context, c Contact, title string) (SyncResult, error) {
	var res SyncResult
	log := zap.L().With(zap.String("email", c.Email))

	orgID, err := s.UpsertOrganization(ctx, c.Company)
	if err != nil {
		log.Warn("crm: organization upsert failed", zap.String("org", c.Company), zap.Error(err))
	}
	res.OrgID = orgID

	personID, err := s.UpsertPerson(ctx, PersonInput{
		FullName: c.FullName,
		Email:    c.Email,
		Phone:    c.Phone,
		OrgID:    orgID,
	})
	if err != nil {
		log.Warn("crm: person upsert failed", zap.Error(err))
	}
	res.PersonID = personID

	out, err := s.CreateOrUpdateDeal(ctx, DealRequest{Title: title, PersonID: personID, OrgID: orgID})
	if err != nil {
		log.Error("crm: deal sync failed",
			zap.Int("person_id", personID), zap.Int("org_id", orgID), zap.Error(err))
		return res, err
	}
	res.DealID = out.DealID
	res.Reused = out.Reused

	log.Info("crm: synced",
		zap.Int("deal_id", res.DealID),
		zap.Int("person_id", res.PersonID),
		zap.Int("org_id", res.OrgID),
		zap.Bool("reused", res.Reused),
	)
	return res, nil
}

func optionalID(id int) *int {
	if id == 0 {
		return nil
	}
	return &id
}
