package crm

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/model"
	"github.com/recruitin/kandidatentekort/pkg/pipedrive"
)

// ErrNurtureFieldsUnset is returned when the deal custom field keys for
// nurture state are not configured.
var ErrNurtureFieldsUnset = eris.New("crm: nurture custom fields not configured")

const nurtureDateLayout = "2006-01-02"

// NurtureCandidate is an open deal that has a nurture sequence attached.
type NurtureCandidate struct {
	DealID    int
	Title     string
	Email     string
	FirstName string
	State     model.NurtureState
}

func (s *Sync) nurtureConfigured() bool {
	f := s.cfg.Fields
	return f.NurtureStep != "" && f.NurtureStart != ""
}

// NurtureStateOf reads the nurture state from deal custom fields. The
// second return is false when the deal has no sequence start date.
func (s *Sync) NurtureStateOf(d pipedrive.Deal) (model.NurtureState, bool) {
	f := s.cfg.Fields
	raw := d.FieldString(f.NurtureStart)
	if raw == "" {
		return model.NurtureState{}, false
	}
	start, err := parseNurtureDate(raw)
	if err != nil {
		zap.L().Warn("crm: bad nurture start date", zap.Int("deal_id", d.ID), zap.String("value", raw))
		return model.NurtureState{}, false
	}

	st := model.NurtureState{StartedAt: start, Status: model.NurtureActive}
	if v := d.FieldString(f.NurtureStep); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			st.LastStep = int(n)
		}
	}
	if v := strings.ToLower(d.FieldString(f.NurtureStatus)); v != "" {
		st.Status = model.NurtureStatus(v)
	}
	return st, true
}

func parseNurtureDate(v string) (time.Time, error) {
	if t, err := time.Parse(nurtureDateLayout, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateTime, v)
}

// StartNurture attaches a fresh sequence to the deal starting at at.
func (s *Sync) StartNurture(ctx context.Context, dealID int, at time.Time) error {
	if !s.nurtureConfigured() {
		return ErrNurtureFieldsUnset
	}
	fields := map[string]any{
		s.cfg.Fields.NurtureStep:  0,
		s.cfg.Fields.NurtureStart: at.Format(nurtureDateLayout),
	}
	if s.cfg.Fields.NurtureStatus != "" {
		fields[s.cfg.Fields.NurtureStatus] = string(model.NurtureActive)
	}
	_, err := s.client.UpdateDeal(ctx, dealID, fields)
	return eris.Wrapf(err, "crm: start nurture on deal %d", dealID)
}

// RecordNurtureStep stores step as the last sent step and completes the
// sequence after the final step.
func (s *Sync) RecordNurtureStep(ctx context.Context, dealID, step int) error {
	if !s.nurtureConfigured() {
		return ErrNurtureFieldsUnset
	}
	fields := map[string]any{s.cfg.Fields.NurtureStep: step}
	if step >= model.NurtureSteps && s.cfg.Fields.NurtureStatus != "" {
		fields[s.cfg.Fields.NurtureStatus] = string(model.NurtureCompleted)
	}
	_, err := s.client.UpdateDeal(ctx, dealID, fields)
	return eris.Wrapf(err, "crm: record nurture step %d on deal %d", step, dealID)
}

// MarkResponded halts the sequence of a deal whose contact replied.
func (s *Sync) MarkResponded(ctx context.Context, dealID int) error {
	if s.cfg.Fields.NurtureStatus == "" {
		return ErrNurtureFieldsUnset
	}
	_, err := s.client.UpdateDeal(ctx, dealID, map[string]any{
		s.cfg.Fields.NurtureStatus: string(model.NurtureResponded),
	})
	if err != nil {
		return eris.Wrapf(err, "crm: mark deal %d responded", dealID)
	}
	return s.AppendNote(ctx, dealID, "✉️ Contact heeft gereageerd, nurture-reeks gestopt.")
}

// ListNurtureCandidates returns open deals in the configured pipeline with
// an active, unfinished sequence and a contact email address.
func (s *Sync) ListNurtureCandidates(ctx context.Context) ([]NurtureCandidate, error) {
	if !s.nurtureConfigured() {
		return nil, ErrNurtureFieldsUnset
	}
	deals, err := s.client.ListDeals(ctx, "open")
	if err != nil {
		return nil, eris.Wrap(err, "crm: list deals")
	}

	var out []NurtureCandidate
	for _, d := range deals {
		if d.PipelineID != s.cfg.PipelineID {
			continue
		}
		st, ok := s.NurtureStateOf(d)
		if !ok || st.Halted() {
			continue
		}
		if len(d.Person.Emails) == 0 {
			zap.L().Debug("crm: nurture candidate without email", zap.Int("deal_id", d.ID))
			continue
		}
		out = append(out, NurtureCandidate{
			DealID:    d.ID,
			Title:     VacancyTitleFromDeal(d.Title),
			Email:     d.Person.Emails[0],
			FirstName: firstName(d.Person.Name),
			State:     st,
		})
	}
	return out, nil
}

func firstName(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return ""
}
