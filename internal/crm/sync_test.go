package crm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/pkg/pipedrive"
	"github.com/recruitin/kandidatentekort/pkg/pipedrive/mocks"
)

func testConfig() config.PipedriveConfig {
	return config.PipedriveConfig{
		PipelineID:       4,
		IntakeStageID:    21,
		ReportSentStage:  22,
		DealValue:        15000,
		Currency:         "EUR",
		PlaceholderNames: []string{"onbekend", "-"},
		Fields: config.PipedriveFieldMap{
			NurtureStep:   "step_key",
			NurtureStart:  "start_key",
			NurtureStatus: "status_key",
		},
	}
}

func newTestSync(t *testing.T) (*Sync, *mocks.MockClient) {
	t.Helper()
	m := &mocks.MockClient{}
	t.Cleanup(func() { m.AssertExpectations(t) })
	return New(m, testConfig()), m
}

func intPtr(v int) *int { return &v }

func TestFindPersonByEmail_CaseInsensitive(t *testing.T) {
	s, m := newTestSync(t)
	m.On("SearchPersons", mock.Anything, "Jan@Acme.nl").Return([]pipedrive.Person{
		{ID: 1, Emails: []string{"other@acme.nl"}},
		{ID: 2, Emails: []string{"jan@acme.nl"}},
	}, nil)

	id, err := s.FindPersonByEmail(context.Background(), "Jan@Acme.nl")
	require.NoError(t, err)
	assert.Equal(t, 2, id)
}

func TestFindPersonByEmail_NoExactMatch(t *testing.T) {
	s, m := newTestSync(t)
	m.On("SearchPersons", mock.Anything, "jan@acme.nl").Return([]pipedrive.Person{
		{ID: 1, Emails: []string{"jan@acme.nl.evil"}},
	}, nil)

	id, err := s.FindPersonByEmail(context.Background(), "jan@acme.nl")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestUpsertOrganization_Placeholder(t *testing.T) {
	s, _ := newTestSync(t)
	for _, name := range []string{"", "  ", "Onbekend", "-"} {
		id, err := s.UpsertOrganization(context.Background(), name)
		require.NoError(t, err)
		assert.Zero(t, id, name)
	}
}

func TestUpsertOrganization_ExistingAndNew(t *testing.T) {
	s, m := newTestSync(t)
	m.On("SearchOrganizations", mock.Anything, "Acme BV").
		Return([]pipedrive.Organization{{ID: 7, Name: "acme bv"}}, nil).Once()

	id, err := s.UpsertOrganization(context.Background(), " Acme BV ")
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	m.On("SearchOrganizations", mock.Anything, "Nieuw BV").Return(nil, errors.New("timeout")).Once()
	m.On("CreateOrganization", mock.Anything, "Nieuw BV").Return(&pipedrive.Organization{ID: 8, Name: "Nieuw BV"}, nil).Once()

	id, err = s.UpsertOrganization(context.Background(), "Nieuw BV")
	require.NoError(t, err)
	assert.Equal(t, 8, id)
}

func TestUpsertPerson_CreatesWhenMissing(t *testing.T) {
	s, m := newTestSync(t)
	m.On("SearchPersons", mock.Anything, "jan@acme.nl").Return([]pipedrive.Person{}, nil)
	m.On("CreatePerson", mock.Anything, pipedrive.PersonInput{
		Name: "Jan Jansen", Email: "jan@acme.nl", Phone: "0612345678", OrgID: intPtr(7),
	}).Return(&pipedrive.Person{ID: 11}, nil)

	id, err := s.UpsertPerson(context.Background(), PersonInput{
		FullName: "Jan Jansen", Email: "jan@acme.nl", Phone: "0612345678", OrgID: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, id)
}

func TestUpsertPerson_Existing(t *testing.T) {
	s, m := newTestSync(t)
	m.On("SearchPersons", mock.Anything, "jan@acme.nl").
		Return([]pipedrive.Person{{ID: 3, Emails: []string{"JAN@acme.nl"}}}, nil)

	id, err := s.UpsertPerson(context.Background(), PersonInput{Email: "jan@acme.nl"})
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	m.AssertNotCalled(t, "CreatePerson", mock.Anything, mock.Anything)
}

func TestCreateOrUpdateDeal_ReusesIntakeStageDeal(t *testing.T) {
	s, m := newTestSync(t)
	m.On("PersonDeals", mock.Anything, 3, "open").Return([]pipedrive.Deal{
		{ID: 90, Status: "open", PipelineID: 1, StageID: 21},
		{ID: 91, Status: "open", PipelineID: 4, StageID: 21},
	}, nil)
	m.On("UpdateDeal", mock.Anything, 91, map[string]any{"title": "Vacature Analyse - Acme"}).
		Return(&pipedrive.Deal{ID: 91}, nil)
	m.On("AddNote", mock.Anything, 91, mock.AnythingOfType("string")).Return(&pipedrive.Note{ID: 1}, nil)

	out, err := s.CreateOrUpdateDeal(context.Background(), DealRequest{Title: "Vacature Analyse - Acme", PersonID: 3})
	require.NoError(t, err)
	assert.Equal(t, DealOutcome{DealID: 91, Reused: true}, out)
	m.AssertNotCalled(t, "CreateDeal", mock.Anything, mock.Anything)
}

func TestCreateOrUpdateDeal_LaterStageCreatesNew(t *testing.T) {
	s, m := newTestSync(t)
	m.On("PersonDeals", mock.Anything, 3, "open").Return([]pipedrive.Deal{
		{ID: 91, Status: "open", PipelineID: 4, StageID: 22},
	}, nil)
	m.On("CreateDeal", mock.Anything, pipedrive.DealInput{
		Title:      "T",
		PersonID:   intPtr(3),
		PipelineID: 4,
		StageID:    21,
		Value:      15000,
		Currency:   "EUR",
	}).Return(&pipedrive.Deal{ID: 120}, nil)

	out, err := s.CreateOrUpdateDeal(context.Background(), DealRequest{Title: "T", PersonID: 3})
	require.NoError(t, err)
	assert.Equal(t, DealOutcome{DealID: 120}, out)
}

func TestCreateOrUpdateDeal_SkipsLaterStageDeal(t *testing.T) {
	s, m := newTestSync(t)
	m.On("PersonDeals", mock.Anything, 3, "open").Return([]pipedrive.Deal{
		{ID: 100, Status: "open", PipelineID: 4, StageID: 22},
		{ID: 200, Status: "open", PipelineID: 4, StageID: 21},
	}, nil)
	m.On("UpdateDeal", mock.Anything, 200, map[string]any{"title": "T"}).
		Return(&pipedrive.Deal{ID: 200}, nil)
	m.On("AddNote", mock.Anything, 200, mock.AnythingOfType("string")).Return(&pipedrive.Note{ID: 2}, nil)

	out, err := s.CreateOrUpdateDeal(context.Background(), DealRequest{Title: "T", PersonID: 3})
	require.NoError(t, err)
	assert.Equal(t, DealOutcome{DealID: 200, Reused: true}, out)
	m.AssertNotCalled(t, "CreateDeal", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "UpdateDeal", mock.Anything, 100, mock.Anything)
}

func TestSyncSubmission_BestEffort(t *testing.T) {
	s, m := newTestSync(t)
	m.On("SearchOrganizations", mock.Anything, "Acme").Return([]pipedrive.Organization{}, nil)
	m.On("CreateOrganization", mock.Anything, "Acme").Return(nil, errors.New("500"))
	m.On("SearchPersons", mock.Anything, "jan@acme.nl").Return(nil, errors.New("timeout"))
	m.On("CreatePerson", mock.Anything, mock.Anything).Return(nil, errors.New("500"))
	m.On("CreateDeal", mock.Anything, mock.MatchedBy(func(in pipedrive.DealInput) bool {
		return in.PersonID == nil && in.OrgID == nil && in.Title == "Vacature Analyse - Acme"
	})).Return(&pipedrive.Deal{ID: 5}, nil)

	res, err := s.SyncSubmission(context.Background(),
		Contact{FullName: "Jan", Email: "jan@acme.nl", Company: "Acme"}, "Vacature Analyse - Acme")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{DealID: 5}, res)
}

func TestSyncSubmission_DealFailure(t *testing.T) {
	s, m := newTestSync(t)
	m.On("SearchPersons", mock.Anything, "jan@acme.nl").Return([]pipedrive.Person{{ID: 3, Emails: []string{"jan@acme.nl"}}}, nil)
	m.On("PersonDeals", mock.Anything, 3, "open").Return([]pipedrive.Deal{}, nil)
	m.On("CreateDeal", mock.Anything, mock.Anything).Return(nil, errors.New("invalid stage"))

	res, err := s.SyncSubmission(context.Background(), Contact{Email: "jan@acme.nl"}, "T")
	require.Error(t, err)
	assert.Equal(t, 3, res.PersonID)
	assert.Zero(t, res.DealID)
}

func TestMoveToStage(t *testing.T) {
	s, m := newTestSync(t)
	m.On("UpdateDeal", mock.Anything, 5, map[string]any{"stage_id": 22}).Return(&pipedrive.Deal{ID: 5}, nil)

	require.NoError(t, s.MoveToReportSent(context.Background(), 5))
	require.NoError(t, s.MoveToStage(context.Background(), 5, 0))
}

func TestAppendNote_NoDeal(t *testing.T) {
	s, _ := newTestSync(t)
	assert.Error(t, s.AppendNote(context.Background(), 0, "x"))
}

func TestReportDelivered(t *testing.T) {
	s, m := newTestSync(t)
	at := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	m.On("AddNote", mock.Anything, 5, "✅ Analyse-rapport per e-mail verstuurd op 01-06-2025 10:30").Return(&pipedrive.Note{}, nil)
	m.On("UpdateDeal", mock.Anything, 5, map[string]any{"stage_id": 22}).Return(nil, errors.New("boom"))
	m.On("UpdateDeal", mock.Anything, 5, map[string]any{
		"step_key": 0, "start_key": "2025-06-01", "status_key": "active",
	}).Return(&pipedrive.Deal{}, nil)

	s.ReportDelivered(context.Background(), 5, at)
}
