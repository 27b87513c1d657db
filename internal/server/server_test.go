package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitin/kandidatentekort/internal/analysis"
	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/internal/model"
	"github.com/recruitin/kandidatentekort/internal/nurture"
	"github.com/recruitin/kandidatentekort/internal/pipeline"
	"github.com/recruitin/kandidatentekort/internal/review"
)

type fakePipeline struct {
	res    *model.ProcessResult
	err    error
	manual bool
	calls  int
}

func (f *fakePipeline) Process(_ context.Context, _ map[string]any) (*model.ProcessResult, error) {
	f.calls++
	return f.res, f.err
}

func (f *fakePipeline) ManualReview() bool { return f.manual }

type fakeReview struct {
	report   *model.PendingReport
	err      error
	tokenErr error
	pending  []model.PendingReport
	approved []int
}

func (f *fakeReview) Approve(_ context.Context, dealID int) (*model.PendingReport, error) {
	f.approved = append(f.approved, dealID)
	return f.report, f.err
}

func (f *fakeReview) VerifyToken(_ string, _ int) error { return f.tokenErr }

func (f *fakeReview) Pending(context.Context) ([]model.PendingReport, error) { return f.pending, nil }

type fakeStore struct {
	pingErr error
	failed  []model.FailedEmail
}

func (f *fakeStore) ListFailedEmails(context.Context, int) ([]model.FailedEmail, error) {
	return f.failed, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

type fakeNurture struct {
	mu      sync.Mutex
	running bool
	runs    int
	done    chan struct{}
}

func (f *fakeNurture) RunOnce(context.Context) (nurture.RunStats, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return nurture.RunStats{Sent: 2}, nil
}

func (f *fakeNurture) Status() nurture.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nurture.Status{Running: f.running, Runs: f.runs}
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, in analysis.Input) (*model.AnalysisResult, error) {
	if in.Text == "boom" {
		return nil, errors.New("overloaded")
	}
	return &model.AnalysisResult{OverallScore: 7, MaxScore: 10}, nil
}

type fakeConfirm struct{ to []string }

func (f *fakeConfirm) SendConfirmation(_ context.Context, to, _, _, _ string) bool {
	f.to = append(f.to, to)
	return true
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func TestHealth(t *testing.T) {
	s := New(config.ServerConfig{}, Deps{
		Pipeline:     &fakePipeline{manual: true},
		Store:        &fakeStore{},
		Integrations: map[string]bool{"email": true, "crm": false},
	})

	for _, path := range []string{"/", "/health"} {
		rr, body := do(t, s.Routes(), http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, true, body["manual_review"])
		assert.Equal(t, "ok", body["store"])
		assert.Equal(t, map[string]any{"email": true, "crm": false}, body["integrations"])
		assert.NotEmpty(t, rr.Header().Get("Content-Type"))
	}
}

func TestHealth_StoreDown(t *testing.T) {
	s := New(config.ServerConfig{}, Deps{Store: &fakeStore{pingErr: errors.New("gone")}})
	rr, body := do(t, s.Routes(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "unavailable", body["store"])
}

func TestWebhook_Success(t *testing.T) {
	p := &fakePipeline{res: &model.ProcessResult{Success: true, ConfirmationSent: true, AnalysisPending: true, DealID: 7}}
	s := New(config.ServerConfig{}, Deps{Pipeline: p})

	rr, body := do(t, s.Routes(), http.MethodPost, "/webhook/typeform", `{"form_response":{}}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["analysis_pending"])
	assert.Equal(t, float64(7), body["deal_id"])
}

func TestWebhook_ValidationError(t *testing.T) {
	p := &fakePipeline{
		res: &model.ProcessResult{States: []model.State{model.StateReceived, model.StateRejected}},
		err: &pipeline.ValidationError{Submission: model.Submission{Company: "Acme"}, Err: errors.New("email")},
	}
	s := New(config.ServerConfig{}, Deps{Pipeline: p})

	rr, body := do(t, s.Routes(), http.MethodPost, "/webhook/typeform", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])
	sub := body["submission"].(map[string]any)
	assert.Equal(t, "Acme", sub["company"])
}

func TestWebhook_InvalidJSON(t *testing.T) {
	p := &fakePipeline{}
	s := New(config.ServerConfig{}, Deps{Pipeline: p})

	rr, _ := do(t, s.Routes(), http.MethodPost, "/webhook/typeform", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, p.calls)
}

func TestWebhook_InternalError(t *testing.T) {
	s := New(config.ServerConfig{}, Deps{Pipeline: &fakePipeline{err: errors.New("kapot")}})
	rr, body := do(t, s.Routes(), http.MethodPost, "/webhook/typeform", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "kapot", body["error"])
}

func TestRecoverJSON(t *testing.T) {
	s := New(config.ServerConfig{}, Deps{})
	rr, body := do(t, s.Routes(), http.MethodPost, "/webhook/typeform", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "nil pointer")
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestApprove(t *testing.T) {
	sent := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		path   string
		review *fakeReview
		want   int
	}{
		{"sent", "/approve/7", &fakeReview{report: &model.PendingReport{DealID: 7, Email: "a@b.nl", SentAt: &sent}}, http.StatusOK},
		{"not found", "/approve/7", &fakeReview{err: review.ErrNotFound}, http.StatusNotFound},
		{"already sent", "/approve/7", &fakeReview{report: &model.PendingReport{SentAt: &sent}, err: review.ErrAlreadySent}, http.StatusConflict},
		{"send failed", "/approve/7", &fakeReview{err: review.ErrSendFailed}, http.StatusBadGateway},
		{"bad id", "/approve/abc", &fakeReview{}, http.StatusBadRequest},
		{"zero id", "/approve/0", &fakeReview{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(config.ServerConfig{}, Deps{Review: tt.review})
			rr, _ := do(t, s.Routes(), http.MethodPost, tt.path, "")
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestApproveLink_RendersConfirmPage(t *testing.T) {
	rv := &fakeReview{tokenErr: review.ErrInvalidToken}
	s := New(config.ServerConfig{}, Deps{Review: rv})

	rr, _ := do(t, s.Routes(), http.MethodGet, "/approve/7?token=bad", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, rv.approved)

	rv.tokenErr = nil
	req := httptest.NewRequest(http.MethodGet, "/approve/7?token=good", nil)
	rr = httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), `method="post" action="/approve/7"`)
	assert.Contains(t, rr.Body.String(), `value="good"`)
	assert.Empty(t, rv.approved, "GET must not send the report")
}

func TestApprove_FormToken(t *testing.T) {
	post := func(s *Server, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/approve/7", strings.NewReader(url.Values{"token": {token}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		s.Routes().ServeHTTP(rr, req)
		return rr
	}

	rv := &fakeReview{tokenErr: review.ErrInvalidToken}
	s := New(config.ServerConfig{}, Deps{Review: rv})
	assert.Equal(t, http.StatusForbidden, post(s, "bad").Code)
	assert.Empty(t, rv.approved)

	rv.tokenErr = nil
	rv.report = &model.PendingReport{DealID: 7, Email: "a@b.nl"}
	rr := post(s, "good")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []int{7}, rv.approved)
}

func TestApprove_ReviewDisabled(t *testing.T) {
	s := New(config.ServerConfig{}, Deps{})
	rr, _ := do(t, s.Routes(), http.MethodPost, "/approve/7", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPending(t *testing.T) {
	rv := &fakeReview{pending: []model.PendingReport{{
		DealID: 7, Email: "a@b.nl", Company: "Acme",
		Analysis: model.AnalysisResult{OverallScore: 28, MaxScore: 40},
	}}}
	st := &fakeStore{failed: []model.FailedEmail{{ID: "1", Recipient: "x@y.nl", Kind: "report"}}}
	s := New(config.ServerConfig{}, Deps{Review: rv, Store: st})

	rr, body := do(t, s.Routes(), http.MethodGet, "/pending", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), body["count"])
	items := body["pending"].([]any)
	first := items[0].(map[string]any)
	assert.Equal(t, float64(7), first["deal_id"])
	assert.Equal(t, float64(28), first["score"])
	assert.Len(t, body["failed_emails"], 1)
}

func TestNurtureRoutes(t *testing.T) {
	n := &fakeNurture{done: make(chan struct{})}
	s := New(config.ServerConfig{}, Deps{Nurture: n})

	rr, body := do(t, s.Routes(), http.MethodPost, "/nurture/run", "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "started", body["status"])

	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("nurture run not started")
	}

	rr, body = do(t, s.Routes(), http.MethodGet, "/nurture/status", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["enabled"])

	n.mu.Lock()
	n.running = true
	n.mu.Unlock()
	rr, _ = do(t, s.Routes(), http.MethodPost, "/nurture/run", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestNurtureRoutes_Disabled(t *testing.T) {
	s := New(config.ServerConfig{}, Deps{})
	rr, _ := do(t, s.Routes(), http.MethodPost, "/nurture/run", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr, body := do(t, s.Routes(), http.MethodGet, "/nurture/status", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, body["enabled"])
}

func TestDebugRoutes_OnlyWhenEnabled(t *testing.T) {
	s := New(config.ServerConfig{}, Deps{})
	rr, _ := do(t, s.Routes(), http.MethodPost, "/debug", `{}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDebugRoutes(t *testing.T) {
	confirm := &fakeConfirm{}
	s := New(config.ServerConfig{DebugRoutes: true}, Deps{Debug: Debug{
		Notifier:      confirm,
		Analyzer:      fakeAnalyzer{},
		TestRecipient: "ops@recruitin.nl",
	}})
	h := s.Routes()

	rr, body := do(t, h, http.MethodGet, "/test-email", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []string{"ops@recruitin.nl"}, confirm.to)

	rr, body = do(t, h, http.MethodPost, "/test-analysis", `{"text":"Monteur gezocht"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(7), body["analysis"].(map[string]any)["overall_score"])

	rr, _ = do(t, h, http.MethodPost, "/test-analysis", `{"text":"boom"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr, _ = do(t, h, http.MethodPost, "/test-analysis", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = do(t, h, http.MethodPost, "/debug", `{"email":"jan@acme.nl","bedrijf":"Acme"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "Acme", body["submission"].(map[string]any)["company"])

	rr, body = do(t, h, http.MethodPost, "/debug", `{"bedrijf":"Acme"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, body["valid"])
}

func TestCORS(t *testing.T) {
	s := New(config.ServerConfig{CORSOrigins: []string{"https://kandidatentekort.nl"}}, Deps{})
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://kandidatentekort.nl")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)

	assert.Equal(t, "https://kandidatentekort.nl", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := New(config.ServerConfig{Port: 0}, Deps{})
	s.http.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
