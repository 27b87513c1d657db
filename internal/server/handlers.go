package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/model"
	"github.com/recruitin/kandidatentekort/internal/nurture"
	"github.com/recruitin/kandidatentekort/internal/pipeline"
	"github.com/recruitin/kandidatentekort/internal/review"
)

const maxBodyBytes = 5 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"service":       "kandidatentekort",
		"integrations":  s.deps.Integrations,
		"manual_review": s.deps.Pipeline != nil && s.deps.Pipeline.ManualReview(),
	}
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			zap.L().Warn("server: store ping failed", zap.Error(err))
			resp["store"] = "unavailable"
		} else {
			resp["store"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodePayload(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), processTimeout)
	defer cancel()

	res, err := s.deps.Pipeline.Process(ctx, payload)
	var verr *pipeline.ValidationError
	switch {
	case errors.As(err, &verr):
		resp := map[string]any{
			"success":    false,
			"error":      "no valid email address found",
			"submission": verr.Submission,
		}
		if res != nil {
			resp["states"] = res.States
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case err != nil:
		zap.L().Error("server: webhook failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func dealIDParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "dealID"))
	return id, err == nil && id > 0
}

// handleApprove sends a pending report. A token form value, as posted by
// the confirm page, must be valid for the deal.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	dealID, ok := dealIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid deal id")
		return
	}
	if token := r.PostFormValue("token"); token != "" && s.deps.Review != nil {
		if err := s.deps.Review.VerifyToken(token, dealID); err != nil {
			zap.L().Warn("server: approval form rejected", zap.Int("deal_id", dealID), zap.Error(err))
			writeError(w, http.StatusForbidden, "invalid or expired approval link")
			return
		}
	}
	s.approve(w, r, dealID)
}

var confirmPage = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html lang="nl">
<head><meta charset="utf-8"><meta name="robots" content="noindex"><title>Rapport versturen</title></head>
<body style="font-family:sans-serif;max-width:480px;margin:40px auto">
<h2>Rapport versturen voor deal {{.DealID}}?</h2>
<form method="post" action="/approve/{{.DealID}}">
<input type="hidden" name="token" value="{{.Token}}">
<button type="submit">Versturen</button>
</form>
</body>
</html>
`))

// handleApproveLink serves the signed link posted to the team chat. It only
// renders a confirm page; the report goes out on the form POST so link
// previews cannot trigger a send.
func (s *Server) handleApproveLink(w http.ResponseWriter, r *http.Request) {
	dealID, ok := dealIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid deal id")
		return
	}
	if s.deps.Review == nil {
		writeError(w, http.StatusServiceUnavailable, "manual review not configured")
		return
	}
	token := r.URL.Query().Get("token")
	if err := s.deps.Review.VerifyToken(token, dealID); err != nil {
		zap.L().Warn("server: approval link rejected", zap.Int("deal_id", dealID), zap.Error(err))
		writeError(w, http.StatusForbidden, "invalid or expired approval link")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := confirmPage.Execute(w, struct {
		DealID int
		Token  string
	}{dealID, token}); err != nil {
		zap.L().Error("server: render confirm page", zap.Int("deal_id", dealID), zap.Error(err))
	}
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request, dealID int) {
	if s.deps.Review == nil {
		writeError(w, http.StatusServiceUnavailable, "manual review not configured")
		return
	}

	rep, err := s.deps.Review.Approve(context.WithoutCancel(r.Context()), dealID)
	switch {
	case errors.Is(err, review.ErrNotFound):
		writeError(w, http.StatusNotFound, "no pending report for this deal")
	case errors.Is(err, review.ErrAlreadySent):
		resp := map[string]any{"success": false, "error": "report already sent", "deal_id": dealID}
		if rep != nil {
			resp["sent_at"] = rep.SentAt
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, review.ErrSendFailed):
		writeError(w, http.StatusBadGateway, "report email could not be sent")
	case err != nil:
		zap.L().Error("server: approve failed", zap.Int("deal_id", dealID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"deal_id": dealID,
			"email":   rep.Email,
			"sent_at": rep.SentAt,
		})
	}
}

type pendingItem struct {
	DealID    int       `json:"deal_id"`
	Email     string    `json:"email"`
	Company   string    `json:"company"`
	Title     string    `json:"title"`
	Score     float64   `json:"score"`
	MaxScore  float64   `json:"max_score"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if s.deps.Review == nil {
		writeError(w, http.StatusServiceUnavailable, "manual review not configured")
		return
	}
	reports, err := s.deps.Review.Pending(r.Context())
	if err != nil {
		zap.L().Error("server: list pending", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]pendingItem, 0, len(reports))
	for _, p := range reports {
		items = append(items, pendingItem{
			DealID:    p.DealID,
			Email:     p.Email,
			Company:   p.Company,
			Title:     p.Title,
			Score:     p.Analysis.OverallScore,
			MaxScore:  p.Analysis.MaxScore,
			CreatedAt: p.CreatedAt,
		})
	}

	resp := map[string]any{"count": len(items), "pending": items}
	if s.deps.Store != nil {
		failed, err := s.deps.Store.ListFailedEmails(r.Context(), 50)
		if err != nil {
			zap.L().Warn("server: list failed emails", zap.Error(err))
		}
		if failed == nil {
			failed = []model.FailedEmail{}
		}
		resp["failed_emails"] = failed
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNurtureRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Nurture == nil {
		writeError(w, http.StatusServiceUnavailable, "nurture disabled")
		return
	}
	if s.deps.Nurture.Status().Running {
		writeError(w, http.StatusConflict, "nurture run already in progress")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		stats, err := s.deps.Nurture.RunOnce(ctx)
		if err != nil && !errors.Is(err, nurture.ErrAlreadyRunning) {
			zap.L().Error("server: nurture run failed", zap.Error(err))
			return
		}
		zap.L().Info("server: nurture run finished", zap.Int("sent", stats.Sent), zap.Int("failed", stats.Failed))
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "status": "started"})
}

func (s *Server) handleNurtureStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Nurture == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "status": s.deps.Nurture.Status()})
}
