package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/recruitin/kandidatentekort/internal/analysis"
	"github.com/recruitin/kandidatentekort/internal/intake"
)

func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	to := r.URL.Query().Get("to")
	if to == "" {
		to = s.deps.Debug.TestRecipient
	}
	if to == "" || s.deps.Debug.Notifier == nil {
		writeError(w, http.StatusBadRequest, "no recipient")
		return
	}
	ok := s.deps.Debug.Notifier.SendConfirmation(r.Context(), to, "Test", "Testbedrijf", "Testvacature")
	writeJSON(w, http.StatusOK, map[string]any{"success": ok, "to": to})
}

type testAnalysisRequest struct {
	Text    string `json:"text"`
	Company string `json:"company"`
	Sector  string `json:"sector"`
	Goal    string `json:"goal"`
}

func (s *Server) handleTestAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.deps.Debug.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis not configured")
		return
	}
	var req testAnalysisRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := s.deps.Debug.Analyzer.Analyze(r.Context(), analysis.Input(req))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "analysis": res})
}

// handleDebug shows how a payload would be normalised without side effects.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	layouts := s.deps.Debug.Layouts
	if layouts == nil {
		layouts = intake.DefaultLayouts()
	}

	sub := intake.Normalize(payload, layouts)
	resp := map[string]any{"submission": sub, "valid": true}
	if err := sub.Validate(); err != nil {
		resp["valid"] = false
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
