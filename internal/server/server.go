// Package server exposes the webhook and operator endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/internal/intake"
	"github.com/recruitin/kandidatentekort/internal/model"
	"github.com/recruitin/kandidatentekort/internal/nurture"
	"github.com/recruitin/kandidatentekort/internal/pipeline"
)

// processTimeout bounds one webhook run. Processing continues when the
// caller disconnects.
const processTimeout = 5 * time.Minute

// Processor runs the submission pipeline.
type Processor interface {
	Process(ctx context.Context, payload map[string]any) (*model.ProcessResult, error)
	ManualReview() bool
}

// Reviewer releases held reports.
type Reviewer interface {
	Approve(ctx context.Context, dealID int) (*model.PendingReport, error)
	VerifyToken(token string, dealID int) error
	Pending(ctx context.Context) ([]model.PendingReport, error)
}

// Store is the read side of the database used by operator routes.
type Store interface {
	ListFailedEmails(ctx context.Context, limit int) ([]model.FailedEmail, error)
	Ping(ctx context.Context) error
}

// Nurture triggers and reports nurture runs.
type Nurture interface {
	RunOnce(ctx context.Context) (nurture.RunStats, error)
	Status() nurture.Status
}

// ConfirmationSender sends the debug test email.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, to, firstName, company, title string) bool
}

// Debug holds the collaborators of the operator test routes.
type Debug struct {
	Notifier      ConfirmationSender
	Analyzer      pipeline.Analyzer
	Layouts       intake.Layouts
	TestRecipient string
}

// Deps are the server collaborators. Review, Nurture and Store may be nil.
type Deps struct {
	Pipeline     Processor
	Review       Reviewer
	Nurture      Nurture
	Store        Store
	Integrations map[string]bool
	Debug        Debug
}

// Server is the HTTP front of the service.
type Server struct {
	cfg  config.ServerConfig
	deps Deps
	http *http.Server
}

// New creates a Server listening on cfg.Port.
func New(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(recoverJSON)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Post("/webhook/typeform", s.handleWebhook)

	r.Post("/approve/{dealID}", s.handleApprove)
	r.Get("/approve/{dealID}", s.handleApproveLink)
	r.Get("/pending", s.handlePending)

	r.Post("/nurture/run", s.handleNurtureRun)
	r.Get("/nurture/status", s.handleNurtureStatus)

	if s.cfg.DebugRoutes {
		r.Get("/test-email", s.handleTestEmail)
		r.Post("/test-analysis", s.handleTestAnalysis)
		r.Post("/debug", s.handleDebug)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("http: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
