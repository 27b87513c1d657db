package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/analysis"
	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/internal/crm"
	"github.com/recruitin/kandidatentekort/internal/extract"
	"github.com/recruitin/kandidatentekort/internal/intake"
	"github.com/recruitin/kandidatentekort/internal/notify"
	"github.com/recruitin/kandidatentekort/internal/nurture"
	"github.com/recruitin/kandidatentekort/internal/pipeline"
	"github.com/recruitin/kandidatentekort/internal/review"
	"github.com/recruitin/kandidatentekort/internal/store"
	anthropicpkg "github.com/recruitin/kandidatentekort/pkg/anthropic"
	"github.com/recruitin/kandidatentekort/pkg/pipedrive"
)

// appEnv holds every initialized component used by the commands.
// CRM, Analyzer and Nurture are nil when their integration is missing.
type appEnv struct {
	Store      store.Store
	Layouts    intake.Layouts
	CRM        *crm.Sync
	Dispatcher *notify.Dispatcher
	Review     *review.Service
	Analyzer   *analysis.Analyzer
	Extractor  *extract.Extractor
	Pipeline   *pipeline.Orchestrator
	Nurture    *nurture.Runner
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates cfg for mode and builds the components. Callers
// should defer env.Close().
func initApp(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	if err := env.build(c); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *appEnv) build(c *config.Config) error {
	e.Layouts = intake.DefaultLayouts().Merge(intake.NewLayouts(c.Typeform.Forms))

	seq, err := notify.LoadSequence(c.Nurture.SequencePath)
	if err != nil {
		return err
	}
	renderer, err := notify.NewRenderer(seq)
	if err != nil {
		return err
	}
	e.Dispatcher = notify.NewDispatcher(notify.NewSMTPMailer(c.SMTP), renderer, e.Store)

	e.Extractor, err = extract.New(c.Extract, c.Typeform.Token)
	if err != nil {
		return eris.Wrap(err, "init extractor")
	}

	if c.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(c.Anthropic.Key, anthropicpkg.Options{
			Timeout: time.Duration(c.Anthropic.TimeoutSecs) * time.Second,
		})
		e.Analyzer, err = analysis.New(client, c.Anthropic)
		if err != nil {
			return eris.Wrap(err, "init analyzer")
		}
	} else {
		zap.L().Warn("anthropic key not set, analysis disabled")
	}

	if c.Pipedrive.Token != "" {
		client := pipedrive.NewClient(c.Pipedrive.Token,
			pipedrive.WithBaseURL(c.Pipedrive.BaseURL),
			pipedrive.WithRateLimit(c.Pipedrive.RateLimit),
			pipedrive.WithTimeout(time.Duration(c.Pipedrive.TimeoutSecs)*time.Second),
			pipedrive.WithMaxAttempts(c.Pipedrive.MaxAttempts),
		)
		e.CRM = crm.New(client, c.Pipedrive)
	} else {
		zap.L().Warn("pipedrive token not set, crm sync disabled")
	}

	// Interface values stay untyped nil when an integration is missing.
	var (
		crmDeps    pipeline.CRM
		reviewCRM  review.CRM
		analyzer   pipeline.Analyzer
		chat       review.Notifier
		nurtureCRM nurture.CRM
	)
	if e.CRM != nil {
		crmDeps, reviewCRM, nurtureCRM = e.CRM, e.CRM, e.CRM
	}
	if e.Analyzer != nil {
		analyzer = e.Analyzer
	}
	if c.Review.ChatWebhookURL != "" {
		chat = notify.NewChatNotifier(c.Review.ChatWebhookURL)
	}

	signer := review.NewSigner(c.Review.ApprovalSecret, time.Duration(c.Review.ApprovalTTLHours)*time.Hour)
	e.Review = review.NewService(e.Store, reviewCRM, e.Dispatcher, chat, signer, c.Review.PublicBaseURL)

	e.Pipeline = pipeline.New(pipeline.Deps{
		Layouts:   e.Layouts,
		Extractor: e.Extractor,
		Analyzer:  analyzer,
		CRM:       crmDeps,
		Notifier:  e.Dispatcher,
		Reviewer:  e.Review,
		Audit:     e.Store,
	}, pipeline.Options{
		ManualReview:  c.Review.Manual,
		MinTextLength: c.Pipeline.MinTextLength,
	})

	if nurtureCRM != nil {
		var replies nurture.ReplyChecker
		if c.Nurture.CheckReplies {
			replies = nurture.NewIMAPReplies(c.IMAP)
		}
		e.Nurture = nurture.NewRunner(nurtureCRM, e.Dispatcher, replies, seq, c.Nurture)
	}

	zap.L().Info("components initialized",
		zap.String("store", c.Store.Driver),
		zap.Bool("manual_review", c.Review.Manual),
		zap.Any("integrations", c.Integrations()),
	)
	return nil
}
