// Package analysis asks the LLM for a scored critique and rewrite of a
// vacancy text and parses the structured verdict.
package analysis

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/internal/model"
	"github.com/recruitin/kandidatentekort/pkg/anthropic"
)

// Analyzer runs vacancy analyses against an Anthropic client.
type Analyzer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	version   Version
}

// New creates an Analyzer from config.
func New(client anthropic.Client, cfg config.AnthropicConfig) (*Analyzer, error) {
	v, err := ParseVersion(cfg.PromptVersion)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8000
	}
	return &Analyzer{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
		version:   v,
	}, nil
}

// Version is the prompt version in use.
func (a *Analyzer) Version() Version { return a.version }

// Analyze sends the vacancy to the model once, without retries. Timeouts,
// API errors and unparsable responses all return an error and a nil
// result; callers proceed without analysis.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*model.AnalysisResult, error) {
	prompt, err := BuildPrompt(a.version, in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: llm call")
	}
	resp.Usage.LogCost(a.model, "vacancy_analysis")

	result, err := Parse(a.version, resp.Text())
	if err != nil {
		zap.L().Warn("analysis: unparsable response",
			zap.String("stop_reason", resp.StopReason),
			zap.Int("chars", utf8.RuneCountInString(resp.Text())),
			zap.Error(err),
		)
		return nil, err
	}
	result.TokensUsed = resp.Usage.Total()

	zap.L().Info("analysis: completed",
		zap.String("version", string(a.version)),
		zap.Float64("score", result.OverallScore),
		zap.Float64("max_score", result.MaxScore),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}
