package nurture

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Scheduler triggers the runner at a fixed interval.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
}

// NewScheduler creates a Scheduler.
func NewScheduler(r *Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{runner: r, interval: interval}
}

// Run executes a run immediately and then every interval until ctx is
// cancelled. It always returns nil after cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	zap.L().Info("nurture: scheduler started", zap.Duration("interval", s.interval))
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("nurture: scheduler stopped")
			return nil
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	stats, err := s.runner.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		zap.L().Info("nurture: previous run still in progress, skipping")
	case errors.Is(err, context.Canceled):
	case err != nil:
		zap.L().Error("nurture: run failed", zap.Error(err))
	default:
		zap.L().Info("nurture: run complete",
			zap.Int("candidates", stats.Candidates),
			zap.Int("sent", stats.Sent),
			zap.Int("failed", stats.Failed),
			zap.Int("responded", stats.Responded),
		)
	}
}
