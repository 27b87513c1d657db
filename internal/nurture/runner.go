package nurture

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/internal/crm"
	"github.com/recruitin/kandidatentekort/internal/notify"
)

// ErrAlreadyRunning is returned when a run is already in progress in this
// process or in another process holding the lock file.
var ErrAlreadyRunning = eris.New("nurture: run already in progress")

// CRM is the deal store the runner reads and updates.
type CRM interface {
	ListNurtureCandidates(ctx context.Context) ([]crm.NurtureCandidate, error)
	RecordNurtureStep(ctx context.Context, dealID, step int) error
	MarkResponded(ctx context.Context, dealID int) error
}

// Sender sends one nurture step.
type Sender interface {
	SendNurtureStep(ctx context.Context, to string, step int, firstName, title string) (bool, error)
}

// RunStats summarises one run.
type RunStats struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Candidates int       `json:"candidates"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	NotDue     int       `json:"not_due"`
	Responded  int       `json:"responded"`
}

// Status is the runner state exposed to operators.
type Status struct {
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	LastRun   *RunStats `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Runner performs nurture runs. Runs never overlap.
type Runner struct {
	crm      CRM
	sender   Sender
	replies  ReplyChecker
	seq      notify.Sequence
	delay    time.Duration
	lockPath string

	run sync.Mutex

	mu     sync.Mutex
	status Status

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner. replies may be nil to skip reply detection.
func NewRunner(c CRM, sender Sender, replies ReplyChecker, seq notify.Sequence, cfg config.NurtureConfig) *Runner {
	return &Runner{
		crm:      c,
		sender:   sender,
		replies:  replies,
		seq:      seq,
		delay:    time.Duration(cfg.SendDelaySecs) * time.Second,
		lockPath: cfg.LockPath,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Status returns a snapshot of the runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status
	if st.LastRun != nil {
		last := *st.LastRun
		st.LastRun = &last
	}
	return st
}

// RunOnce sends every due step serially, pausing between sends.
func (r *Runner) RunOnce(ctx context.Context) (RunStats, error) {
	if !r.run.TryLock() {
		return RunStats{}, ErrAlreadyRunning
	}
	defer r.run.Unlock()

	if r.lockPath != "" {
		fl := flock.New(r.lockPath)
		locked, err := fl.TryLock()
		if err != nil {
			return RunStats{}, eris.Wrapf(err, "nurture: lock %s", r.lockPath)
		}
		if !locked {
			return RunStats{}, ErrAlreadyRunning
		}
		defer fl.Unlock() //nolint:errcheck
	}

	r.setRunning(true)
	stats, err := r.runLocked(ctx)
	stats.FinishedAt = r.now()
	r.finish(stats, err)
	return stats, err
}

func (r *Runner) runLocked(ctx context.Context) (RunStats, error) {
	stats := RunStats{StartedAt: r.now()}

	cands, err := r.crm.ListNurtureCandidates(ctx)
	if err != nil {
		return stats, eris.Wrap(err, "nurture: list candidates")
	}
	stats.Candidates = len(cands)

	replied := r.checkReplies(ctx, cands)

	sentAny := false
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		log := zap.L().With(zap.Int("deal_id", c.DealID), zap.String("email", c.Email))

		if at, ok := replied[normalizeAddr(c.Email)]; ok && !at.Before(c.State.StartedAt) {
			if err := r.crm.MarkResponded(ctx, c.DealID); err != nil {
				log.Warn("nurture: mark responded failed", zap.Error(err))
			} else {
				stats.Responded++
			}
			continue
		}

		step, due := NextDue(c.State, r.now(), r.seq)
		if !due {
			stats.NotDue++
			continue
		}

		if sentAny && r.delay > 0 {
			if err := r.sleep(ctx, r.delay); err != nil {
				return stats, err
			}
		}
		sentAny = true

		ok, err := r.sender.SendNurtureStep(ctx, c.Email, step.Step, c.FirstName, c.Title)
		if err != nil || !ok {
			stats.Failed++
			log.Warn("nurture: step not sent", zap.Int("step", step.Step), zap.Error(err))
			continue
		}
		stats.Sent++
		if err := r.crm.RecordNurtureStep(ctx, c.DealID, step.Step); err != nil {
			log.Error("nurture: step sent but not recorded", zap.Int("step", step.Step), zap.Error(err))
		}
		log.Info("nurture: step sent", zap.Int("step", step.Step))
	}
	return stats, nil
}

// checkReplies fetches the latest reply per candidate address in one IMAP
// session, scanning from the earliest sequence start.
func (r *Runner) checkReplies(ctx context.Context, cands []crm.NurtureCandidate) map[string]time.Time {
	if r.replies == nil || len(cands) == 0 {
		return nil
	}
	since := cands[0].State.StartedAt
	addrs := make([]string, 0, len(cands))
	for _, c := range cands {
		addrs = append(addrs, c.Email)
		if c.State.StartedAt.Before(since) {
			since = c.State.StartedAt
		}
	}
	found, err := r.replies.LastReplies(ctx, since, addrs)
	if err != nil {
		zap.L().Warn("nurture: reply check failed", zap.Error(err))
		return nil
	}
	return found
}

func (r *Runner) setRunning(v bool) {
	r.mu.Lock()
	r.status.Running = v
	r.mu.Unlock()
}

func (r *Runner) finish(stats RunStats, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Running = false
	r.status.Runs++
	r.status.LastRun = &stats
	r.status.LastError = ""
	if err != nil {
		r.status.LastError = err.Error()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
