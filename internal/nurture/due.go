// Package nurture sends the follow-up email sequence to contacts whose
// analysis report went out.
package nurture

import (
	"time"

	"github.com/recruitin/kandidatentekort/internal/model"
	"github.com/recruitin/kandidatentekort/internal/notify"
)

// NextDue returns the next step of the sequence and whether it is due at
// now. A step is due once its day offset from the start date has passed.
func NextDue(st model.NurtureState, now time.Time, seq notify.Sequence) (notify.Step, bool) {
	if st.Halted() || st.StartedAt.IsZero() {
		return notify.Step{}, false
	}
	step, ok := seq.Step(st.NextStep())
	if !ok {
		return notify.Step{}, false
	}
	start := st.StartedAt
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	return step, !now.Before(start.AddDate(0, 0, step.Day))
}
