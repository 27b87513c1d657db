package model

import "time"

// NurtureStatus is the lifecycle label of a nurture sequence.
type NurtureStatus string

const (
	NurtureActive    NurtureStatus = "active"
	NurturePaused    NurtureStatus = "paused"
	NurtureCompleted NurtureStatus = "completed"
	NurtureResponded NurtureStatus = "responded"
)

// NurtureSteps is the number of emails in the sequence.
const NurtureSteps = 8

// NurtureState tracks progress through the nurture sequence. It lives in
// CRM deal custom fields.
type NurtureState struct {
	LastStep  int           `json:"last_step"`
	StartedAt time.Time     `json:"started_at"`
	Status    NurtureStatus `json:"status"`
}

// Halted reports whether the sequence must not send anything further.
func (s NurtureState) Halted() bool {
	switch s.Status {
	case NurturePaused, NurtureCompleted, NurtureResponded:
		return true
	}
	return s.LastStep >= NurtureSteps
}

// NextStep is the step to dispatch next.
func (s NurtureState) NextStep() int {
	return s.LastStep + 1
}
