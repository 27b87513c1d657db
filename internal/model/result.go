package model

import "time"

// State is a step of the per-submission state machine.
type State string

const (
	StateReceived         State = "received"
	StateNormalized       State = "normalized"
	StateEmailValidated   State = "email_validated"
	StateRejected         State = "rejected"
	StateConfirmationSent State = "confirmation_sent"
	StateExtractedText    State = "extracted_text"
	StateRawText          State = "raw_text"
	StateAnalyzed         State = "analyzed"
	StateAnalysisSkipped  State = "analysis_skipped_or_failed"
	StateCrmSynced        State = "crm_synced"
	StateReportSent       State = "report_sent"
	StateReportPending    State = "report_pending_approval"
	StateDone             State = "done"
)

// ProcessResult is returned to the webhook caller with per-step flags.
type ProcessResult struct {
	Success          bool            `json:"success"`
	ConfirmationSent bool            `json:"confirmation_sent"`
	Extracted        bool            `json:"extracted"`
	Analyzed         bool            `json:"analyzed"`
	AnalysisSent     bool            `json:"analysis_sent"`
	AnalysisPending  bool            `json:"analysis_pending"`
	NoteAdded        bool            `json:"note_added"`
	DealID           int             `json:"deal_id,omitempty"`
	PersonID         int             `json:"person_id,omitempty"`
	OrgID            int             `json:"org_id,omitempty"`
	DealReused       bool            `json:"deal_reused"`
	LeadScore        int             `json:"lead_score"`
	Score            *float64        `json:"score,omitempty"`
	MaxScore         *float64        `json:"max_score,omitempty"`
	States           []State         `json:"states"`
	Analysis         *AnalysisResult `json:"-"`
}

// PendingReport is an analysis stored for later release by a reviewer.
type PendingReport struct {
	DealID       int            `json:"deal_id"`
	Email        string         `json:"email"`
	FirstName    string         `json:"first_name"`
	Company      string         `json:"company"`
	Title        string         `json:"title"`
	OriginalText string         `json:"original_text"`
	Analysis     AnalysisResult `json:"analysis"`
	CreatedAt    time.Time      `json:"created_at"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
}

// FailedEmail records an outbound email that could not be delivered.
type FailedEmail struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmissionRecord is the audit entry written for every processed webhook.
type SubmissionRecord struct {
	ID         string     `json:"id"`
	Submission Submission `json:"submission"`
	Result     string     `json:"result"`
	DealID     int        `json:"deal_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
