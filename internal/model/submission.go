package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MaxTitleRunes bounds the vacancy title derived from the vacancy text.
const MaxTitleRunes = 80

// Submission is the canonical record of one form webhook call.
type Submission struct {
	Email         string    `json:"email" validate:"required,email"`
	FirstName     string    `json:"first_name"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone"`
	Company       string    `json:"company"`
	Sector        string    `json:"sector"`
	Goal          string    `json:"goal,omitempty"`
	VacancyText   string    `json:"vacancy_text"`
	VacancyTitle  string    `json:"vacancy_title"`
	AttachmentURL string    `json:"attachment_url"`
	FormID        string    `json:"form_id,omitempty"`
	SubmissionID  string    `json:"submission_id,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at,omitzero"`
}

var validate = validator.New()

// Validate reports whether the submission carries a usable email address.
func (s Submission) Validate() error {
	return validate.Struct(s)
}

// WithVacancyText returns a copy of s whose vacancy text (and derived title)
// is replaced by text.
func (s Submission) WithVacancyText(text string) Submission {
	s.VacancyText = text
	s.VacancyTitle = DeriveTitle(text)
	return s
}

// DeriveTitle returns the first non-blank line of text, truncated to
// MaxTitleRunes runes.
func DeriveTitle(text string) string {
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.Trim(line, "#*- \t")
		if utf8.RuneCountInString(line) <= MaxTitleRunes {
			return line
		}
		runes := []rune(line)
		return strings.TrimSpace(string(runes[:MaxTitleRunes-1])) + "…"
	}
	return ""
}
