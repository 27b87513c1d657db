package pipeline

import (
	"strings"
	"unicode/utf8"

	"github.com/recruitin/kandidatentekort/internal/model"
)

var (
	urgencyKeywords  = []string{"urgent", "asap", "spoedig", "direct", "per direct", "zo snel mogelijk"}
	prioritySectors  = []string{"technology", "tech", "software", "ict", "healthcare", "zorg", "manufacturing", "productie", "techniek", "installatie"}
	professionalTLDs = []string{".com", ".nl", ".be"}
)

const detailedVacancyRunes = 500

// LeadScore rates a submission 0-100 for sales follow-up. The analysis
// contributes up to 40 points; a nil analysis contributes nothing.
func LeadScore(sub model.Submission, a *model.AnalysisResult) int {
	score := 0
	if a != nil {
		score += min(int(a.Score10*4), 40)
	}

	if sub.Company != "" {
		sector := strings.ToLower(sub.Sector)
		for _, s := range prioritySectors {
			if strings.Contains(sector, s) {
				score += 15
				break
			}
		}
	}

	if utf8.RuneCountInString(sub.VacancyText) > detailedVacancyRunes {
		score += 10
	}
	email := strings.ToLower(strings.TrimSpace(sub.Email))
	for _, tld := range professionalTLDs {
		if strings.HasSuffix(email, tld) {
			score += 5
			break
		}
	}
	if strings.TrimSpace(sub.Phone) != "" {
		score += 5
	}

	text := strings.ToLower(sub.VacancyText)
	for _, kw := range urgencyKeywords {
		if strings.Contains(text, kw) {
			score += 10
			break
		}
	}
	return min(score, 100)
}
