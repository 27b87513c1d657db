package crm

import (
	"fmt"
	"html"
	"strings"

	"github.com/recruitin/kandidatentekort/internal/model"
)

const dealTitlePrefix = "Vacature Analyse - "

// DealTitle builds the deal title for a submission.
func DealTitle(company, vacancyTitle string) string {
	company = strings.TrimSpace(company)
	if company == "" {
		company = "Onbekend"
	}
	vacancyTitle = strings.TrimSpace(vacancyTitle)
	if vacancyTitle == "" {
		return dealTitlePrefix + company
	}
	return dealTitlePrefix + company + " - " + vacancyTitle
}

// VacancyTitleFromDeal recovers the vacancy title from a title built by
// DealTitle. Other titles are returned unchanged.
func VacancyTitleFromDeal(title string) string {
	rest, ok := strings.CutPrefix(title, dealTitlePrefix)
	if !ok {
		return title
	}
	if _, vacancy, found := strings.Cut(rest, " - "); found {
		return vacancy
	}
	return ""
}

// SummaryNote renders the human-readable analysis note for a deal. A nil
// analysis produces a note stating that no analysis is available. Text from
// the submission and the model is HTML-escaped.
func SummaryNote(sub model.Submission, a *model.AnalysisResult, leadScore int) string {
	var b strings.Builder
	b.WriteString("<b>📊 Vacature-analyse</b><br>")
	fmt.Fprintf(&b, "Bedrijf: %s<br>", orDash(sub.Company))
	fmt.Fprintf(&b, "Vacature: %s<br>", orDash(sub.VacancyTitle))
	if sub.Sector != "" {
		fmt.Fprintf(&b, "Sector: %s<br>", html.EscapeString(sub.Sector))
	}
	if sub.Goal != "" {
		fmt.Fprintf(&b, "Doel: %s<br>", html.EscapeString(sub.Goal))
	}
	fmt.Fprintf(&b, "Lead score: %d/100<br>", leadScore)

	if a == nil {
		b.WriteString("<br><i>Geen analyse beschikbaar (te weinig tekst of analyse mislukt).</i>")
		return b.String()
	}

	fmt.Fprintf(&b, "Score: %s/%s (%s, %.1f/10)<br>",
		formatScore(a.OverallScore), formatScore(a.MaxScore), a.ScoreLabel(), a.Score10)
	if a.Verdict != "" {
		fmt.Fprintf(&b, "Oordeel: %s<br>", html.EscapeString(a.Verdict))
	}
	if a.TokensUsed > 0 {
		fmt.Fprintf(&b, "Tokens: %d<br>", a.TokensUsed)
	}
	if len(a.TopImprovements) > 0 {
		b.WriteString("<br><b>Top verbeterpunten</b><ol>")
		for _, imp := range a.TopImprovements {
			fmt.Fprintf(&b, "<li>%s", html.EscapeString(imp.Title))
			if imp.Impact != "" || imp.Effort != "" {
				fmt.Fprintf(&b, " (impact: %s, moeite: %s)", orDash(imp.Impact), orDash(imp.Effort))
			}
			b.WriteString("</li>")
		}
		b.WriteString("</ol>")
	}
	return b.String()
}

func formatScore(v float64) string {
	if v == float64(int(v)) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.1f", v)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return html.EscapeString(s)
}
