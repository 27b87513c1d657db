package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitin/kandidatentekort/internal/model"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	seq, err := LoadSequence("")
	require.NoError(t, err)
	r, err := NewRenderer(seq)
	require.NoError(t, err)
	return r
}

func sampleAnalysis() model.AnalysisResult {
	return model.AnalysisResult{
		PromptVersion: "panel",
		OverallScore:  27,
		MaxScore:      40,
		Percentage:    67.5,
		Score10:       6.8,
		Summary:       "Degelijke basis, weinig wervend.",
		PerReviewerScores: []model.ReviewerScore{
			{Name: "De Kandidaat", Score: 6, Max: 10, Comment: "Salaris ontbreekt"},
		},
		TopImprovements: []model.Improvement{
			{Title: "Noem het salaris", Description: "Geef een bandbreedte.", Impact: "hoog", Effort: "laag"},
		},
		RewrittenText: "## Servicemonteur\n\nJij zorgt dat **installaties** blijven draaien.",
		BonusTips:     []string{"Voeg een foto van het team toe"},
	}
}

func TestConfirmation(t *testing.T) {
	r := newTestRenderer(t)

	e, err := r.Confirmation(ConfirmationView{FirstName: "Jan", Company: "Acme BV", Title: "Monteur"})
	require.NoError(t, err)
	assert.Equal(t, "We hebben je vacature ontvangen voor Acme BV", e.Subject)
	assert.Contains(t, e.HTML, "Hoi Jan,")
	assert.Contains(t, e.HTML, "<strong>Monteur</strong>")
	assert.Contains(t, e.Text, "Hoi Jan,")
	assert.NotContains(t, e.Text, "<strong>")
}

func TestConfirmation_EscapesInput(t *testing.T) {
	r := newTestRenderer(t)

	e, err := r.Confirmation(ConfirmationView{FirstName: "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, e.HTML, "<script>x")
	assert.Contains(t, e.HTML, "&lt;script&gt;")
}

func TestReport(t *testing.T) {
	r := newTestRenderer(t)

	view := r.NewReportView("", "Acme BV", "Servicemonteur", sampleAnalysis(), "Wij zoeken een monteur.")
	assert.Equal(t, "daar", view.FirstName)
	assert.Equal(t, "Goed", view.Label)

	e, err := r.Report(view)
	require.NoError(t, err)
	assert.Equal(t, "Jouw verbeterde vacaturetekst voor Acme BV is klaar", e.Subject)
	assert.Contains(t, e.HTML, "Score: 27/40")
	assert.Contains(t, e.HTML, "<h2>Servicemonteur</h2>")
	assert.Contains(t, e.HTML, "<strong>installaties</strong>")
	assert.Contains(t, e.HTML, "De Kandidaat")
	assert.Contains(t, e.HTML, "Voeg een foto van het team toe")

	assert.Contains(t, e.Text, "Score: 27/40")
	assert.Contains(t, e.Text, "- Noem het salaris")
	assert.Contains(t, e.Text, "(https://calendly.com/")
}

func TestReport_SameRenderForRoundTrip(t *testing.T) {
	r := newTestRenderer(t)
	a := sampleAnalysis()

	first, err := r.Report(r.NewReportView("Jan", "Acme", "T", a, "orig"))
	require.NoError(t, err)
	second, err := r.Report(r.NewReportView("Jan", "Acme", "T", a, "orig"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNurtureStep(t *testing.T) {
	r := newTestRenderer(t)

	e, err := r.NurtureStep(1, NurtureView{FirstName: "Jan", Title: "Monteur"})
	require.NoError(t, err)
	assert.Equal(t, "Is je analyse goed aangekomen, Jan?", e.Subject)
	assert.Contains(t, e.HTML, "<strong>Monteur</strong>")

	e, err = r.NurtureStep(4, NurtureView{FirstName: "Jan"})
	require.NoError(t, err)
	assert.Equal(t, "Hoe presteert je vacature inmiddels?", e.Subject)
	assert.Contains(t, e.HTML, "Plan adviesgesprek")
}

func TestNurtureStep_Unknown(t *testing.T) {
	r := newTestRenderer(t)
	for _, n := range []int{0, 9, -1} {
		_, err := r.NurtureStep(n, NurtureView{})
		assert.ErrorIs(t, err, ErrUnknownStep)
	}
}

func TestNurtureStep_EscapesMarkup(t *testing.T) {
	r := newTestRenderer(t)

	e, err := r.NurtureStep(2, NurtureView{FirstName: "Jan", Title: "<img src=x>"})
	require.NoError(t, err)
	assert.NotContains(t, e.HTML, "<img src=x>")
}

func TestPlainText(t *testing.T) {
	text, err := PlainText(`<html><head><style>p{}</style></head><body><h1>Kop</h1><p>Regel<br>twee</p><ul><li>a</li><li>b</li></ul></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Kop\nRegel\ntwee\n- a\n- b\n", text)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "abc", excerpt("  abc ", 5))
	assert.Equal(t, "ab…", excerpt("abcdef", 2))
}
