package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
	texttemplate "text/template"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/recruitin/kandidatentekort/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// Email is a rendered message body pair.
type Email struct {
	Subject string
	HTML    string
	Text    string
}

// ConfirmationView feeds the confirmation template.
type ConfirmationView struct {
	FirstName string
	Company   string
	Title     string
}

// ReportView is the typed view-model of the analysis report email.
type ReportView struct {
	FirstName       string
	Company         string
	Title           string
	Score           float64
	MaxScore        float64
	Score10         float64
	Percentage      float64
	Label           string
	Summary         string
	Verdict         string
	Reviewers       []model.ReviewerScore
	Breakdown       []model.CriterionScore
	Improvements    []model.Improvement
	RewrittenHTML   template.HTML
	BonusTips       []string
	OriginalExcerpt string
}

// NurtureView feeds a nurture step's subject and body.
type NurtureView struct {
	FirstName string
	Title     string
}

const excerptRunes = 400

// Renderer renders the email templates.
type Renderer struct {
	tpl *template.Template
	md  goldmark.Markdown
	seq Sequence
}

// NewRenderer parses the embedded templates.
func NewRenderer(seq Sequence) (*Renderer, error) {
	tpl, err := template.New("mail").Funcs(template.FuncMap{
		"score": formatScore,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, eris.Wrap(err, "notify: parse templates")
	}
	return &Renderer{
		tpl: tpl,
		md:  goldmark.New(goldmark.WithExtensions(extension.Linkify)),
		seq: seq,
	}, nil
}

// Sequence returns the nurture sequence the renderer was built with.
func (r *Renderer) Sequence() Sequence { return r.seq }

// NewReportView builds the report view-model from an analysis.
func (r *Renderer) NewReportView(firstName, company, title string, a model.AnalysisResult, original string) ReportView {
	return ReportView{
		FirstName:       greetingName(firstName),
		Company:         company,
		Title:           title,
		Score:           a.OverallScore,
		MaxScore:        a.MaxScore,
		Score10:         a.Score10,
		Percentage:      a.Percentage,
		Label:           a.ScoreLabel(),
		Summary:         a.Summary,
		Verdict:         a.Verdict,
		Reviewers:       a.PerReviewerScores,
		Breakdown:       a.Breakdown,
		Improvements:    a.TopImprovements,
		RewrittenHTML:   r.markdown(a.RewrittenText),
		BonusTips:       a.BonusTips,
		OriginalExcerpt: excerpt(original, excerptRunes),
	}
}

// Confirmation renders the receipt email.
func (r *Renderer) Confirmation(v ConfirmationView) (Email, error) {
	v.FirstName = greetingName(v.FirstName)
	subject := "We hebben je vacature ontvangen"
	if v.Company != "" {
		subject += " voor " + v.Company
	}
	return r.render("confirmation", subject, v)
}

// Report renders the analysis report email.
func (r *Renderer) Report(v ReportView) (Email, error) {
	subject := "Jouw verbeterde vacaturetekst is klaar"
	if v.Company != "" {
		subject = "Jouw verbeterde vacaturetekst voor " + v.Company + " is klaar"
	}
	return r.render("report", subject, v)
}

// NurtureStep renders step n of the sequence.
func (r *Renderer) NurtureStep(n int, v NurtureView) (Email, error) {
	st, ok := r.seq.Step(n)
	if !ok {
		return Email{}, eris.Wrapf(ErrUnknownStep, "step %d", n)
	}
	v.FirstName = greetingName(v.FirstName)
	if v.Title == "" {
		v.Title = "je vacature"
	}

	subject, err := expand(st.Subject, v)
	if err != nil {
		return Email{}, eris.Wrapf(err, "notify: nurture step %d subject", n)
	}
	// Values are escaped before Markdown conversion so submitter input
	// cannot inject markup.
	body, err := expand(st.Body, NurtureView{
		FirstName: html.EscapeString(v.FirstName),
		Title:     html.EscapeString(v.Title),
	})
	if err != nil {
		return Email{}, eris.Wrapf(err, "notify: nurture step %d body", n)
	}

	return r.render("nurture", subject, struct {
		Heading string
		Body    template.HTML
		CTA     bool
	}{Heading: subject, Body: r.markdown(body), CTA: st.CTA})
}

func (r *Renderer) render(name, subject string, data any) (Email, error) {
	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return Email{}, eris.Wrapf(err, "notify: render %s", name)
	}
	text, err := PlainText(buf.String())
	if err != nil {
		return Email{}, err
	}
	return Email{Subject: subject, HTML: buf.String(), Text: text}, nil
}

// markdown converts text to HTML. Raw HTML in the input is dropped.
func (r *Renderer) markdown(text string) template.HTML {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func expand(tpl string, data any) (string, error) {
	t, err := texttemplate.New("step").Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var blankLines = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)

// PlainText derives the text/plain alternative from an HTML body.
func PlainText(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "notify: parse html")
	}
	doc.Find("head, style, script").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.HasPrefix(href, "http") {
			s.AppendHtml(" (" + html.EscapeString(href) + ")")
		}
	})
	doc.Find("p, div, h1, h2, h3, li, ol, ul").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Text()
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text) + "\n", nil
}

func greetingName(first string) string {
	if strings.TrimSpace(first) == "" {
		return "daar"
	}
	return strings.TrimSpace(first)
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n])) + "…"
}

func formatScore(v float64) string {
	if v == float64(int(v)) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.1f", v)
}
