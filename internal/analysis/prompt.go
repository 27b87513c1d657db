package analysis

import (
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
)

// Version selects the prompt and output contract.
type Version string

const (
	// Classic scores the vacancy out of 10.
	Classic Version = "classic"
	// Panel has four named reviewers score out of 10 each, 40 in total.
	Panel Version = "panel"
)

// MaxScore is the top of the version's scale.
func (v Version) MaxScore() float64 {
	if v == Panel {
		return 40
	}
	return 10
}

// ParseVersion validates a configured prompt version.
func ParseVersion(s string) (Version, error) {
	switch Version(strings.ToLower(strings.TrimSpace(s))) {
	case Classic:
		return Classic, nil
	case Panel, "":
		return Panel, nil
	}
	return "", eris.Errorf("analysis: unknown prompt version %q", s)
}

// Input is the vacancy and its context.
type Input struct {
	Text    string
	Company string
	Sector  string
	Goal    string
}

const systemPrompt = `Je bent een expert recruitment copywriter gespecialiseerd in de Nederlandse technische arbeidsmarkt. ` +
	`Je antwoordt uitsluitend met één geldig JSON-object, zonder uitleg, markdown of codeblokken eromheen.`

var promptTemplates = map[Version]*template.Template{
	Classic: template.Must(template.New("classic").Parse(classicPrompt)),
	Panel:   template.Must(template.New("panel").Parse(panelPrompt)),
}

const contextBlock = `## VACATURETEKST:

{{.Text}}

## CONTEXT:
- Bedrijf: {{.Company}}
- Sector: {{.Sector}}
- Doel: {{.Goal}}
`

const classicPrompt = contextBlock + `
## OPDRACHT:

Analyseer en verbeter deze vacaturetekst. Beoordeel op: pakkende opening, duidelijke functie-inhoud,
concrete arbeidsvoorwaarden, employer branding en call-to-action.

Antwoord met precies dit JSON-schema:
{
  "overall_score": <getal 1-10>,
  "summary": "<korte onderbouwing van de score>",
  "breakdown": [{"criterion": "<criterium>", "score": <0-10>, "max": 10, "comment": "<toelichting>"}],
  "top_improvements": [
    {"title": "<verbeterpunt>", "description": "<concreet en actionable>", "impact": "hoog|middel|laag", "effort": "hoog|middel|laag"}
  ],
  "rewritten_text": "<volledige herschreven vacaturetekst, 400-600 woorden, markdown toegestaan>",
  "bonus_tips": ["<extra tip voor meer kandidaten>"],
  "verdict": "<één zin eindoordeel>",
  "urgency": "hoog|middel|laag"
}

Geef precies 3 top_improvements, gesorteerd op impact, en 2-3 bonus_tips.
Schrijf in het Nederlands, professioneel maar toegankelijk.`

const panelPrompt = contextBlock + `
## OPDRACHT:

Laat een panel van vier reviewers deze vacaturetekst beoordelen, elk vanuit een eigen perspectief
en met een score van 0-10:
1. "De Kandidaat": een ervaren vakman die twijfelt of hij moet overstappen.
2. "De Recruiter": let op vindbaarheid, volledigheid en sollicitatiedrempel.
3. "De Hiring Manager": let op een realistisch functieprofiel en eisen.
4. "De Employer Brand Specialist": let op tone of voice, cultuur en onderscheidend vermogen.

De totaalscore is de som van de vier scores (maximaal 40).

Antwoord met precies dit JSON-schema:
{
  "overall_score": <som van de reviewer-scores, 0-40>,
  "summary": "<korte samenvatting van het panel>",
  "reviewers": [
    {"name": "<naam reviewer>", "perspective": "<perspectief>", "score": <0-10>, "comment": "<oordeel in 1-2 zinnen>"}
  ],
  "top_improvements": [
    {"title": "<verbeterpunt>", "description": "<concreet en actionable>", "impact": "hoog|middel|laag", "effort": "hoog|middel|laag"}
  ],
  "rewritten_text": "<volledige herschreven vacaturetekst, 400-600 woorden, markdown toegestaan>",
  "bonus_tips": ["<extra tip voor meer kandidaten>"],
  "verdict": "<één zin eindoordeel>",
  "urgency": "hoog|middel|laag"
}

Geef precies 3 top_improvements, gesorteerd op impact, en 2-3 bonus_tips.
Schrijf in het Nederlands, professioneel maar toegankelijk.`

// BuildPrompt renders the user prompt for version. Empty context fields
// get neutral defaults.
func BuildPrompt(v Version, in Input) (string, error) {
	tmpl, ok := promptTemplates[v]
	if !ok {
		return "", eris.Errorf("analysis: unknown prompt version %q", v)
	}
	in.Company = orDefault(in.Company, "Onbekend")
	in.Sector = orDefault(in.Sector, "Algemeen")
	in.Goal = orDefault(in.Goal, "Meer gekwalificeerde sollicitanten")

	var b strings.Builder
	if err := tmpl.Execute(&b, in); err != nil {
		return "", eris.Wrap(err, "analysis: render prompt")
	}
	return b.String(), nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
