package analysis

import (
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/recruitin/kandidatentekort/internal/model"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemas = map[Version]*gojsonschema.Schema{
	Classic: mustSchema("schemas/classic.json"),
	Panel:   mustSchema("schemas/panel.json"),
}

func mustSchema(name string) *gojsonschema.Schema {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("analysis: compile %s: %v", name, err))
	}
	return s
}

// SchemaError lists the fields of an LLM response that break the contract.
type SchemaError struct {
	Errors []FieldError
}

// FieldError is one schema violation.
type FieldError struct {
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "analysis: response does not match schema: " + strings.Join(parts, "; ")
}

// cleanJSON extracts the substring from the first "{" to the last "}".
// The model sometimes wraps its JSON in prose or a code fence.
func cleanJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// wireResult is the JSON the model is asked to produce.
type wireResult struct {
	OverallScore    *float64               `json:"overall_score"`
	Summary         string                 `json:"summary"`
	Breakdown       []model.CriterionScore `json:"breakdown"`
	Reviewers       []wireReviewer         `json:"reviewers"`
	TopImprovements []model.Improvement    `json:"top_improvements"`
	RewrittenText   string                 `json:"rewritten_text"`
	BonusTips       []string               `json:"bonus_tips"`
	Verdict         string                 `json:"verdict"`
	Urgency         string                 `json:"urgency"`
}

type wireReviewer struct {
	Name        string  `json:"name"`
	Perspective string  `json:"perspective"`
	Score       float64 `json:"score"`
	Comment     string  `json:"comment"`
}

// Parse turns a raw model response into an AnalysisResult. Any failure
// returns an error and no result; a result is never partially filled.
func Parse(v Version, raw string) (*model.AnalysisResult, error) {
	schema, ok := schemas[v]
	if !ok {
		return nil, eris.Errorf("analysis: unknown prompt version %q", v)
	}

	body, ok := cleanJSON(raw)
	if !ok {
		return nil, eris.New("analysis: no JSON object in response")
	}

	res, err := schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, eris.Wrap(err, "analysis: decode response")
	}
	if !res.Valid() {
		se := &SchemaError{}
		for _, d := range res.Errors() {
			se.Errors = append(se.Errors, FieldError{Field: d.Field(), Message: d.Description()})
		}
		return nil, se
	}

	var w wireResult
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return nil, eris.Wrap(err, "analysis: unmarshal response")
	}
	return normalize(v, w), nil
}

// normalize fills the comparable score fields and bounds the lists.
func normalize(v Version, w wireResult) *model.AnalysisResult {
	out := &model.AnalysisResult{
		PromptVersion:   string(v),
		MaxScore:        v.MaxScore(),
		Summary:         strings.TrimSpace(w.Summary),
		Breakdown:       w.Breakdown,
		TopImprovements: w.TopImprovements,
		RewrittenText:   strings.TrimSpace(w.RewrittenText),
		BonusTips:       w.BonusTips,
		Verdict:         strings.TrimSpace(w.Verdict),
		Urgency:         strings.ToLower(strings.TrimSpace(w.Urgency)),
	}

	var reviewerSum float64
	for _, r := range w.Reviewers {
		reviewerSum += r.Score
		out.PerReviewerScores = append(out.PerReviewerScores, model.ReviewerScore{
			Name:        r.Name,
			Perspective: r.Perspective,
			Score:       r.Score,
			Max:         10,
			Comment:     r.Comment,
		})
	}

	switch {
	case v == Panel && len(w.Reviewers) > 0:
		// Sub-scores roll up into the total; a stated total that disagrees is ignored.
		out.OverallScore = reviewerSum
	case w.OverallScore != nil:
		out.OverallScore = *w.OverallScore
	}
	out.OverallScore = math.Max(0, math.Min(out.OverallScore, out.MaxScore))
	out.Percentage = round1(out.OverallScore / out.MaxScore * 100)
	out.Score10 = round1(out.OverallScore / out.MaxScore * 10)

	if len(out.TopImprovements) > model.MaxImprovements {
		out.TopImprovements = out.TopImprovements[:model.MaxImprovements]
	}
	if out.BonusTips == nil {
		out.BonusTips = []string{}
	}
	return out
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
