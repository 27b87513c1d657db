package model

// MaxImprovements bounds the prioritised improvement list.
const MaxImprovements = 3

// Improvement is one prioritised change suggested by the analysis.
type Improvement struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact,omitempty"`
	Effort      string `json:"effort,omitempty"`
}

// CriterionScore is a per-criterion score within the breakdown.
type CriterionScore struct {
	Criterion string  `json:"criterion"`
	Score     float64 `json:"score"`
	Max       float64 `json:"max"`
	Comment   string  `json:"comment,omitempty"`
}

// ReviewerScore is the sub-score of one named reviewer in a panel prompt.
type ReviewerScore struct {
	Name        string  `json:"name"`
	Perspective string  `json:"perspective"`
	Score       float64 `json:"score"`
	Max         float64 `json:"max"`
	Comment     string  `json:"comment,omitempty"`
}

// AnalysisResult is the structured verdict on a vacancy text.
//
// OverallScore is expressed on MaxScore; Percentage and Score10 are derived
// so consumers never need to know which prompt version produced it.
type AnalysisResult struct {
	PromptVersion     string           `json:"prompt_version"`
	OverallScore      float64          `json:"overall_score"`
	MaxScore          float64          `json:"max_score"`
	Percentage        float64          `json:"percentage"`
	Score10           float64          `json:"score10"`
	Summary           string           `json:"summary,omitempty"`
	Breakdown         []CriterionScore `json:"breakdown"`
	TopImprovements   []Improvement    `json:"top_improvements"`
	RewrittenText     string           `json:"rewritten_text"`
	BonusTips         []string         `json:"bonus_tips"`
	PerReviewerScores []ReviewerScore  `json:"per_reviewer_scores"`
	Verdict           string           `json:"verdict,omitempty"`
	Urgency           string           `json:"urgency,omitempty"`
	TokensUsed        int64            `json:"tokens_used,omitempty"`
}

// ScoreLabel returns a short Dutch label for the comparable score.
func (a *AnalysisResult) ScoreLabel() string {
	switch {
	case a.Score10 >= 8:
		return "Sterk"
	case a.Score10 >= 6.5:
		return "Goed"
	case a.Score10 >= 5:
		return "Gemiddeld"
	default:
		return "Verbetering nodig"
	}
}
