package notify

import (
	_ "embed"
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/recruitin/kandidatentekort/internal/model"
)

//go:embed templates/nurture.yaml
var defaultSequence []byte

// Step is one email of the nurture sequence.
type Step struct {
	Step    int    `yaml:"step"`
	Day     int    `yaml:"day"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
	CTA     bool   `yaml:"cta"`
}

// Sequence is the ordered nurture sequence.
type Sequence struct {
	Steps []Step `yaml:"steps"`
}

// LoadSequence reads a sequence from path, or the embedded default when
// path is empty.
func LoadSequence(path string) (Sequence, error) {
	data := defaultSequence
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Sequence{}, eris.Wrapf(err, "notify: read sequence %s", path)
		}
		data = b
	}

	var seq Sequence
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return Sequence{}, eris.Wrap(err, "notify: parse sequence")
	}
	slices.SortFunc(seq.Steps, func(a, b Step) int { return a.Step - b.Step })
	if err := seq.Validate(); err != nil {
		return Sequence{}, err
	}
	return seq, nil
}

// Validate checks that steps run 1..NurtureSteps with non-decreasing days
// and a subject and body each.
func (s Sequence) Validate() error {
	if len(s.Steps) != model.NurtureSteps {
		return eris.Errorf("notify: sequence has %d steps, want %d", len(s.Steps), model.NurtureSteps)
	}
	prevDay := 0
	for i, st := range s.Steps {
		if st.Step != i+1 {
			return eris.Errorf("notify: sequence step %d out of order", st.Step)
		}
		if st.Day < prevDay {
			return eris.Errorf("notify: sequence step %d day %d before previous step", st.Step, st.Day)
		}
		if st.Subject == "" || st.Body == "" {
			return eris.Errorf("notify: sequence step %d missing subject or body", st.Step)
		}
		prevDay = st.Day
	}
	return nil
}

// Step returns step n (1-based).
func (s Sequence) Step(n int) (Step, bool) {
	for _, st := range s.Steps {
		if st.Step == n {
			return st, true
		}
	}
	return Step{}, false
}
