package intake

import "strings"

// Canonical submission fields a form layout can target.
const (
	FieldEmail       = "email"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldFullName    = "full_name"
	FieldPhone       = "phone"
	FieldCompany     = "company"
	FieldSector      = "sector"
	FieldGoal        = "goal"
	FieldVacancyText = "vacancy_text"
	FieldFile        = "file"
)

var canonicalFields = map[string]bool{
	FieldEmail: true, FieldFirstName: true, FieldLastName: true, FieldFullName: true,
	FieldPhone: true, FieldCompany: true, FieldSector: true, FieldGoal: true,
	FieldVacancyText: true, FieldFile: true,
}

// Layout maps a Typeform field id or ref to a canonical field.
type Layout map[string]string

// Layouts holds the known form layouts keyed by form id.
type Layouts map[string]Layout

// NewLayouts builds Layouts from configuration. Keys are matched without
// regard to case because the config loader lowercases map keys. Entries
// naming an unknown canonical field are dropped.
func NewLayouts(forms map[string]map[string]string) Layouts {
	out := make(Layouts, len(forms))
	for formID, fields := range forms {
		l := make(Layout, len(fields))
		for key, target := range fields {
			target = strings.ToLower(strings.TrimSpace(target))
			if !canonicalFields[target] {
				continue
			}
			l[strings.ToLower(key)] = target
		}
		out[strings.ToLower(formID)] = l
	}
	return out
}

// DefaultForm is the Layouts key used for submissions whose form id has no
// layout of its own.
const DefaultForm = "*"

// For returns the layout for formID, falling back to the DefaultForm
// layout. Nil means every answer is routed by type heuristics.
func (ls Layouts) For(formID string) Layout {
	if ls == nil {
		return nil
	}
	if l, ok := ls[strings.ToLower(formID)]; ok && formID != "" {
		return l
	}
	return ls[DefaultForm]
}

// target returns the canonical field for a Typeform field by id, then ref.
func (l Layout) target(id, ref string) (string, bool) {
	if l == nil {
		return "", false
	}
	if t, ok := l[strings.ToLower(id)]; ok && id != "" {
		return t, true
	}
	if t, ok := l[strings.ToLower(ref)]; ok && ref != "" {
		return t, true
	}
	return "", false
}

// DefaultLayouts returns the field ids of the production vacancy-check
// form as the fallback layout.
func DefaultLayouts() Layouts {
	return Layouts{
		DefaultForm: {
			"field_rlwcm9qidvnn": FieldFirstName,
			"field_q9xgrm7jnbiy": FieldLastName,
			"field_1izbbbmjqjeo": FieldPhone,
			"field_mnmhlbesixfh": FieldEmail,
			"field_ock4xgomqr46": FieldCompany,
			"field_mpi700tsog7e": FieldSector,
			"field_btapxjrblf0k": FieldGoal,
			"field_4rwv7azv5piy": FieldFile,
		},
	}
}

// Merge returns ls with other's layouts added; other wins on conflicts.
func (ls Layouts) Merge(other Layouts) Layouts {
	out := make(Layouts, len(ls)+len(other))
	for k, v := range ls {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
