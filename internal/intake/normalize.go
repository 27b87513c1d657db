// Package intake turns form webhook payloads into canonical submissions.
package intake

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/recruitin/kandidatentekort/internal/model"
)

// flatAliases lists the keys accepted for each canonical field in a flat
// payload, in order of preference.
var flatAliases = map[string][]string{
	FieldEmail:       {"email", "e-mail", "email_address", "emailadres"},
	FieldFirstName:   {"first_name", "firstname", "voornaam"},
	FieldLastName:    {"last_name", "lastname", "achternaam"},
	FieldFullName:    {"full_name", "name", "naam", "contact", "contactpersoon"},
	FieldPhone:       {"phone", "phone_number", "telefoon", "telefoonnummer"},
	FieldCompany:     {"company", "company_name", "bedrijf", "bedrijfsnaam"},
	FieldSector:      {"sector", "branche", "industry"},
	FieldGoal:        {"goal", "doel"},
	FieldVacancyText: {"vacancy_text", "vacature", "vacaturetekst", "vacancy", "text"},
	FieldFile:        {"file_url", "attachment_url", "file", "bestand"},
}

// Normalize converts a webhook payload into a Submission. It never fails:
// unrecognised or malformed entries are skipped and logged, and a payload
// without an email yields a Submission with an empty Email.
//
// Three shapes are accepted: a Typeform webhook (form_response.answers), a
// bare answers list (answers at the top level), and a flat key/value map.
func Normalize(payload map[string]any, layouts Layouts) model.Submission {
	if fr, ok := payload["form_response"].(map[string]any); ok {
		return fromAnswers(fr, layouts)
	}
	if _, ok := payload["answers"].([]any); ok {
		return fromAnswers(payload, layouts)
	}
	return fromFlat(payload)
}

// collected gathers values per source so precedence can be applied once
// all answers are seen.
type collected struct {
	mapped     map[string]string // from the form layout
	contact    map[string]string // from a contact_info block
	tagged     map[string]string // from typed answers (email, phone, file)
	shortTexts []string
	longTexts  []string
	choices    []string
}

func fromAnswers(fr map[string]any, layouts Layouts) model.Submission {
	formID := str(fr["form_id"])
	if def, ok := fr["definition"].(map[string]any); ok && formID == "" {
		formID = str(def["id"])
	}
	layout := layouts.For(formID)

	c := collected{
		mapped:  map[string]string{},
		contact: map[string]string{},
		tagged:  map[string]string{},
	}

	answers, _ := fr["answers"].([]any)
	for i, item := range answers {
		a, ok := item.(map[string]any)
		if !ok {
			zap.L().Debug("intake: skipping malformed answer", zap.Int("index", i))
			continue
		}
		c.add(a, layout)
	}

	sub := c.submission()
	sub.FormID = formID
	sub.SubmissionID = str(fr["token"])
	if sub.SubmissionID == "" {
		sub.SubmissionID = str(fr["response_id"])
	}
	sub.SubmittedAt = parseTime(str(fr["submitted_at"]))
	return sub
}

func (c *collected) add(a map[string]any, layout Layout) {
	field, _ := a["field"].(map[string]any)
	id, ref, fieldType := str(field["id"]), str(field["ref"]), str(field["type"])
	answerType := str(a["type"])

	if answerType == "contact_info" || a["contact_info"] != nil {
		block, _ := a["contact_info"].(map[string]any)
		for key, target := range map[string]string{
			"first_name": FieldFirstName, "last_name": FieldLastName,
			"email": FieldEmail, "phone_number": FieldPhone, "company": FieldCompany,
		} {
			if v := strings.TrimSpace(str(block[key])); v != "" {
				c.contact[target] = v
			}
		}
		return
	}

	value := answerValue(a, answerType)
	if value == "" {
		return
	}

	if target, ok := layout.target(id, ref); ok {
		if _, seen := c.mapped[target]; !seen {
			c.mapped[target] = value
		}
		return
	}

	switch {
	case answerType == "email" || a["email"] != nil:
		setOnce(c.tagged, FieldEmail, value)
	case answerType == "phone_number" || a["phone_number"] != nil:
		setOnce(c.tagged, FieldPhone, value)
	case answerType == "file_url" || a["file_url"] != nil:
		setOnce(c.tagged, FieldFile, value)
	case answerType == "choice" || answerType == "choices":
		c.choices = append(c.choices, value)
	case answerType == "text":
		if fieldType == "long_text" {
			c.longTexts = append(c.longTexts, value)
		} else {
			c.shortTexts = append(c.shortTexts, value)
		}
	default:
		zap.L().Debug("intake: unrouted answer",
			zap.String("type", answerType), zap.String("field_id", id))
	}
}

// submission applies precedence: form layout, then contact block, then
// typed answers, then positional heuristics. The heuristic assumes the
// first three short texts are first name, last name or contact, and
// company, and the first two choices are sector and goal. Forms that do
// not follow that order need a layout.
func (c *collected) submission() model.Submission {
	heur := map[string]string{}
	positional := []string{FieldFirstName, FieldLastName, FieldCompany}
	for i, v := range c.shortTexts {
		if i >= len(positional) {
			break
		}
		heur[positional[i]] = v
	}
	for i, target := range []string{FieldSector, FieldGoal} {
		if i < len(c.choices) {
			heur[target] = c.choices[i]
		}
	}
	if len(c.longTexts) > 0 {
		heur[FieldVacancyText] = strings.Join(c.longTexts, "\n\n")
	}

	pick := func(field string) string {
		for _, src := range []map[string]string{c.mapped, c.contact, c.tagged, heur} {
			if v := strings.TrimSpace(src[field]); v != "" {
				return v
			}
		}
		return ""
	}
	return build(pick)
}

func fromFlat(payload map[string]any) model.Submission {
	lower := make(map[string]any, len(payload))
	for k, v := range payload {
		lower[strings.ToLower(strings.TrimSpace(k))] = v
	}
	sub := build(func(field string) string {
		for _, key := range flatAliases[field] {
			if v := strings.TrimSpace(flatValue(lower[key])); v != "" {
				return v
			}
		}
		return ""
	})
	sub.FormID = str(lower["form_id"])
	sub.SubmissionID = str(lower["submission_id"])
	sub.SubmittedAt = parseTime(str(lower["submitted_at"]))
	return sub
}

// build assembles a Submission from a field lookup.
func build(get func(field string) string) model.Submission {
	first := get(FieldFirstName)
	last := get(FieldLastName)
	full := get(FieldFullName)
	if full == "" {
		full = strings.TrimSpace(first + " " + last)
	}
	if first == "" && full != "" {
		first, _, _ = strings.Cut(full, " ")
	}

	sub := model.Submission{
		Email:         strings.TrimSpace(get(FieldEmail)),
		FirstName:     properName(first),
		FullName:      properName(full),
		Phone:         get(FieldPhone),
		Company:       get(FieldCompany),
		Sector:        get(FieldSector),
		Goal:          get(FieldGoal),
		AttachmentURL: get(FieldFile),
	}
	return sub.WithVacancyText(get(FieldVacancyText))
}

// answerValue returns the string value of a Typeform answer. Multi-select
// labels are joined with ", ".
func answerValue(a map[string]any, answerType string) string {
	if answerType != "" {
		if v, ok := a[answerType]; ok {
			if s := flatValue(v); s != "" {
				return s
			}
		}
	}
	for _, key := range []string{"text", "email", "phone_number", "file_url", "url", "number", "boolean", "date"} {
		if v, ok := a[key]; ok {
			return flatValue(v)
		}
	}
	if ch, ok := a["choice"].(map[string]any); ok {
		return choiceLabel(ch)
	}
	if ch, ok := a["choices"].(map[string]any); ok {
		return choiceLabel(ch)
	}
	return ""
}

func choiceLabel(ch map[string]any) string {
	var parts []string
	if labels, ok := ch["labels"].([]any); ok {
		for _, l := range labels {
			if s := strings.TrimSpace(str(l)); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if label := strings.TrimSpace(str(ch["label"])); label != "" {
		parts = append(parts, label)
	}
	if other := strings.TrimSpace(str(ch["other"])); other != "" {
		parts = append(parts, other)
	}
	return strings.Join(parts, ", ")
}

// flatValue renders scalars, lists and choice objects as a string.
func flatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := strings.TrimSpace(flatValue(e)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return choiceLabel(t)
	default:
		return str(t)
	}
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func setOnce(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// properName title-cases a name that was typed entirely in one case and
// leaves mixed-case input (e.g. "van der Berg") alone.
func properName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || (s != strings.ToLower(s) && s != strings.ToUpper(s)) {
		return s
	}
	// Casers are stateful; one per call.
	return cases.Title(language.Dutch).String(strings.ToLower(s))
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		zap.L().Debug("intake: unparsable submitted_at", zap.String("value", s))
		return time.Time{}
	}
	return t
}
