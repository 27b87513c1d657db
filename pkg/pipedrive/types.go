package pipedrive

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Ref is a reference to a related record. Pipedrive returns either a bare
// id or an object such as {"value": 12, "name": "..."} depending on the
// endpoint; both decode into Ref.
type Ref struct {
	ID     int      `json:"value"`
	Name   string   `json:"name,omitempty"`
	Emails []string `json:"-"`
}

// UnmarshalJSON accepts a number, an object with "value", or null.
func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*r = Ref{}
		return nil
	}
	if b[0] == '{' {
		var obj struct {
			Value int             `json:"value"`
			Name  string          `json:"name"`
			Email json.RawMessage `json:"email"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return eris.Wrap(err, "pipedrive: decode ref object")
		}
		*r = Ref{ID: obj.Value, Name: obj.Name, Emails: contactValues(obj.Email)}
		return nil
	}
	var id int
	if err := json.Unmarshal(b, &id); err != nil {
		return eris.Wrap(err, "pipedrive: decode ref id")
	}
	*r = Ref{ID: id}
	return nil
}

// Person is a Pipedrive person. Emails collects both the search shape
// ("emails": ["a@b"]) and the record shape ("email": [{"value": "a@b"}]).
type Person struct {
	ID     int      `json:"id"`
	Name   string   `json:"name"`
	Emails []string `json:"-"`
	OrgID  int      `json:"-"`
}

// UnmarshalJSON decodes both person shapes.
func (p *Person) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID     int               `json:"id"`
		Name   string            `json:"name"`
		Emails []string          `json:"emails"`
		Email  json.RawMessage   `json:"email"`
		OrgID  *Ref              `json:"org_id"`
		Org    *struct{ ID int } `json:"organization"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "pipedrive: decode person")
	}
	*p = Person{ID: raw.ID, Name: raw.Name, Emails: raw.Emails}
	p.Emails = append(p.Emails, contactValues(raw.Email)...)
	switch {
	case raw.OrgID != nil:
		p.OrgID = raw.OrgID.ID
	case raw.Org != nil:
		p.OrgID = raw.Org.ID
	}
	return nil
}

// HasEmail reports whether email matches one of the person's addresses,
// ignoring case and surrounding whitespace.
func (p Person) HasEmail(email string) bool {
	email = strings.TrimSpace(email)
	for _, e := range p.Emails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}

// contactValues reads [{"value": "..."}], ["..."] or "..." into a list.
func contactValues(b json.RawMessage) []string {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	var objs []struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &objs); err == nil {
		out := make([]string, 0, len(objs))
		for _, o := range objs {
			if o.Value != "" {
				out = append(out, o.Value)
			}
		}
		return out
	}
	var strs []string
	if err := json.Unmarshal(b, &strs); err == nil {
		return strs
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil && s != "" {
		return []string{s}
	}
	return nil
}

// Organization is a Pipedrive organization.
type Organization struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Deal is a Pipedrive deal. Custom fields (40-character hash keys) are
// kept raw in Fields.
type Deal struct {
	ID         int     `json:"id"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	PipelineID int     `json:"pipeline_id"`
	StageID    int     `json:"stage_id"`
	Person     Ref     `json:"person_id"`
	Org        Ref     `json:"org_id"`
	Value      float64 `json:"value"`
	Currency   string  `json:"currency"`
	AddTime    string  `json:"add_time"`
	UpdateTime string  `json:"update_time"`

	Fields map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known members and keeps every member in Fields.
func (d *Deal) UnmarshalJSON(b []byte) error {
	type plain Deal
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return eris.Wrap(err, "pipedrive: decode deal")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return eris.Wrap(err, "pipedrive: decode deal fields")
	}
	*d = Deal(p)
	d.Fields = fields
	return nil
}

// FieldString returns a custom field as a string. Numbers are rendered
// without quotes; null and missing fields yield "".
func (d Deal) FieldString(key string) string {
	raw, ok := d.Fields[key]
	if !ok || key == "" {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Note is a note attached to a deal.
type Note struct {
	ID      int    `json:"id"`
	DealID  int    `json:"deal_id"`
	Content string `json:"content"`
}

// searchResult is the data member of the */search endpoints.
type searchResult[T any] struct {
	Items []struct {
		Item T `json:"item"`
	} `json:"items"`
}

func (r searchResult[T]) items() []T {
	out := make([]T, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, it.Item)
	}
	return out
}
