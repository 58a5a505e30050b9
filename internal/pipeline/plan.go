package pipeline

import (
	"encoding/json"
	"strings"
)

// LayoutPlan is the ordered list of page section identifiers that survives
// coercion and sanitization. An empty plan is valid; downstream stages must
// tolerate it.
type LayoutPlan []string

// UnmarshalJSON accepts both persisted shapes of a plan: a JSON array of
// sections, or a string serialization coerced on the way in. Rejecting the
// string form would discard the whole state document and with it the
// completed-steps record.
func (p *LayoutPlan) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*p = LayoutPlan(direct)
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	*p = LayoutPlan(CoerceSections(text))
	return nil
}

// PlanPayload is the tagged shape a plan arrives in from the model: either
// an already-parsed sequence or raw text still needing coercion. Exactly one
// side is populated.
type PlanPayload struct {
	Parsed []string
	Raw    string
}

// UnmarshalJSON accepts the shapes models actually emit: a bare array, a
// quoted pseudo-array like "[hero, pricing]", or an object wrapping the
// array under a plan/sections/layout key.
func (p *PlanPayload) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		p.Parsed = direct
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		p.Raw = text
		return nil
	}

	var wrapped struct {
		Plan     []string `json:"plan"`
		Sections []string `json:"sections"`
		Layout   []string `json:"layout"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	switch {
	case wrapped.Plan != nil:
		p.Parsed = wrapped.Plan
	case wrapped.Sections != nil:
		p.Parsed = wrapped.Sections
	case wrapped.Layout != nil:
		p.Parsed = wrapped.Layout
	}
	return nil
}

// Sections resolves the payload into a plain sequence, coercing raw text
// when no parsed form exists.
func (p PlanPayload) Sections() []string {
	if p.Parsed != nil {
		return normalizeSections(p.Parsed)
	}
	return CoerceSections(p.Raw)
}

// CoerceSections turns model text into a section sequence without ever
// evaluating it. JSON parsing is tried first; the bracket-splitting path
// handles pseudo-arrays like "[hero, pricing]". Failure yields an empty
// sequence, never an error.
func CoerceSections(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var direct []string
	if err := json.Unmarshal([]byte(raw), &direct); err == nil {
		return normalizeSections(direct)
	}

	var quoted string
	if err := json.Unmarshal([]byte(raw), &quoted); err == nil {
		return splitBracketList(quoted)
	}

	return splitBracketList(raw)
}

// splitBracketList splits "[a, b, c]"-style text on commas. Text without a
// bracketed region coerces to nothing.
func splitBracketList(s string) []string {
	open := strings.Index(s, "[")
	closing := strings.LastIndex(s, "]")
	if open == -1 || closing <= open {
		return nil
	}

	parts := strings.Split(s[open+1:closing], ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	return normalizeSections(out)
}

func normalizeSections(sections []string) []string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FilterToAvailable drops sections the component library cannot satisfy,
// preserving order. An empty library accepts everything.
func FilterToAvailable(sections, available []string) LayoutPlan {
	if len(available) == 0 {
		return LayoutPlan(sections)
	}

	known := make(map[string]bool, len(available))
	for _, a := range available {
		known[strings.ToLower(strings.TrimSpace(a))] = true
	}

	plan := make(LayoutPlan, 0, len(sections))
	for _, s := range sections {
		if known[s] {
			plan = append(plan, s)
		}
	}
	return plan
}
