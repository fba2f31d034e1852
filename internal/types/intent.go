// Package types holds the shared data model passed between PACTS graph
// nodes: intents, plans, run state, selector records, and cache entries.
package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Action is the interaction verb an intent requests.
type Action string

const (
	ActionClick    Action = "click"
	ActionFill     Action = "fill"
	ActionType     Action = "type"
	ActionPress    Action = "press"
	ActionSelect   Action = "select"
	ActionCheck    Action = "check"
	ActionUncheck  Action = "uncheck"
	ActionHover    Action = "hover"
	ActionFocus    Action = "focus"
	ActionWait     Action = "wait"
	ActionNavigate Action = "navigate"
)

// Editable reports whether the action writes into the element.
func (a Action) Editable() bool {
	switch a {
	case ActionFill, ActionType, ActionSelect, ActionCheck, ActionUncheck:
		return true
	}
	return false
}

// Valid reports whether a is a known action verb.
func (a Action) Valid() bool {
	switch a {
	case ActionClick, ActionFill, ActionType, ActionPress, ActionSelect,
		ActionCheck, ActionUncheck, ActionHover, ActionFocus, ActionWait,
		ActionNavigate:
		return true
	}
	return false
}

// Intent is a declarative step description. It never carries a selector;
// discovery binds selectors later.
type Intent struct {
	ElementName     string `json:"element_name"`
	Action          Action `json:"action"`
	Value           string `json:"value,omitempty"`
	ScopeHint       string `json:"scope_hint,omitempty"`
	Ordinal         int    `json:"ordinal"` // -1 when absent
	ElementTypeHint string `json:"element_type_hint,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
	Secret          bool   `json:"secret,omitempty"`
}

// HasOrdinal reports whether the intent selects a positional element.
func (i Intent) HasOrdinal() bool { return i.Ordinal >= 0 }

// Outcome token prefixes recognized by the executor.
const (
	OutcomeFieldPopulated   = "field_populated"
	OutcomeNavigatesTo      = "navigates_to:"
	OutcomePageContainsText = "page_contains_text:"
)

// NavigatesTo returns the navigation token, if the outcome declares one.
func (i Intent) NavigatesTo() (string, bool) {
	if strings.HasPrefix(i.Outcome, OutcomeNavigatesTo) {
		return strings.TrimPrefix(i.Outcome, OutcomeNavigatesTo), true
	}
	return "", false
}

// PageContainsText returns the text token, if the outcome declares one.
func (i Intent) PageContainsText() (string, bool) {
	if strings.HasPrefix(i.Outcome, OutcomePageContainsText) {
		return strings.TrimPrefix(i.Outcome, OutcomePageContainsText), true
	}
	return "", false
}

// Suite is the structured plan input: test cases with step templates and
// data rows. One plan is expanded per testcase x data row.
type Suite struct {
	TestCases []TestCase `json:"testcases"`
}

// TestCase is one named scenario within a suite.
type TestCase struct {
	ID       string              `json:"id"`
	Steps    []SuiteStep         `json:"steps"`
	Outcomes []string            `json:"outcomes,omitempty"`
	Data     []map[string]string `json:"data,omitempty"`
}

// SuiteStep is the wire form of an intent template.
type SuiteStep struct {
	Target  string `json:"target"`
	Action  string `json:"action"`
	Value   string `json:"value,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

// Plan is an ordered sequence of instantiated intents for one run.
type Plan []Intent

// Hash returns the deterministic content hash of the plan: blake3 over the
// canonical JSON of every intent with map keys sorted. Equal plans hash
// equal bit-for-bit regardless of when or where they were expanded.
func (p Plan) Hash() string {
	h := blake3.New()
	for _, in := range p {
		// Marshal through an ordered key list so the encoding is canonical.
		fields := map[string]string{
			"element_name": in.ElementName,
			"action":       string(in.Action),
			"value":        in.Value,
			"scope_hint":   in.ScopeHint,
			"ordinal":      fmt.Sprintf("%d", in.Ordinal),
			"type_hint":    in.ElementTypeHint,
			"outcome":      in.Outcome,
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.WriteString(k)
			h.WriteString("=")
			h.WriteString(fields[k])
			h.WriteString(";")
		}
		h.WriteString("\n")
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
