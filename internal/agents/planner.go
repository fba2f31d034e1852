package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"pacts/internal/logging"
	"pacts/internal/types"
)

// suiteSchema validates the Suite wire format before expansion.
const suiteSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["testcases"],
	"properties": {
		"testcases": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "steps"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"steps": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["target", "action"],
							"properties": {
								"target": {"type": "string", "minLength": 1},
								"action": {"type": "string", "enum": ["click","fill","type","press","select","check","uncheck","hover","focus","wait","navigate"]},
								"value": {"type": "string"},
								"outcome": {"type": "string"}
							}
						}
					},
					"outcomes": {"type": "array", "items": {"type": "string"}},
					"data": {"type": "array", "items": {"type": "object", "additionalProperties": {"type": "string"}}}
				}
			}
		}
	}
}`

var suiteSchemaCompiled = jsonschema.MustCompileString("suite.json", suiteSchema)

// ParseSuite validates raw Suite JSON and decodes it.
func ParseSuite(raw []byte) (*types.Suite, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("suite is not valid JSON: %w", err)
	}
	if err := suiteSchemaCompiled.Validate(doc); err != nil {
		return nil, fmt.Errorf("suite failed validation: %w", err)
	}
	var suite types.Suite
	if err := json.Unmarshal(raw, &suite); err != nil {
		return nil, err
	}
	return &suite, nil
}

var (
	tokenRe   = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)
	ordinalRe = regexp.MustCompile(`^(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth|\d+(?:st|nd|rd|th))\s+(\S+)`)
	// Element names that open a container whose fields follow.
	modalOpenerRe = regexp.MustCompile(`(?i)\bapp launcher\b|^new\b|\bmenu\b|^open\b`)
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

// scopePropagationWindow is how many intents inherit a scope hint after a
// modal-opening step.
const scopePropagationWindow = 4

// substituteTokens binds {{name}} templates against the data row. Missing
// tokens stay literal; discovery may still succeed on them. The second
// return reports whether any secret-sourced token was bound.
func substituteTokens(template string, row map[string]string, secrets map[string]bool) (string, bool, bool) {
	secret := false
	unresolved := false
	out := tokenRe.ReplaceAllStringFunc(template, func(tok string) string {
		name := tokenRe.FindStringSubmatch(tok)[1]
		if val, ok := row[name]; ok {
			if secrets[name] {
				secret = true
			}
			return val
		}
		unresolved = true
		return tok
	})
	return out, secret, unresolved
}

// parseOrdinal decodes the "(first|second|...|Nth) <type>" grammar. The
// literal name is preserved by the caller for logging.
func parseOrdinal(elementName string) (ordinal int, typeHint string, ok bool) {
	m := ordinalRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(elementName)))
	if m == nil {
		return -1, "", false
	}
	if n, isWord := ordinalWords[m[1]]; isWord {
		return n - 1, m[2], true
	}
	digits := strings.TrimRight(m[1], "stndrh")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return -1, "", false
	}
	return n - 1, m[2], true
}

// parseLegacyLine decodes "target | action | value".
func parseLegacyLine(line string) (types.SuiteStep, bool) {
	parts := strings.Split(line, "|")
	if len(parts) < 2 {
		return types.SuiteStep{}, false
	}
	step := types.SuiteStep{
		Target: strings.TrimSpace(parts[0]),
		Action: strings.ToLower(strings.TrimSpace(parts[1])),
	}
	if len(parts) > 2 {
		step.Value = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		step.Outcome = strings.TrimSpace(parts[3])
	}
	if step.Target == "" || !types.Action(step.Action).Valid() {
		return types.SuiteStep{}, false
	}
	return step, true
}

// Planner converts the structured input on the RunState context into an
// executable plan. It binds data, decorates ordinals, derives assertion
// steps, and propagates scope hints; it never rewrites step intent.
func (r *Runtime) Planner(ctx context.Context, s *types.RunState) *types.RunState {
	log := logging.Get(logging.CategoryPlanner)

	steps := suiteStepsFromContext(s)
	if len(steps) == 0 {
		log.Error("no suite steps and no raw steps for req=%s", s.ReqID)
		s.Verdict = types.VerdictError
		s.RCA = types.RCA{Class: types.RCAUnknown, Confidence: 1, Notes: "no plan input"}
		return s
	}

	row, _ := s.Context[CtxDataRow].(map[string]string)
	secrets, _ := s.Context[CtxSecretTokens].(map[string]bool)

	var plan types.Plan
	pendingScope := ""
	pendingLeft := 0
	anyUnresolved := false
	for _, step := range steps {
		name, _, u1 := substituteTokens(step.Target, row, secrets)
		value, secret, u2 := substituteTokens(step.Value, row, secrets)
		outcome, _, u3 := substituteTokens(step.Outcome, row, secrets)
		if u1 || u2 || u3 {
			anyUnresolved = true
		}

		intent := types.Intent{
			ElementName: name,
			Action:      types.Action(strings.ToLower(step.Action)),
			Value:       value,
			Outcome:     outcome,
			Ordinal:     -1,
			Secret:      secret,
		}
		if ord, hint, ok := parseOrdinal(name); ok {
			intent.Ordinal = ord
			intent.ElementTypeHint = hint
		}
		if pendingLeft > 0 && intent.ScopeHint == "" {
			intent.ScopeHint = pendingScope
			pendingLeft--
		}
		plan = append(plan, intent)

		// A navigation outcome also asserts the destination rendered.
		if token, ok := intent.NavigatesTo(); ok {
			plan = append(plan, types.Intent{
				ElementName: name,
				Action:      types.ActionWait,
				Outcome:     types.OutcomePageContainsText + token,
				Ordinal:     -1,
			})
		}

		if intent.Action == types.ActionClick && modalOpenerRe.MatchString(name) {
			pendingScope = name
			pendingLeft = scopePropagationWindow
		}
	}

	s.Plan = plan
	s.Intents = append(types.Plan{}, plan...)
	s.PlanHash = plan.Hash()
	if anyUnresolved {
		s.Context[CtxUnresolvedData] = true
		log.Warn("req=%s plan has unresolved data tokens", s.ReqID)
	}
	log.Info("req=%s planned %d steps hash=%s", s.ReqID, len(plan), s.PlanHash[:12])
	return s
}

func suiteStepsFromContext(s *types.RunState) []types.SuiteStep {
	if steps, ok := s.Context[CtxSuiteSteps].([]types.SuiteStep); ok && len(steps) > 0 {
		return steps
	}
	raw, ok := s.Context[CtxRawSteps].([]string)
	if !ok {
		return nil
	}
	var steps []types.SuiteStep
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if step, ok := parseLegacyLine(line); ok {
			steps = append(steps, step)
		}
	}
	return steps
}

// ExpandSuite instantiates one (testcase, data row) pair per plan input.
// Testcases without data rows expand once with an empty row.
func ExpandSuite(suite *types.Suite) []map[string]any {
	var runs []map[string]any
	for _, tc := range suite.TestCases {
		rows := tc.Data
		if len(rows) == 0 {
			rows = []map[string]string{{}}
		}
		for i, row := range rows {
			runs = append(runs, map[string]any{
				"case_id":     tc.ID,
				"row_idx":     i,
				CtxSuiteSteps: tc.Steps,
				CtxDataRow:    row,
			})
		}
	}
	return runs
}
