package discovery

import (
	"fmt"
	"strings"

	"pacts/internal/browser"
	"pacts/internal/types"
)

// Input is what a tier sees: the intent plus the healer's widening flag.
type Input struct {
	Intent types.Intent
	Widen  bool
}

// queryFn abstracts scoped vs document-wide queries for the tiers.
type queryFn func(selector string) []browser.Element

type tierFn func(q queryFn, in Input) (types.SelectorRecord, bool)

// tierSpec binds a strategy name to its waterfall position, base score,
// stability class, and implementation.
type tierSpec struct {
	Strategy types.Strategy
	Tier     int
	Score    float64
	Stable   bool
	fn       tierFn
}

// tierTable is the waterfall. Order matters; the healer re-walks the same
// table in ledger-ranked order.
var tierTable []tierSpec

// Populated in init to avoid an initialization cycle: the tier functions
// call specFor, which reads tierTable.
func init() {
	tierTable = []tierSpec{
		{types.StrategyAriaLabel, 1, 0.98, true, tierAriaLabel},
		{types.StrategyAriaPlaceholder, 2, 0.96, true, tierAriaPlaceholder},
		{types.StrategyNameAttr, 3, 0.94, true, tierNameAttr},
		{types.StrategyPlaceholder, 4, 0.90, true, tierPlaceholder},
		{types.StrategyLabelFor, 5, 0.86, true, tierLabelFor},
		{types.StrategyRole, 6, 0.95, false, tierRole},
		{types.StrategyDataTest, 7, 0.80, true, tierDataTest},
		{types.StrategyIDClass, 8, 0.70, false, tierIDClass},
	}
}

func specFor(strategy types.Strategy) (tierSpec, bool) {
	for _, spec := range tierTable {
		if spec.Strategy == strategy {
			return spec, true
		}
	}
	return tierSpec{}, false
}

// cssString quotes an attribute value for use inside [attr="..."].
func cssString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// idSelector renders #id, falling back to the attribute form when the id
// contains characters CSS identifiers cannot carry.
func idSelector(id string) string {
	for _, r := range id {
		if !(r == '-' || r == '_' || (r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return fmt.Sprintf(`[id=%s]`, cssString(id))
		}
	}
	return "#" + id
}

// attrCandidate is the shared shape of tiers 1-4 and 7: enumerate
// elements carrying an attribute, fuzzy-match its value, emit an
// attribute-equality selector.
func attrCandidate(q queryFn, in Input, spec tierSpec, attr string, selFor func(el browser.Element, val string) string) (types.SelectorRecord, bool) {
	best := Match{}
	var bestEl browser.Element
	var bestVal string
	for _, el := range q("[" + attr + "]") {
		val := el.Attr(attr)
		m := MatchName(val, in.Intent.ElementName, in.Widen)
		if !m.Found() || !GuardrailOK(in.Intent, el, val) {
			continue
		}
		if m.Better(best) {
			best, bestEl, bestVal = m, el, val
		}
	}
	if bestEl == nil {
		return types.SelectorRecord{}, false
	}
	return types.SelectorRecord{
		Selector: selFor(bestEl, bestVal),
		Score:    spec.Score,
		Strategy: spec.Strategy,
		Stable:   spec.Stable,
		Meta:     types.SelectorMeta{Tier: spec.Tier, MatchedText: bestVal},
	}, true
}

func tierAriaLabel(q queryFn, in Input) (types.SelectorRecord, bool) {
	spec, _ := specFor(types.StrategyAriaLabel)
	return attrCandidate(q, in, spec, "aria-label", func(el browser.Element, val string) string {
		return fmt.Sprintf(`[aria-label=%s]`, cssString(val))
	})
}

func tierAriaPlaceholder(q queryFn, in Input) (types.SelectorRecord, bool) {
	spec, _ := specFor(types.StrategyAriaPlaceholder)
	return attrCandidate(q, in, spec, "aria-placeholder", func(el browser.Element, val string) string {
		return fmt.Sprintf(`[aria-placeholder=%s]`, cssString(val))
	})
}

func tierNameAttr(q queryFn, in Input) (types.SelectorRecord, bool) {
	spec, _ := specFor(types.StrategyNameAttr)
	return attrCandidate(q, in, spec, "name", func(el browser.Element, val string) string {
		tag := el.Tag()
		if tag == "" {
			return fmt.Sprintf(`[name=%s]`, cssString(val))
		}
		return fmt.Sprintf(`%s[name=%s]`, tag, cssString(val))
	})
}

func tierPlaceholder(q queryFn, in Input) (types.SelectorRecord, bool) {
	spec, _ := specFor(types.StrategyPlaceholder)
	return attrCandidate(q, in, spec, "placeholder", func(el browser.Element, val string) string {
		return fmt.Sprintf(`[placeholder=%s]`, cssString(val))
	})
}

// tierLabelFor matches visible label text and follows the for= reference
// to the labeled control.
func tierLabelFor(q queryFn, in Input) (types.SelectorRecord, bool) {
	spec, _ := specFor(types.StrategyLabelFor)
	best := Match{}
	bestID, bestText := "", ""
	for _, label := range q("label[for]") {
		text := label.Text()
		m := MatchName(text, in.Intent.ElementName, in.Widen)
		if !m.Found() {
			continue
		}
		if m.Better(best) {
			best, bestID, bestText = m, label.Attr("for"), text
		}
	}
	if bestID == "" {
		return types.SelectorRecord{}, false
	}
	sel := idSelector(bestID)
	targets := q(sel)
	if len(targets) == 0 || !GuardrailOK(in.Intent, targets[0], bestText) {
		return types.SelectorRecord{}, false
	}
	return types.SelectorRecord{
		Selector: sel,
		Score:    spec.Score,
		Strategy: spec.Strategy,
		Stable:   spec.Stable,
		Meta:     types.SelectorMeta{Tier: spec.Tier, MatchedText: bestText},
	}, true
}

// actionRoles maps an action to the roles worth probing, most specific
// first. The element type hint, when present, prepends its role.
var actionRoles = map[types.Action][]string{
	types.ActionClick:   {"button", "link", "tab"},
	types.ActionFill:    {"textbox"},
	types.ActionType:    {"textbox"},
	types.ActionPress:   {"textbox"},
	types.ActionSelect:  {"combobox"},
	types.ActionCheck:   {"checkbox"},
	types.ActionUncheck: {"checkbox"},
	types.ActionHover:   {"button", "link", "textbox"},
	types.ActionFocus:   {"textbox", "button", "link"},
}

// tierRole probes role enumerations and matches the accessible name. The
// emitted selector is the role enumeration itself plus a positional index
// in meta, which is exactly why this tier is volatile.
func tierRole(q queryFn, in Input) (types.SelectorRecord, bool) {
	spec, _ := specFor(types.StrategyRole)
	roles := actionRoles[in.Intent.Action]
	if len(roles) == 0 {
		roles = []string{"button", "link", "tab"}
	}
	if hint := roleForHint(in.Intent.ElementTypeHint); hint != "" {
		roles = append([]string{hint}, roles...)
	}

	for _, role := range roles {
		roleSel, ok := browser.RoleSelector(role)
		if !ok {
			continue
		}
		els := q(roleSel)
		best := Match{}
		bestIdx, bestText := -1, ""
		for i, el := range els {
			name := el.Attr("aria-label")
			if name == "" {
				name = el.Text()
			}
			if name == "" {
				name = el.Attr("title")
			}
			m := MatchName(name, in.Intent.ElementName, in.Widen)
			if !m.Found() || !GuardrailOK(in.Intent, el, name) {
				continue
			}
			if m.Better(best) {
				best, bestIdx, bestText = m, i, name
			}
		}
		if bestIdx >= 0 {
			return types.SelectorRecord{
				Selector: roleSel,
				Score:    spec.Score,
				Strategy: spec.Strategy,
				Stable:   spec.Stable,
				Meta: types.SelectorMeta{
					Tier:        spec.Tier,
					MatchedText: bestText,
					Role:        role,
					Ordinal:     bestIdx,
				},
			}, true
		}
	}
	return types.SelectorRecord{}, false
}

// testAttrs are the data-* hooks teams leave for their own test suites.
var testAttrs = []string{"data-test", "data-testid", "data-test-id", "data-cy", "data-qa"}

func tierDataTest(q queryFn, in Input) (types.SelectorRecord, bool) {
	spec, _ := specFor(types.StrategyDataTest)
	for _, attr := range testAttrs {
		if rec, ok := attrCandidate(q, in, spec, attr, func(el browser.Element, val string) string {
			return fmt.Sprintf(`[%s=%s]`, attr, cssString(val))
		}); ok {
			return rec, true
		}
	}
	return types.SelectorRecord{}, false
}

func tierIDClass(q queryFn, in Input) (types.SelectorRecord, bool) {
	spec, _ := specFor(types.StrategyIDClass)
	if rec, ok := attrCandidate(q, in, spec, "id", func(el browser.Element, val string) string {
		return idSelector(val)
	}); ok {
		return rec, true
	}

	// Class tokens: match any single class against the element name.
	best := Match{}
	bestClass := ""
	for _, el := range q("[class]") {
		for _, class := range strings.Fields(el.Attr("class")) {
			m := MatchName(class, in.Intent.ElementName, in.Widen)
			if !m.Found() || !GuardrailOK(in.Intent, el, class) {
				continue
			}
			if m.Better(best) {
				best, bestClass = m, class
			}
		}
	}
	if bestClass == "" {
		return types.SelectorRecord{}, false
	}
	return types.SelectorRecord{
		Selector: "." + bestClass,
		Score:    spec.Score,
		Strategy: spec.Strategy,
		Stable:   spec.Stable,
		Meta:     types.SelectorMeta{Tier: spec.Tier, MatchedText: bestClass},
	}, true
}

// hintRoles maps element type hints from the ordinal grammar to
// accessibility roles.
var hintRoles = map[string]string{
	"video": "link", "result": "link", "link": "link",
	"item": "listitem", "entry": "listitem",
	"card": "article", "article": "article", "post": "article",
	"button": "button", "tab": "tab", "row": "row",
	"option": "option", "heading": "heading", "title": "heading",
	"field": "textbox", "input": "textbox",
}

func roleForHint(hint string) string {
	if hint == "" {
		return ""
	}
	key := Normalize(hint)
	if role, ok := hintRoles[key]; ok {
		return role
	}
	if _, ok := browser.RoleSelector(key); ok {
		return key
	}
	return ""
}

// ordinalScore is deliberately below every waterfall tier: positional
// selection is a last resort, not evidence of stability.
const ordinalScore = 0.60

// tierOrdinal resolves "Nth <type>" intents. It preempts the waterfall
// when the intent carries an ordinal; an out-of-range ordinal falls
// through to the regular tiers.
func tierOrdinal(q queryFn, in Input) (types.SelectorRecord, bool) {
	role := roleForHint(in.Intent.ElementTypeHint)
	if role == "" {
		role = "link"
	}
	roleSel, ok := browser.RoleSelector(role)
	if !ok {
		return types.SelectorRecord{}, false
	}
	els := q(roleSel)
	if in.Intent.Ordinal < 0 || in.Intent.Ordinal >= len(els) {
		return types.SelectorRecord{}, false
	}
	return types.SelectorRecord{
		Selector: roleSel,
		Score:    ordinalScore,
		Strategy: types.StrategyOrdinal,
		Stable:   false,
		Meta: types.SelectorMeta{
			Tier:    0,
			Role:    role,
			Ordinal: in.Intent.Ordinal,
		},
	}, true
}
