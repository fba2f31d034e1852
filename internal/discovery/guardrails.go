package discovery

import (
	"strings"

	"pacts/internal/browser"
	"pacts/internal/types"
)

// Labels that belong to layout chrome, never to user-facing controls.
// Matching one of these is always a false positive.
var chromeLabels = []string{"column width", "resize", "splitter"}

// Suffix nouns that disambiguate generic element names: "Search field"
// must resolve to something editable, "Save button" to something
// clickable.
var suffixNouns = map[string]string{
	"field":  "editable",
	"input":  "editable",
	"search": "editable",
	"box":    "editable",
	"button": "clickable",
}

// rejectedInputTypes lists input types that can never satisfy a fill.
var rejectedInputTypes = map[string]bool{
	"range": true, "color": true, "file": true,
	"submit": true, "button": true, "checkbox": true, "radio": true,
	"image": true, "reset": true, "hidden": true,
}

// GuardrailOK rejects semantically incompatible candidates before a tier
// can emit them.
func GuardrailOK(intent types.Intent, el browser.Element, matchedText string) bool {
	lowered := strings.ToLower(matchedText)
	for _, chrome := range chromeLabels {
		if strings.Contains(lowered, chrome) {
			return false
		}
	}

	tag := el.Tag()
	switch intent.Action {
	case types.ActionFill, types.ActionType:
		// A control that opens an input panel may receive a fill; the
		// executor clicks it first and fills what appears.
		if opensInputPanel(el) {
			break
		}
		if tag == "select" || tag == "button" {
			return false
		}
		if tag == "input" && rejectedInputTypes[strings.ToLower(el.Attr("type"))] {
			return false
		}
	case types.ActionCheck, types.ActionUncheck:
		if tag == "input" && el.Attr("type") != "checkbox" && el.Attr("type") != "radio" {
			return false
		}
	case types.ActionSelect:
		if tag == "input" && rejectedInputTypes[strings.ToLower(el.Attr("type"))] {
			return false
		}
	}

	if noun, ok := suffixNoun(intent.ElementName); ok {
		switch noun {
		case "editable":
			return isEditable(el)
		case "clickable":
			return isClickable(el)
		}
	}
	return true
}

// opensInputPanel recognizes activators: closed comboboxes and controls
// that declare a popup holding the real input.
func opensInputPanel(el browser.Element) bool {
	switch el.Attr("aria-haspopup") {
	case "listbox", "dialog", "true":
		return true
	}
	return el.Attr("role") == "combobox" && el.Tag() != "input" && el.Tag() != "select"
}

func suffixNoun(elementName string) (string, bool) {
	toks := tokensOf(elementName)
	if len(toks) < 2 {
		return "", false
	}
	kind, ok := suffixNouns[toks[len(toks)-1]]
	return kind, ok
}

func isEditable(el browser.Element) bool {
	switch el.Tag() {
	case "textarea":
		return true
	case "input":
		return !rejectedInputTypes[strings.ToLower(el.Attr("type"))]
	}
	if el.Attr("contenteditable") == "true" {
		return true
	}
	role := el.Attr("role")
	return role == "textbox" || role == "searchbox" || role == "combobox"
}

func isClickable(el browser.Element) bool {
	switch el.Tag() {
	case "button", "a":
		return true
	case "input":
		t := strings.ToLower(el.Attr("type"))
		return t == "submit" || t == "button" || t == "image"
	}
	role := el.Attr("role")
	return role == "button" || role == "link" || role == "tab" || role == "menuitem"
}
