package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// rodElement wraps a resolved rod element together with the selector that
// found it.
type rodElement struct {
	el       *rod.Element
	selector string
}

func newRodElement(el *rod.Element, selector string) *rodElement {
	return &rodElement{el: el, selector: selector}
}

func (e *rodElement) Selector() string { return e.selector }

func (e *rodElement) Tag() string {
	tag, err := e.el.Eval(`() => this.tagName`)
	if err != nil {
		return ""
	}
	return strings.ToLower(tag.Value.Str())
}

func (e *rodElement) Attr(name string) string {
	val, err := e.el.Attribute(name)
	if err != nil || val == nil {
		return ""
	}
	return *val
}

func (e *rodElement) Text() string {
	text, err := e.el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (e *rodElement) Value() (string, error) {
	prop, err := e.el.Property("value")
	if err != nil {
		return "", err
	}
	return prop.Str(), nil
}

func (e *rodElement) Visible() (bool, error) {
	return e.el.Visible()
}

func (e *rodElement) Enabled() (bool, error) {
	disabled, err := e.el.Property("disabled")
	if err != nil {
		return false, err
	}
	if disabled.Bool() {
		return false, nil
	}
	if e.Attr("aria-disabled") == "true" {
		return false, nil
	}
	return true, nil
}

func (e *rodElement) Box() (Box, error) {
	shape, err := e.el.Shape()
	if err != nil {
		return Box{}, err
	}
	box := shape.Box()
	if box == nil {
		return Box{}, nil
	}
	return Box{X: box.X, Y: box.Y, W: box.Width, H: box.Height}, nil
}

func (e *rodElement) ScrollIntoView() error {
	return e.el.ScrollIntoView()
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Input(text string) error {
	// Clear first so repeated fills do not append.
	if err := e.el.SelectAllText(); err == nil {
		_ = e.el.Input("")
	}
	return e.el.Input(text)
}

func (e *rodElement) Press(key string) error {
	k, err := keyFromName(key)
	if err != nil {
		return err
	}
	return e.el.Type(k)
}

func (e *rodElement) Focus() error {
	return e.el.Focus()
}

func (e *rodElement) Hover() error {
	return e.el.Hover()
}

func (e *rodElement) SelectOption(value string) error {
	return e.el.Select([]string{value}, true, rod.SelectorTypeText)
}

func (e *rodElement) SetChecked(checked bool) error {
	cur, err := e.el.Property("checked")
	if err != nil {
		return err
	}
	if cur.Bool() == checked {
		return nil
	}
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}
