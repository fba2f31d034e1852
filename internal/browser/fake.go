package browser

import (
	"context"
	"strings"
	"sync"
	"time"
)

// FakeElement is an in-memory DOM node for tests. Fields are exported so
// test fixtures can build trees directly.
type FakeElement struct {
	TagName  string
	Attrs    map[string]string
	TextVal  string
	InputVal string
	Hidden   bool
	Disabled bool
	Checked  bool
	BoxVal   Box
	// Moving makes each Box() sample drift, failing bbox stability.
	Moving bool

	ParentEl *FakeElement
	Children []*FakeElement

	Clicks  int
	Focused bool
	Hovered bool
	Pressed []string
	// OnClick runs after a successful click; tests use it to mutate the
	// page (open a dialog, navigate, reveal an element).
	OnClick func()
	OnInput func(text string)

	mu      sync.Mutex
	boxTick int
	lastSel string
}

// El builds a fake element from a tag and attribute key/value pairs.
func El(tag string, kv ...string) *FakeElement {
	attrs := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		attrs[kv[i]] = kv[i+1]
	}
	return &FakeElement{TagName: tag, Attrs: attrs, BoxVal: Box{X: 10, Y: 10, W: 100, H: 20}}
}

// WithText sets the visible text and returns the element.
func (e *FakeElement) WithText(text string) *FakeElement {
	e.TextVal = text
	return e
}

// Add appends children and returns the parent.
func (e *FakeElement) Add(children ...*FakeElement) *FakeElement {
	for _, c := range children {
		c.ParentEl = e
		e.Children = append(e.Children, c)
	}
	return e
}

func (e *FakeElement) Selector() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSel
}

func (e *FakeElement) Tag() string { return strings.ToLower(e.TagName) }

func (e *FakeElement) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Text aggregates the subtree's text to mirror the real driver, which
// returns the element's innerText (own text plus descendants).
func (e *FakeElement) Text() string {
	var parts []string
	walk(e, func(n *FakeElement) {
		if t := strings.TrimSpace(n.TextVal); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

func (e *FakeElement) Value() (string, error) { return e.InputVal, nil }

func (e *FakeElement) Visible() (bool, error) {
	for n := e; n != nil; n = n.ParentEl {
		if n.Hidden {
			return false, nil
		}
	}
	return true, nil
}

func (e *FakeElement) Enabled() (bool, error) { return !e.Disabled, nil }

func (e *FakeElement) Box() (Box, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.BoxVal
	if e.Moving {
		b.X += float64(e.boxTick * 7)
		e.boxTick++
	}
	return b, nil
}

func (e *FakeElement) ScrollIntoView() error { return nil }

func (e *FakeElement) Click() error {
	e.Clicks++
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *FakeElement) Input(text string) error {
	e.InputVal = text
	if e.OnInput != nil {
		e.OnInput(text)
	}
	return nil
}

func (e *FakeElement) Press(key string) error {
	e.Pressed = append(e.Pressed, key)
	return nil
}

func (e *FakeElement) Focus() error {
	e.Focused = true
	return nil
}

func (e *FakeElement) Hover() error {
	e.Hovered = true
	return nil
}

func (e *FakeElement) SelectOption(value string) error {
	e.InputVal = value
	return nil
}

func (e *FakeElement) SetChecked(checked bool) error {
	e.Checked = checked
	return nil
}

// FakeDriver implements Driver over a FakeElement tree.
type FakeDriver struct {
	mu   sync.Mutex
	root *FakeElement

	URLValue    string
	HTMLValue   string
	PageText    string
	Navigated   []string
	PressedKeys []string
	IdleErr     error
	NavErr      error
	NavWaitErr  error
	EvalResults map[string]string
	SavedStates []string
	Screenshots []string
	Closed      bool
	// OnNavigate lets tests swap the tree when the page changes.
	OnNavigate func(url string)
}

// NewFakeDriver builds a driver around a root element tree.
func NewFakeDriver(url string, root *FakeElement) *FakeDriver {
	return &FakeDriver{URLValue: url, root: root}
}

// SetRoot atomically replaces the page tree.
func (d *FakeDriver) SetRoot(root *FakeElement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = root
}

// Root returns the current page tree.
func (d *FakeDriver) Root() *FakeElement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

func (d *FakeDriver) Navigate(ctx context.Context, url string) error {
	if d.NavErr != nil {
		return d.NavErr
	}
	d.mu.Lock()
	d.Navigated = append(d.Navigated, url)
	d.URLValue = url
	hook := d.OnNavigate
	d.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return nil
}

func (d *FakeDriver) CurrentURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.URLValue
}

func (d *FakeDriver) WaitIdle(ctx context.Context, budget time.Duration) error {
	return d.IdleErr
}

func (d *FakeDriver) WaitNavigation(ctx context.Context) error {
	if d.NavWaitErr != nil {
		return d.NavWaitErr
	}
	return ctx.Err()
}

func (d *FakeDriver) HTMLPrefix(ctx context.Context, n int) string {
	if len(d.HTMLValue) > n {
		return d.HTMLValue[:n]
	}
	return d.HTMLValue
}

func (d *FakeDriver) Query(ctx context.Context, selector string) ([]Element, error) {
	return collectMatches(d.Root(), selector), nil
}

func (d *FakeDriver) QueryIn(ctx context.Context, container Element, selector string) ([]Element, error) {
	fe, ok := container.(*FakeElement)
	if !ok {
		return nil, nil
	}
	var out []Element
	for _, c := range fe.Children {
		out = append(out, collectMatches(c, selector)...)
	}
	return out, nil
}

func (d *FakeDriver) Ancestor(ctx context.Context, el Element, selector string) (Element, bool) {
	fe, ok := el.(*FakeElement)
	if !ok {
		return nil, false
	}
	for n := fe.ParentEl; n != nil; n = n.ParentEl {
		if matchesSelectorList(n, selector) {
			n.mu.Lock()
			n.lastSel = selector
			n.mu.Unlock()
			return n, true
		}
	}
	return nil, false
}

func (d *FakeDriver) Eval(ctx context.Context, js string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for frag, res := range d.EvalResults {
		if strings.Contains(js, frag) {
			return res, nil
		}
	}
	return "", nil
}

func (d *FakeDriver) PressKey(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PressedKeys = append(d.PressedKeys, key)
	return nil
}

func (d *FakeDriver) ContainsText(ctx context.Context, text string) (bool, error) {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(d.PageText), needle) {
		return true, nil
	}
	var found bool
	walk(d.Root(), func(e *FakeElement) {
		if strings.Contains(strings.ToLower(e.TextVal), needle) {
			found = true
		}
	})
	return found, nil
}

func (d *FakeDriver) SaveStorageState(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SavedStates = append(d.SavedStates, path)
	return nil
}

func (d *FakeDriver) LoadStorageState(ctx context.Context, path string) error { return nil }

func (d *FakeDriver) Screenshot(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Screenshots = append(d.Screenshots, path)
	return nil
}

func (d *FakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

func walk(e *FakeElement, fn func(*FakeElement)) {
	if e == nil {
		return
	}
	fn(e)
	for _, c := range e.Children {
		walk(c, fn)
	}
}

func collectMatches(root *FakeElement, selector string) []Element {
	var out []Element
	walk(root, func(e *FakeElement) {
		if matchesSelectorList(e, selector) {
			e.mu.Lock()
			e.lastSel = selector
			e.mu.Unlock()
			out = append(out, e)
		}
	})
	return out
}

// matchesSelectorList handles the selector subset discovery emits:
// comma lists of compound simple selectors (tag, #id, .class, [attr],
// [attr="v"], [attr^="v"], [attr*="v"], :not(...)). No combinators.
func matchesSelectorList(e *FakeElement, list string) bool {
	for _, sel := range splitSelectorList(list) {
		if matchesCompound(e, strings.TrimSpace(sel)) {
			return true
		}
	}
	return false
}

// splitSelectorList splits on commas outside brackets and parens.
func splitSelectorList(list string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range list {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, list[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, list[start:])
	return parts
}

func matchesCompound(e *FakeElement, sel string) bool {
	if sel == "" || sel == "*" {
		return sel == "*"
	}
	for _, part := range tokenizeCompound(sel) {
		if !matchesSimple(e, part) {
			return false
		}
	}
	return true
}

// tokenizeCompound splits "input[type=\"text\"].big:not(x)" into simple
// selector tokens.
func tokenizeCompound(sel string) []string {
	var tokens []string
	i := 0
	for i < len(sel) {
		switch sel[i] {
		case '[':
			end := strings.IndexByte(sel[i:], ']')
			if end < 0 {
				tokens = append(tokens, sel[i:])
				return tokens
			}
			tokens = append(tokens, sel[i:i+end+1])
			i += end + 1
		case '.', '#':
			j := i + 1
			for j < len(sel) && !strings.ContainsRune("[.#:", rune(sel[j])) {
				j++
			}
			tokens = append(tokens, sel[i:j])
			i = j
		case ':':
			depth := 0
			j := i
			for j < len(sel) {
				if sel[j] == '(' {
					depth++
				} else if sel[j] == ')' {
					depth--
					if depth == 0 {
						j++
						break
					}
				} else if depth == 0 && j > i && strings.ContainsRune("[.#:", rune(sel[j])) {
					break
				}
				j++
			}
			tokens = append(tokens, sel[i:j])
			i = j
		default:
			j := i
			for j < len(sel) && !strings.ContainsRune("[.#:", rune(sel[j])) {
				j++
			}
			tokens = append(tokens, sel[i:j])
			i = j
		}
	}
	return tokens
}

func matchesSimple(e *FakeElement, token string) bool {
	switch {
	case token == "":
		return true
	case strings.HasPrefix(token, "#"):
		return e.Attr("id") == token[1:]
	case strings.HasPrefix(token, "."):
		for _, c := range strings.Fields(e.Attr("class")) {
			if c == token[1:] {
				return true
			}
		}
		return false
	case strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]"):
		return matchesAttr(e, token[1:len(token)-1])
	case strings.HasPrefix(token, ":not(") && strings.HasSuffix(token, ")"):
		inner := token[len(":not(") : len(token)-1]
		return !matchesCompound(e, inner)
	default:
		return strings.EqualFold(e.TagName, token)
	}
}

func matchesAttr(e *FakeElement, expr string) bool {
	for _, op := range []string{"^=", "*=", "$=", "="} {
		if idx := strings.Index(expr, op); idx >= 0 {
			name := expr[:idx]
			val := strings.Trim(expr[idx+len(op):], `"'`)
			got, ok := e.Attrs[name]
			if !ok {
				return false
			}
			switch op {
			case "^=":
				return strings.HasPrefix(got, val)
			case "*=":
				return strings.Contains(got, val)
			case "$=":
				return strings.HasSuffix(got, val)
			default:
				return got == val
			}
		}
	}
	_, ok := e.Attrs[expr]
	return ok
}
