// Package browser provides the run-scoped browser driver for PACTS. A
// Manager owns one Chrome process; each run borrows an isolated page
// context exposed through the Driver interface. Discovery, the gate, and
// the executor depend only on Driver and Element so tests run against an
// in-memory fake DOM.
package browser

import (
	"context"
	"time"
)

// Box is an element bounding box in page coordinates.
type Box struct {
	X, Y, W, H float64
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool { return b.W <= 0 || b.H <= 0 }

// Element is one resolved DOM element.
type Element interface {
	// Selector returns the selector string that resolves this element.
	Selector() string
	// Tag returns the lowercase tag name.
	Tag() string
	// Attr returns an attribute value, or "" when absent.
	Attr(name string) string
	// Text returns the visible text content, trimmed.
	Text() string
	// Value returns the current input value.
	Value() (string, error)

	Visible() (bool, error)
	Enabled() (bool, error)
	Box() (Box, error)
	ScrollIntoView() error

	Click() error
	Input(text string) error
	Press(key string) error
	Focus() error
	Hover() error
	SelectOption(value string) error
	SetChecked(checked bool) error
}

// Driver is the session-holding handle one run owns exclusively.
type Driver interface {
	// Navigate loads the URL and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the page's current location.
	CurrentURL() string
	// WaitIdle blocks until network-idle or the budget elapses.
	WaitIdle(ctx context.Context, budget time.Duration) error
	// WaitNavigation blocks until the next navigation completes or ctx ends.
	WaitNavigation(ctx context.Context) error
	// HTMLPrefix returns up to n bytes of the page HTML.
	HTMLPrefix(ctx context.Context, n int) string

	// Query returns all elements matching the selector, document order.
	Query(ctx context.Context, selector string) ([]Element, error)
	// QueryIn restricts the query to descendants of container.
	QueryIn(ctx context.Context, container Element, selector string) ([]Element, error)
	// Ancestor walks up from el to the nearest ancestor matching selector.
	Ancestor(ctx context.Context, el Element, selector string) (Element, bool)

	// Eval runs a JS function `() => ...` and returns its JSON result.
	Eval(ctx context.Context, js string) (string, error)
	// PressKey dispatches a key at the page level, bypassing focus traps.
	PressKey(ctx context.Context, key string) error
	// ContainsText reports whether the rendered page contains text.
	ContainsText(ctx context.Context, text string) (bool, error)

	// SaveStorageState persists cookies + web storage for the current host.
	SaveStorageState(ctx context.Context, path string) error
	// LoadStorageState restores a previously saved state blob.
	LoadStorageState(ctx context.Context, path string) error

	// Screenshot writes a PNG capture to path.
	Screenshot(ctx context.Context, path string) error

	// Close releases the page context.
	Close() error
}

// Roles used by the ordinal tier and tier-6 discovery, mapped to the CSS
// that enumerates both explicit role attributes and implicit-role tags.
var roleSelectors = map[string]string{
	"link":     `a[href], [role="link"]`,
	"button":   `button, [role="button"], input[type="submit"], input[type="button"]`,
	"tab":      `[role="tab"]`,
	"listitem": `li, [role="listitem"]`,
	"article":  `article, [role="article"]`,
	"textbox":  `input:not([type]), input[type="text"], input[type="search"], textarea, [role="textbox"], [role="searchbox"], [contenteditable="true"]`,
	"combobox": `select, [role="combobox"]`,
	"checkbox": `input[type="checkbox"], [role="checkbox"]`,
	"heading":  `h1, h2, h3, h4, h5, h6, [role="heading"]`,
	"row":      `tr, [role="row"]`,
	"option":   `option, [role="option"]`,
	"dialog":   `dialog, [role="dialog"], [role="alertdialog"]`,
}

// RoleSelector returns the CSS enumeration for an accessibility role.
func RoleSelector(role string) (string, bool) {
	sel, ok := roleSelectors[role]
	return sel, ok
}
