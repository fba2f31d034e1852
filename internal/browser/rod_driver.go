package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// rodDriver adapts a rod page to the Driver interface. One instance per
// run; never shared.
type rodDriver struct {
	page       *rod.Page
	navTimeout time.Duration
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx).Timeout(d.navTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (d *rodDriver) CurrentURL() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (d *rodDriver) WaitIdle(ctx context.Context, budget time.Duration) error {
	return d.page.Context(ctx).WaitIdle(budget)
}

func (d *rodDriver) WaitNavigation(ctx context.Context) error {
	wait := d.page.Context(ctx).WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	wait()
	return ctx.Err()
}

func (d *rodDriver) HTMLPrefix(ctx context.Context, n int) string {
	html, err := d.page.Context(ctx).HTML()
	if err != nil {
		return ""
	}
	if len(html) > n {
		return html[:n]
	}
	return html
}

func (d *rodDriver) Query(ctx context.Context, selector string) ([]Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, newRodElement(el, selector))
	}
	return out, nil
}

func (d *rodDriver) QueryIn(ctx context.Context, container Element, selector string) ([]Element, error) {
	rc, ok := container.(*rodElement)
	if !ok {
		return nil, fmt.Errorf("container is not a rod element")
	}
	els, err := rc.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("scoped query %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, newRodElement(el, selector))
	}
	return out, nil
}

func (d *rodDriver) Ancestor(ctx context.Context, el Element, selector string) (Element, bool) {
	re, ok := el.(*rodElement)
	if !ok {
		return nil, false
	}
	cur := re.el
	for {
		parent, err := cur.Parent()
		if err != nil || parent == nil {
			return nil, false
		}
		matches, err := parent.Matches(selector)
		if err == nil && matches {
			return newRodElement(parent, selector), true
		}
		cur = parent
	}
}

func (d *rodDriver) Eval(ctx context.Context, js string) (string, error) {
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return "", err
	}
	if res == nil || res.Value.Nil() {
		return "", nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (d *rodDriver) PressKey(ctx context.Context, key string) error {
	k, err := keyFromName(key)
	if err != nil {
		return err
	}
	return d.page.Context(ctx).Keyboard.Press(k)
}

func (d *rodDriver) ContainsText(ctx context.Context, text string) (bool, error) {
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `(needle) => {
			const body = document.body ? document.body.innerText : '';
			return body.toLowerCase().includes(needle.toLowerCase());
		}`,
		JSArgs:       []interface{}{text},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (d *rodDriver) Screenshot(ctx context.Context, path string) error {
	data, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (d *rodDriver) Close() error {
	return d.page.Close()
}

// keyFromName maps the key names plans use to rod input keys.
func keyFromName(name string) (input.Key, error) {
	switch name {
	case "Enter", "enter":
		return input.Enter, nil
	case "Escape", "Esc", "escape":
		return input.Escape, nil
	case "Tab", "tab":
		return input.Tab, nil
	case "Space", "space":
		return input.Space, nil
	case "Backspace":
		return input.Backspace, nil
	case "ArrowDown":
		return input.ArrowDown, nil
	case "ArrowUp":
		return input.ArrowUp, nil
	default:
		return input.Enter, fmt.Errorf("unsupported key: %q", name)
	}
}
