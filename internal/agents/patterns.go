package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pacts/internal/browser"
	"pacts/internal/logging"
	"pacts/internal/types"
)

// Pattern names recorded on step results.
const (
	PatternDirect             = "direct"
	PatternActivatorFill      = "activator_first_fill"
	PatternBypassSubmitHint   = "autocomplete_bypass:submit_hint"
	PatternBypassFormSubmit   = "autocomplete_bypass:form_submit"
	PatternBypassNativeSubmit = "autocomplete_bypass:native_submit"
	PatternBypassPageKey      = "autocomplete_bypass:page_key"
	PatternWait               = "wait"
)

// siteSubmitHints are checked first by the autocomplete bypass; the list
// mirrors the submit controls big search properties actually use.
var siteSubmitHints = []string{
	"#searchButton",
	`button[type="submit"]`,
	`input[type="submit"]`,
}

// activatorWait bounds how long a clicked activator gets to reveal its
// input panel.
const activatorWait = 500 * time.Millisecond

// errRaceWon is the sentinel a winning waiter returns to cancel its
// siblings.
var errRaceWon = errors.New("race won")

// performAction dispatches on element kind + action and returns the
// pattern name used.
func (r *Runtime) performAction(ctx context.Context, intent types.Intent, el browser.Element) (string, error) {
	switch intent.Action {
	case types.ActionClick:
		return PatternDirect, el.Click()
	case types.ActionFill, types.ActionType:
		if isActivator(el) {
			return PatternActivatorFill, r.activatorFirstFill(ctx, el, intent.Value)
		}
		return PatternDirect, el.Input(intent.Value)
	case types.ActionPress:
		if r.autocompleteActive(ctx) {
			return r.autocompleteBypass(ctx, el, intent.Value)
		}
		return PatternDirect, el.Press(intent.Value)
	case types.ActionSelect:
		return PatternDirect, el.SelectOption(intent.Value)
	case types.ActionCheck:
		return PatternDirect, el.SetChecked(true)
	case types.ActionUncheck:
		return PatternDirect, el.SetChecked(false)
	case types.ActionHover:
		return PatternDirect, el.Hover()
	case types.ActionFocus:
		return PatternDirect, el.Focus()
	}
	return "", fmt.Errorf("no pattern for action %q", intent.Action)
}

// isActivator recognizes controls that open a panel holding the real
// input: buttons and closed comboboxes answering to an input-like name.
func isActivator(el browser.Element) bool {
	if el.Tag() == "button" {
		return true
	}
	role := el.Attr("role")
	if role == "combobox" && el.Tag() != "select" && el.Tag() != "input" {
		return true
	}
	return el.Attr("aria-haspopup") == "listbox" || el.Attr("aria-haspopup") == "dialog"
}

// activatorFirstFill clicks the activator, waits briefly for a descendant
// input to appear, and fills the first visible editable that shows up.
func (r *Runtime) activatorFirstFill(ctx context.Context, activator browser.Element, value string) error {
	if err := activator.Click(); err != nil {
		return err
	}
	textboxSel, _ := browser.RoleSelector("textbox")
	deadline := time.Now().Add(activatorWait)
	for {
		els, err := r.Driver.Query(ctx, textboxSel)
		if err == nil {
			for _, el := range els {
				vis, _ := el.Visible()
				enabled, _ := el.Enabled()
				if vis && enabled {
					return el.Input(value)
				}
			}
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return fmt.Errorf("no input appeared within %s of activating", activatorWait)
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// autocompleteActive detects an open suggestion surface that would
// swallow an Enter press.
func (r *Runtime) autocompleteActive(ctx context.Context) bool {
	sel := `[role="listbox"], [role="option"], .autocomplete-suggestions, ul.suggestions`
	els, err := r.Driver.Query(ctx, sel)
	if err != nil {
		return false
	}
	for _, el := range els {
		if vis, err := el.Visible(); err == nil && vis {
			return true
		}
	}
	return false
}

// autocompleteBypass is the four-rung ladder for pressing a key while a
// suggestion menu is open: submit hints, ancestor-form submit, native
// submit, page-level key dispatch.
func (r *Runtime) autocompleteBypass(ctx context.Context, el browser.Element, key string) (string, error) {
	log := logging.Get(logging.CategoryExec)

	for _, hint := range siteSubmitHints {
		btns, err := r.Driver.Query(ctx, hint)
		if err != nil || len(btns) == 0 {
			continue
		}
		if vis, err := btns[0].Visible(); err == nil && vis {
			if err := btns[0].Click(); err == nil {
				log.Debug("autocomplete bypass via submit hint %s", hint)
				return PatternBypassSubmitHint, nil
			}
		}
	}

	if form, ok := r.Driver.Ancestor(ctx, el, "form"); ok {
		btns, err := r.Driver.QueryIn(ctx, form, `button[type="submit"], input[type="submit"]`)
		if err == nil && len(btns) > 0 {
			if err := btns[0].Click(); err == nil {
				log.Debug("autocomplete bypass via ancestor form submit")
				return PatternBypassFormSubmit, nil
			}
		}
		res, err := r.Driver.Eval(ctx, `() => {
			const f = document.querySelector('form');
			if (!f) return false;
			if (f.requestSubmit) f.requestSubmit(); else f.submit();
			return true;
		}`)
		if err == nil && strings.TrimSpace(res) == "true" {
			log.Debug("autocomplete bypass via native form submit")
			return PatternBypassNativeSubmit, nil
		}
	}

	log.Debug("autocomplete bypass via page-level key %s", key)
	return PatternBypassPageKey, r.Driver.PressKey(ctx, key)
}

// awaitNavigation races a URL/navigation waiter against a DOM
// success-token waiter under one deadline. The winner cancels the loser;
// a cancelled waiter never mutates state.
func (r *Runtime) awaitNavigation(ctx context.Context, token string) bool {
	budget := r.Profile.Budgets.StepBudget
	if budget <= 0 {
		budget = 10 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	needle := strings.ToLower(token)
	g, gctx := errgroup.WithContext(rctx)

	g.Go(func() error {
		for {
			if strings.Contains(strings.ToLower(r.Driver.CurrentURL()), needle) {
				return errRaceWon
			}
			select {
			case <-time.After(100 * time.Millisecond):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		for {
			if st := r.Profile.SuccessToken; st != "" {
				if els, err := r.Driver.Query(gctx, st); err == nil && len(els) > 0 {
					if vis, err := els[0].Visible(); err == nil && vis {
						return errRaceWon
					}
				}
			}
			if ok, err := r.Driver.ContainsText(gctx, token); err == nil && ok {
				return errRaceWon
			}
			select {
			case <-time.After(100 * time.Millisecond):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	return errors.Is(g.Wait(), errRaceWon)
}

// awaitPageText polls for an on-page text token within the step budget.
func (r *Runtime) awaitPageText(ctx context.Context, token string) bool {
	budget := r.Profile.Budgets.StepBudget
	if budget <= 0 {
		budget = 10 * time.Second
	}
	deadline := time.Now().Add(budget)
	for {
		if ok, err := r.Driver.ContainsText(ctx, token); err == nil && ok {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return false
		}
	}
}
