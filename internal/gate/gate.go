// Package gate holds the preconditions every action must clear: the
// three-stage readiness wait and the five-point actionability check.
// Failures set a FailureKind; the gate never returns an error for a
// failed check, only for broken plumbing.
package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pacts/internal/browser"
	"pacts/internal/logging"
	"pacts/internal/profile"
	"pacts/internal/types"
)

// Gate evaluates readiness and actionability under one profile's budgets.
type Gate struct {
	driver browser.Driver
	prof   profile.Profile

	// pollInterval and bboxInterval are fields so tests run fast.
	pollInterval time.Duration
	bboxInterval time.Duration
}

// New builds a gate for one run.
func New(d browser.Driver, p profile.Profile) *Gate {
	return &Gate{
		driver:       d,
		prof:         p,
		pollInterval: 100 * time.Millisecond,
		bboxInterval: 100 * time.Millisecond,
	}
}

// PageReady runs readiness stages 1 and 3: network idle (soft fail) and
// the optional app-ready hook, plus the dynamic settle delay.
func (g *Gate) PageReady(ctx context.Context) {
	log := logging.Get(logging.CategoryReadiness)

	if err := g.driver.WaitIdle(ctx, g.prof.Budgets.NetworkIdle); err != nil {
		// Stage 1 is soft: a busy page is not a failed page.
		log.Warn("network idle not reached within %s: %v", g.prof.Budgets.NetworkIdle, err)
	}

	if hook := g.prof.ReadyHook; hook != "" {
		g.waitAppReady(ctx, hook)
	}

	if g.prof.Budgets.SettleDelay > 0 {
		log.Debug("settle delay %s", g.prof.Budgets.SettleDelay)
		select {
		case <-time.After(g.prof.Budgets.SettleDelay):
		case <-ctx.Done():
		}
	}
}

// waitAppReady polls a page-installed predicate until it reports ready or
// the action budget elapses. A missing hook counts as ready.
func (g *Gate) waitAppReady(ctx context.Context, hook string) {
	log := logging.Get(logging.CategoryReadiness)
	js := fmt.Sprintf(`() => typeof window[%q] === 'function' ? !!window[%q]() : true`, hook, hook)
	deadline := time.Now().Add(g.prof.Budgets.ActionTimeout)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		res, err := g.driver.Eval(ctx, js)
		if err != nil {
			log.Debug("app-ready hook %q eval failed: %v", hook, err)
			return
		}
		if strings.TrimSpace(res) == "true" {
			return
		}
		select {
		case <-time.After(g.pollInterval):
		case <-ctx.Done():
			return
		}
	}
	log.Warn("app-ready hook %q never reported ready", hook)
}

// CheckOpts tune one actionability evaluation.
type CheckOpts struct {
	// Scope is the resolved container when the intent carries a scope
	// hint; ScopeHinted marks that a hint existed even if unresolved.
	Scope       browser.Element
	ScopeHinted bool
	// TimeoutScale doubles budgets during heal stabilization.
	TimeoutScale int
}

func (o CheckOpts) scale() time.Duration {
	if o.TimeoutScale > 1 {
		return time.Duration(o.TimeoutScale)
	}
	return 1
}

// Check runs the five-point actionability gate on the elements a locator
// resolved to, in fixed order: unique, visible, enabled, bbox-stable,
// scoped. The first failing check names the failure.
func (g *Gate) Check(ctx context.Context, els []browser.Element, action types.Action, opts CheckOpts) (browser.Element, types.FailureKind) {
	log := logging.Get(logging.CategoryGate)

	if len(els) != 1 {
		log.Debug("unique check failed: %d matches", len(els))
		return nil, types.FailureNotUnique
	}
	el := els[0]

	if !g.waitVisible(ctx, el, opts.scale()) {
		log.Debug("visible check failed for %s", el.Selector())
		return nil, types.FailureNotVisible
	}

	if !g.checkEnabled(el, action) {
		log.Debug("enabled check failed for %s", el.Selector())
		return nil, types.FailureDisabled
	}

	if !g.bboxStable(ctx, el) {
		log.Debug("bbox-stable check failed for %s", el.Selector())
		return nil, types.FailureUnstable
	}

	if opts.ScopeHinted && opts.Scope == nil {
		log.Debug("scoped check failed: scope hint did not resolve")
		return nil, types.FailureNotScoped
	}

	return el, types.FailureNone
}

// waitVisible is readiness stage 2 plus the visible actionability check:
// poll visibility within the (possibly scaled) action budget, scrolling
// into view once on the way.
func (g *Gate) waitVisible(ctx context.Context, el browser.Element, scale time.Duration) bool {
	deadline := time.Now().Add(g.prof.Budgets.ActionTimeout * scale)
	scrolled := false
	for {
		vis, err := el.Visible()
		if err == nil && vis {
			return true
		}
		if !scrolled {
			_ = el.ScrollIntoView()
			scrolled = true
			continue
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-time.After(g.pollInterval):
		case <-ctx.Done():
			return false
		}
	}
}

// checkEnabled also treats readonly as disabled for editable actions.
func (g *Gate) checkEnabled(el browser.Element, action types.Action) bool {
	enabled, err := el.Enabled()
	if err != nil || !enabled {
		return false
	}
	if action.Editable() {
		if el.Attr("readonly") != "" || el.Attr("aria-readonly") == "true" {
			return false
		}
	}
	return true
}

// bboxStable samples the bounding box twice across a short interval.
func (g *Gate) bboxStable(ctx context.Context, el browser.Element) bool {
	a, err := el.Box()
	if err != nil || a.Empty() {
		return false
	}
	select {
	case <-time.After(g.bboxInterval):
	case <-ctx.Done():
		return false
	}
	b, err := el.Box()
	if err != nil {
		return false
	}
	return a == b
}
