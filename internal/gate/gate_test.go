package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacts/internal/browser"
	"pacts/internal/config"
	"pacts/internal/profile"
	"pacts/internal/types"
)

func fastProfile() profile.Profile {
	return profile.Profile{
		Kind: profile.Static,
		Budgets: profile.Budgets{
			NetworkIdle:   50 * time.Millisecond,
			StepBudget:    time.Second,
			ActionTimeout: 200 * time.Millisecond,
			DriftThreshold: 35,
		},
	}
}

func fastGate(d browser.Driver) *Gate {
	g := New(d, fastProfile())
	g.pollInterval = 10 * time.Millisecond
	g.bboxInterval = 10 * time.Millisecond
	return g
}

func elems(els ...*browser.FakeElement) []browser.Element {
	out := make([]browser.Element, len(els))
	for i, e := range els {
		out[i] = e
	}
	return out
}

func TestCheckOrderFirstDiagnosticWins(t *testing.T) {
	d := browser.NewFakeDriver("https://x.test", browser.El("body"))
	g := fastGate(d)
	ctx := context.Background()

	// unique: zero or many matches fail first.
	_, failure := g.Check(ctx, nil, types.ActionClick, CheckOpts{})
	assert.Equal(t, types.FailureNotUnique, failure)

	a, b := browser.El("button"), browser.El("button")
	_, failure = g.Check(ctx, elems(a, b), types.ActionClick, CheckOpts{})
	assert.Equal(t, types.FailureNotUnique, failure)

	// visible beats enabled: a hidden disabled element reports not_visible.
	hidden := browser.El("button")
	hidden.Hidden = true
	hidden.Disabled = true
	_, failure = g.Check(ctx, elems(hidden), types.ActionClick, CheckOpts{})
	assert.Equal(t, types.FailureNotVisible, failure)

	disabled := browser.El("button")
	disabled.Disabled = true
	_, failure = g.Check(ctx, elems(disabled), types.ActionClick, CheckOpts{})
	assert.Equal(t, types.FailureDisabled, failure)

	moving := browser.El("button")
	moving.Moving = true
	_, failure = g.Check(ctx, elems(moving), types.ActionClick, CheckOpts{})
	assert.Equal(t, types.FailureUnstable, failure)

	fine := browser.El("button")
	el, failure := g.Check(ctx, elems(fine), types.ActionClick, CheckOpts{})
	assert.Equal(t, types.FailureNone, failure)
	assert.NotNil(t, el)
}

func TestReadonlyFailsEditableActionsOnly(t *testing.T) {
	d := browser.NewFakeDriver("https://x.test", browser.El("body"))
	g := fastGate(d)
	ctx := context.Background()

	ro := browser.El("input", "type", "text", "readonly", "readonly")
	_, failure := g.Check(ctx, elems(ro), types.ActionFill, CheckOpts{})
	assert.Equal(t, types.FailureDisabled, failure)

	_, failure = g.Check(ctx, elems(ro), types.ActionClick, CheckOpts{})
	assert.Equal(t, types.FailureNone, failure)
}

func TestScopedCheck(t *testing.T) {
	d := browser.NewFakeDriver("https://x.test", browser.El("body"))
	g := fastGate(d)
	ctx := context.Background()
	el := browser.El("input", "type", "text")

	// Hinted but unresolved scope fails the scoped check.
	_, failure := g.Check(ctx, elems(el), types.ActionFill, CheckOpts{ScopeHinted: true})
	assert.Equal(t, types.FailureNotScoped, failure)

	scope := browser.El("div", "role", "dialog")
	_, failure = g.Check(ctx, elems(el), types.ActionFill, CheckOpts{ScopeHinted: true, Scope: scope})
	assert.Equal(t, types.FailureNone, failure)
}

func TestPageReadySoftFailsIdle(t *testing.T) {
	d := browser.NewFakeDriver("https://x.test", browser.El("body"))
	d.IdleErr = context.DeadlineExceeded
	g := fastGate(d)

	done := make(chan struct{})
	go func() {
		g.PageReady(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PageReady must not block on a soft idle failure")
	}
}

func TestPageReadyAppHook(t *testing.T) {
	d := browser.NewFakeDriver("https://x.test", browser.El("body"))
	d.EvalResults = map[string]string{"appReady": "true"}
	p := fastProfile()
	p.ReadyHook = "appReady"
	g := New(d, p)
	g.pollInterval = 10 * time.Millisecond

	start := time.Now()
	g.PageReady(context.Background())
	assert.Less(t, time.Since(start), time.Second)
}

func TestDynamicSettleDelayObserved(t *testing.T) {
	d := browser.NewFakeDriver("https://x.test", browser.El("body"))
	p := fastProfile()
	p.Kind = profile.Dynamic
	p.Budgets.SettleDelay = 80 * time.Millisecond
	g := New(d, p)

	start := time.Now()
	g.PageReady(context.Background())
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestSentinelDetectsAndCloses(t *testing.T) {
	closeBtn := browser.El("button", "class", "slds-modal__close")
	dialog := browser.El("div", "role", "dialog").Add(
		browser.El("p").WithText("Review the errors on this page. These required fields must be completed: Subject"),
		closeBtn,
	)
	d := browser.NewFakeDriver("https://x.test", browser.El("body").Add(dialog))

	s := NewSentinel(d, config.Default().Sentinel)
	res := s.Scan(context.Background())
	require.True(t, res.Fired)
	assert.Contains(t, res.Text, "required")
	assert.True(t, res.Closed)
	assert.Equal(t, 1, closeBtn.Clicks)
	assert.Equal(t, types.FailureTimeout, res.FailureKind())
}

func TestSentinelIgnoresBenignDialogs(t *testing.T) {
	dialog := browser.El("div", "role", "dialog").Add(
		browser.El("p").WithText("Welcome to the tour!"),
	)
	d := browser.NewFakeDriver("https://x.test", browser.El("body").Add(dialog))

	s := NewSentinel(d, config.Default().Sentinel)
	assert.False(t, s.Scan(context.Background()).Fired)
}

func TestSentinelDisabled(t *testing.T) {
	dialog := browser.El("div", "role", "dialog").Add(
		browser.El("p").WithText("This field is required"),
	)
	d := browser.NewFakeDriver("https://x.test", browser.El("body").Add(dialog))

	cfg := config.Default().Sentinel
	cfg.Enabled = false
	s := NewSentinel(d, cfg)
	assert.False(t, s.Scan(context.Background()).Fired)
}
