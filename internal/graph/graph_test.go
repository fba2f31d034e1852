package graph

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pacts/internal/agents"
	"pacts/internal/browser"
	"pacts/internal/config"
	"pacts/internal/memory"
	"pacts/internal/types"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Profiles.StaticIdleMs = 10
	cfg.Profiles.DynamicIdleMs = 10
	cfg.Profiles.SettleDelayMs = 1
	cfg.Profiles.StepBudgetMs = 2000
	cfg.Profiles.ActionTimeoutMs = 60
	cfg.Healing.RevealBudgetMs = 10
	cfg.Cache.ArtifactsDir = t.TempDir()
	return &cfg
}

func newRun(t *testing.T, cfg *config.Config, d *browser.FakeDriver) (*agents.Runtime, *Graph) {
	t.Helper()
	store, err := memory.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	cache := memory.NewCache(store, cfg.Cache)
	rt := agents.NewRuntime(cfg, d, cache, store)
	return rt, New(rt)
}

func loginFixture() (*browser.FakeDriver, *browser.FakeElement) {
	submit := browser.El("button", "type", "submit", "aria-label", "Log in").WithText("Log in")
	root := browser.El("body").Add(
		browser.El("form", "id", "login").Add(
			browser.El("input", "type", "text", "aria-label", "Username"),
			browser.El("input", "type", "password", "aria-label", "Password"),
			submit,
		),
	)
	return browser.NewFakeDriver("https://app.test/login", root), submit
}

func loginState() *types.RunState {
	s := types.NewRunState("run-login", "https://app.test/login")
	s.Context[agents.CtxSuiteSteps] = []types.SuiteStep{
		{Target: "Username", Action: "fill", Value: "{{user}}", Outcome: types.OutcomeFieldPopulated},
		{Target: "Password", Action: "fill", Value: "{{password}}"},
		{Target: "Log in", Action: "click", Outcome: "navigates_to:dashboard"},
	}
	s.Context[agents.CtxDataRow] = map[string]string{"user": "alice", "password": "hunter2"}
	s.Context[agents.CtxSecretTokens] = map[string]bool{"password": true}
	return s
}

func TestRunLoginPassEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := fastConfig(t)
	d, submit := loginFixture()
	submit.OnClick = func() {
		d.URLValue = "https://app.test/dashboard"
		d.PageText = "dashboard Welcome"
	}
	rt, g := newRun(t, cfg, d)

	s := g.Run(context.Background(), loginState())

	assert.Equal(t, types.VerdictPass, s.Verdict)
	assert.Len(t, s.ExecutedSteps, 4)
	assert.Zero(t, s.HealRound)
	assert.Empty(t, s.HealEvents)
	assert.NoError(t, s.CheckInvariants(cfg.Healing.MaxRounds))

	// A passing run emits a replay artifact.
	require.Len(t, rt.Artifacts(), 1)
	assert.Equal(t, "test_source", rt.Artifacts()[0].Kind)
	assert.FileExists(t, rt.Artifacts()[0].Path)
}

func TestRunHealsRenamedAttribute(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := fastConfig(t)

	save := browser.El("button", "aria-label", "Save changes", "data-test", "save-changes").WithText("Save changes")
	proceed := browser.El("button", "aria-label", "Proceed").WithText("Proceed")
	d := browser.NewFakeDriver("https://crm.test", browser.El("body").Add(proceed, save))
	// A deploy between discovery and execution drops the aria-label.
	proceed.OnClick = func() { delete(save.Attrs, "aria-label") }
	_, g := newRun(t, cfg, d)

	s := types.NewRunState("run-heal", "https://crm.test")
	s.Context[agents.CtxSuiteSteps] = []types.SuiteStep{
		{Target: "Proceed", Action: "click"},
		{Target: "Save changes", Action: "click"},
	}
	s = g.Run(context.Background(), s)

	assert.Equal(t, types.VerdictHealed, s.Verdict)
	assert.True(t, s.Healed())
	assert.Len(t, s.ExecutedSteps, 2)
	assert.Equal(t, 1, save.Clicks)
	assert.NoError(t, s.CheckInvariants(cfg.Healing.MaxRounds))
}

func TestRunExhaustsHealBudgetAndFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := fastConfig(t)

	d := browser.NewFakeDriver("https://app.test", browser.El("body").Add(
		browser.El("input", "aria-label", "Username"),
	))
	_, g := newRun(t, cfg, d)

	s := types.NewRunState("run-fail", "https://app.test")
	s.Context[agents.CtxSuiteSteps] = []types.SuiteStep{
		{Target: "Username", Action: "fill", Value: "alice"},
		{Target: "Launch missiles", Action: "click"},
	}
	s = g.Run(context.Background(), s)

	assert.Equal(t, types.VerdictFail, s.Verdict)
	assert.Equal(t, types.RCADiscoveryExhausted, s.RCA.Class)
	assert.Equal(t, cfg.Healing.MaxRounds, s.HealRound)
	assert.Len(t, s.ExecutedSteps, 1)
	assert.Len(t, s.HealEvents, cfg.Healing.MaxRounds)
	for _, ev := range s.HealEvents {
		assert.False(t, ev.Success)
	}
	assert.NoError(t, s.CheckInvariants(cfg.Healing.MaxRounds))
}

func TestRunModalScopedFlow(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := fastConfig(t)

	// Two Subject fields exist: one in the page background, one inside
	// the dialog the New Case button opens. The scope hint must pin the
	// dialog's field.
	background := browser.El("input", "type", "text", "aria-label", "Subject", "id", "bg-subject")
	dialogField := browser.El("input", "type", "text", "aria-label", "Subject", "id", "dlg-subject")
	saveBtn := browser.El("button", "aria-label", "Save").WithText("Save")
	root := browser.El("body").Add(
		background,
		browser.El("button", "aria-label", "New Case").WithText("New Case"),
	)
	d := browser.NewFakeDriver("https://crm.test/cases", root)
	opener := root.Children[1]
	opener.OnClick = func() {
		root.Add(browser.El("div", "role", "dialog").Add(
			browser.El("h2").WithText("New Case"),
			dialogField,
			saveBtn,
		))
	}
	_, g := newRun(t, cfg, d)

	s := types.NewRunState("run-modal", "https://crm.test/cases")
	s.Context[agents.CtxSuiteSteps] = []types.SuiteStep{
		{Target: "New Case", Action: "click"},
		{Target: "Subject", Action: "fill", Value: "Printer on fire", Outcome: types.OutcomeFieldPopulated},
		{Target: "Save", Action: "click"},
	}
	s = g.Run(context.Background(), s)

	require.Equal(t, types.VerdictPass, s.Verdict)
	assert.Equal(t, "Printer on fire", dialogField.InputVal)
	assert.Empty(t, background.InputVal)
	assert.Equal(t, 1, saveBtn.Clicks)
}

func TestRunPlannerErrorShortCircuits(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := fastConfig(t)
	d := browser.NewFakeDriver("https://app.test", browser.El("body"))
	_, g := newRun(t, cfg, d)

	s := g.Run(context.Background(), types.NewRunState("run-empty", "https://app.test"))

	assert.Equal(t, types.VerdictError, s.Verdict)
	assert.Empty(t, d.Navigated)
}

func TestRunPersistedAfterCompletion(t *testing.T) {
	cfg := fastConfig(t)
	d, submit := loginFixture()
	submit.OnClick = func() {
		d.URLValue = "https://app.test/dashboard"
		d.PageText = "dashboard Welcome"
	}
	rt, g := newRun(t, cfg, d)

	s := g.Run(context.Background(), loginState())
	require.Equal(t, types.VerdictPass, s.Verdict)

	rec, err := memory.PersistRun(rt.Store, s, rt.Artifacts())
	require.NoError(t, err)
	loaded, ok, err := rt.Store.LoadRun(rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.VerdictPass, loaded.Verdict)
	assert.Equal(t, s.PlanHash, loaded.PlanHash)
}
