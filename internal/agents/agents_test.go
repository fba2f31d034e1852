package agents

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pacts/internal/browser"
	"pacts/internal/config"
	"pacts/internal/memory"
	"pacts/internal/types"
)

// fastConfig shrinks every budget so node tests finish in milliseconds.
func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Profiles.StaticIdleMs = 10
	cfg.Profiles.DynamicIdleMs = 10
	cfg.Profiles.SettleDelayMs = 1
	cfg.Profiles.StepBudgetMs = 500
	cfg.Profiles.ActionTimeoutMs = 60
	cfg.Healing.RevealBudgetMs = 10
	cfg.Cache.DBPath = ":memory:"
	cfg.Cache.ArtifactsDir = t.TempDir()
	return &cfg
}

func newTestRuntime(t *testing.T, cfg *config.Config, d *browser.FakeDriver) *Runtime {
	t.Helper()
	store, err := memory.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	cache := memory.NewCache(store, cfg.Cache)
	return NewRuntime(cfg, d, cache, store)
}

// loginPage is the canonical three-field fixture: username, password,
// submit.
func loginPage() *browser.FakeElement {
	return browser.El("body").Add(
		browser.El("form", "id", "login").Add(
			browser.El("input", "type", "text", "aria-label", "Username"),
			browser.El("input", "type", "password", "aria-label", "Password"),
			browser.El("button", "type", "submit", "aria-label", "Log in").WithText("Log in"),
		),
	)
}

func loginSteps() []types.SuiteStep {
	return []types.SuiteStep{
		{Target: "Username", Action: "fill", Value: "{{user}}", Outcome: types.OutcomeFieldPopulated},
		{Target: "Password", Action: "fill", Value: "{{password}}"},
		{Target: "Log in", Action: "click", Outcome: "navigates_to:dashboard"},
	}
}

func seedState(url string, steps []types.SuiteStep, row map[string]string) *types.RunState {
	s := types.NewRunState("test-req", url)
	s.Context[CtxSuiteSteps] = steps
	if row != nil {
		s.Context[CtxDataRow] = row
	}
	return s
}
