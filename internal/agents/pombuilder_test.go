package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacts/internal/browser"
	"pacts/internal/memory"
	"pacts/internal/types"
)

// pageSignature is what the fake driver answers for the structural
// fingerprint script.
const pageSignature = `"body>form#login>input>input>button"`

func builderState(t *testing.T, rt *Runtime, steps []types.SuiteStep) *types.RunState {
	t.Helper()
	s := seedState("https://app.test/login", steps, map[string]string{
		"user": "alice", "password": "hunter2",
	})
	s = rt.Planner(context.Background(), s)
	require.False(t, s.Terminal())
	return s
}

func TestPOMBuilderDiscoversEveryIntent(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test/login", loginPage())
	d.EvalResults = map[string]string{"querySelectorAll": pageSignature}
	rt := newTestRuntime(t, fastConfig(t), d)
	s := builderState(t, rt, loginSteps())

	s = rt.POMBuilder(context.Background(), s)
	require.False(t, s.Terminal())
	require.Len(t, s.Discovered, len(s.Plan))

	assert.Equal(t, types.StrategyAriaLabel, s.Discovered[0].Strategy)
	assert.Equal(t, `[aria-label="Username"]`, s.Discovered[0].Selector)
	assert.Equal(t, types.StrategyAriaLabel, s.Discovered[2].Strategy)
	// The synthetic wait step needs no element.
	assert.True(t, s.Discovered[3].Zero())

	assert.Equal(t, []string{"https://app.test/login"}, d.Navigated)

	// Stable discoveries were admitted to the cache.
	key := types.NewCacheKey(s.URL, "Username", types.ActionFill)
	entry, hit, err := rt.Cache.Lookup(context.Background(), key)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, `[aria-label="Username"]`, entry.Selector)
	assert.NotEmpty(t, entry.DomHashSnapshot)
}

func TestPOMBuilderNavigatesOnce(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test/login", loginPage())
	rt := newTestRuntime(t, fastConfig(t), d)
	s := builderState(t, rt, loginSteps())

	s = rt.POMBuilder(context.Background(), s)
	s = rt.POMBuilder(context.Background(), s)
	assert.Len(t, d.Navigated, 1)
}

func TestPOMBuilderNavigationFailureIsEnvFault(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test/login", loginPage())
	d.NavErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	rt := newTestRuntime(t, fastConfig(t), d)
	s := builderState(t, rt, loginSteps())

	s = rt.POMBuilder(context.Background(), s)
	assert.Equal(t, types.VerdictError, s.Verdict)
	assert.Equal(t, types.RCAEnvFault, s.RCA.Class)
	assert.True(t, s.DriverFault)
}

func TestPOMBuilderMissRecordsEmptySlot(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test/login", loginPage())
	rt := newTestRuntime(t, fastConfig(t), d)
	s := builderState(t, rt, []types.SuiteStep{
		{Target: "Username", Action: "fill", Value: "alice"},
		{Target: "first result", Action: "click"},
	})

	s = rt.POMBuilder(context.Background(), s)
	require.False(t, s.Terminal())
	require.Len(t, s.Discovered, 2)
	assert.False(t, s.Discovered[0].Zero())
	// The results list does not exist before the search runs; the slot
	// stays empty and the executor re-discovers at step time.
	assert.True(t, s.Discovered[1].Zero())
	assert.Equal(t, types.FailureNone, s.Failure)
}

func TestPOMBuilderReusesRecordForRepeatedElement(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test/login", loginPage())
	rt := newTestRuntime(t, fastConfig(t), d)
	s := builderState(t, rt, []types.SuiteStep{
		{Target: "Username", Action: "fill", Value: "alice"},
		{Target: "Username", Action: "press", Value: "Tab"},
	})

	s = rt.POMBuilder(context.Background(), s)
	require.Len(t, s.Discovered, 2)
	assert.Equal(t, s.Discovered[0].Selector, s.Discovered[1].Selector)
}

func TestPOMBuilderCacheHitSkipsDiscovery(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test/login", loginPage())
	d.EvalResults = map[string]string{"querySelectorAll": pageSignature}
	cfg := fastConfig(t)
	rt := newTestRuntime(t, cfg, d)
	ctx := context.Background()

	// First build populates the cache.
	s := builderState(t, rt, loginSteps())
	s = rt.POMBuilder(ctx, s)
	require.False(t, s.Terminal())

	// Second run on a fresh runtime sharing the store hits the cache.
	rt2 := NewRuntime(cfg, d, rt.Cache, rt.Store)
	s2 := builderState(t, rt2, loginSteps())
	s2 = rt2.POMBuilder(ctx, s2)
	require.False(t, s2.Terminal())
	assert.True(t, s2.Discovered[0].Meta.FromCache)
	assert.Equal(t, `[aria-label="Username"]`, s2.Discovered[0].Selector)
	assert.Zero(t, s2.DriftEvents)
}

func TestPOMBuilderDriftEvictsCachedSelector(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test/login", loginPage())
	d.EvalResults = map[string]string{"querySelectorAll": pageSignature}
	cfg := fastConfig(t)
	rt := newTestRuntime(t, cfg, d)
	ctx := context.Background()

	// Admit a selector recorded against a completely different page
	// structure; the element name still resolves on the live page.
	staleHash := memory.FingerprintHex("nav#old>ul.menu>li>li>li>div#ancient>span.gone")
	key := types.NewCacheKey("https://app.test/login", "Username", types.ActionFill)
	require.NoError(t, rt.Cache.Admit(ctx, key, types.SelectorRecord{
		Selector: `#stale-username`,
		Score:    0.98,
		Strategy: types.StrategyAriaLabel,
		Stable:   true,
	}, staleHash))

	s := builderState(t, rt, loginSteps())
	s = rt.POMBuilder(ctx, s)
	require.False(t, s.Terminal())

	assert.Equal(t, 1, s.DriftEvents)
	// Rediscovery found the live element and replaced the entry.
	assert.Equal(t, `[aria-label="Username"]`, s.Discovered[0].Selector)
	entry, hit, err := rt.Cache.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, `[aria-label="Username"]`, entry.Selector)
}

func TestPOMBuilderEvictsCachedSelectorFailingGate(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test/login", loginPage())
	d.EvalResults = map[string]string{"querySelectorAll": pageSignature}
	cfg := fastConfig(t)
	rt := newTestRuntime(t, cfg, d)
	ctx := context.Background()

	// Cached selector matches nothing on the live page; the snapshot
	// matches so drift does not fire, but the gate does.
	liveHash := memory.FingerprintHex("body>form#login>input>input>button")
	key := types.NewCacheKey("https://app.test/login", "Username", types.ActionFill)
	require.NoError(t, rt.Cache.Admit(ctx, key, types.SelectorRecord{
		Selector: `#renamed-field`,
		Score:    0.98,
		Strategy: types.StrategyIDClass,
		Stable:   true,
	}, liveHash))

	s := builderState(t, rt, loginSteps())
	s = rt.POMBuilder(ctx, s)

	assert.Zero(t, s.DriftEvents)
	assert.Equal(t, `[aria-label="Username"]`, s.Discovered[0].Selector)
}
