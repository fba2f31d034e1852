package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacts/internal/browser"
	"pacts/internal/types"
)

// failedAtStep builds a runtime + state stopped at step 0 with the given
// failure, as the executor would leave it.
func failedAtStep(t *testing.T, d *browser.FakeDriver, rec types.SelectorRecord, failure types.FailureKind) (*Runtime, *types.RunState) {
	t.Helper()
	rt := newTestRuntime(t, fastConfig(t), d)
	s := seedState(d.CurrentURL(), []types.SuiteStep{
		{Target: "Save changes", Action: "click"},
	}, nil)
	s = rt.Planner(context.Background(), s)
	require.False(t, s.Terminal())
	s = rt.POMBuilder(context.Background(), s)
	require.False(t, s.Terminal())
	s.Discovered = []types.SelectorRecord{rec}
	s.Failure = failure
	return rt, s
}

func staleRecord() types.SelectorRecord {
	return types.SelectorRecord{
		Selector: "#save-old",
		Score:    0.70,
		Strategy: types.StrategyIDClass,
		Stable:   false,
	}
}

func TestHealerReprobesToWorkingSelector(t *testing.T) {
	save := browser.El("button", "aria-label", "Save changes").WithText("Save changes")
	d := browser.NewFakeDriver("https://crm.test", browser.El("body").Add(save))
	rt, s := failedAtStep(t, d, staleRecord(), types.FailureNotUnique)

	s = rt.OracleHealer(context.Background(), s)

	assert.Equal(t, types.FailureNone, s.Failure)
	assert.Equal(t, 1, s.HealRound)
	require.Len(t, s.HealEvents, 1)
	ev := s.HealEvents[0]
	assert.True(t, ev.Success)
	assert.Equal(t, "#save-old", ev.SelectorBefore)
	assert.Equal(t, `[aria-label="Save changes"]`, ev.SelectorAfter)
	assert.Equal(t, types.StrategyAriaLabel, ev.Strategy)
	assert.Equal(t, `[aria-label="Save changes"]`, s.Discovered[0].Selector)

	// The win is charged to the ledger.
	key := types.NewCacheKey(s.URL, "Save changes", types.ActionClick)
	stats, err := rt.Store.HealStats(key.URLPattern, key.ElementName)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, types.StrategyAriaLabel, stats[0].Strategy)
	assert.Equal(t, int64(1), stats[0].SuccessCount)
}

func TestHealerFailureConsumesRound(t *testing.T) {
	// Nothing on the page can satisfy the intent.
	d := browser.NewFakeDriver("https://crm.test", browser.El("body"))
	rt, s := failedAtStep(t, d, staleRecord(), types.FailureNotUnique)

	s = rt.OracleHealer(context.Background(), s)

	assert.Equal(t, types.FailureNotUnique, s.Failure)
	assert.Equal(t, 1, s.HealRound)
	require.Len(t, s.HealEvents, 1)
	assert.False(t, s.HealEvents[0].Success)

	// Two more rounds exhaust the default budget of three.
	s = rt.OracleHealer(context.Background(), s)
	s = rt.OracleHealer(context.Background(), s)
	assert.Equal(t, 3, s.HealRound)

	// A fourth invocation must not spend another round.
	s = rt.OracleHealer(context.Background(), s)
	assert.Equal(t, 3, s.HealRound)
	assert.Len(t, s.HealEvents, 3)
	assert.NoError(t, s.CheckInvariants(rt.Cfg.Healing.MaxRounds))
}

func TestHealerZeroBudgetNeverHeals(t *testing.T) {
	save := browser.El("button", "aria-label", "Save changes")
	d := browser.NewFakeDriver("https://crm.test", browser.El("body").Add(save))
	cfg := fastConfig(t)
	cfg.Healing.MaxRounds = 0
	rt := newTestRuntime(t, cfg, d)
	s := seedState("https://crm.test", []types.SuiteStep{
		{Target: "Save changes", Action: "click"},
	}, nil)
	s = rt.Planner(context.Background(), s)
	s = rt.POMBuilder(context.Background(), s)
	s.Discovered = []types.SelectorRecord{staleRecord()}
	s.Failure = types.FailureNotUnique

	s = rt.OracleHealer(context.Background(), s)
	assert.Equal(t, types.FailureNotUnique, s.Failure)
	assert.Zero(t, s.HealRound)
	assert.Empty(t, s.HealEvents)
}

func TestHealerPrefersLedgerWinners(t *testing.T) {
	// The element answers to both aria-label and data-test; history says
	// aria-label keeps failing here and data-test keeps working.
	save := browser.El("button",
		"aria-label", "Save changes",
		"data-test", "save-changes",
	).WithText("Save changes")
	d := browser.NewFakeDriver("https://crm.test", browser.El("body").Add(save))
	rt, s := failedAtStep(t, d, staleRecord(), types.FailureNotUnique)

	key := types.NewCacheKey(s.URL, "Save changes", types.ActionClick)
	for i := 0; i < 3; i++ {
		require.NoError(t, rt.Store.RecordHealOutcome(key.URLPattern, key.ElementName, types.StrategyAriaLabel, false))
		require.NoError(t, rt.Store.RecordHealOutcome(key.URLPattern, key.ElementName, types.StrategyDataTest, true))
	}

	s = rt.OracleHealer(context.Background(), s)

	assert.Equal(t, types.FailureNone, s.Failure)
	require.Len(t, s.HealEvents, 1)
	assert.Equal(t, types.StrategyDataTest, s.HealEvents[0].Strategy)
	assert.Equal(t, `[data-test="save-changes"]`, s.Discovered[0].Selector)
}

func TestHealerRevealDismissesBlockingDialog(t *testing.T) {
	save := browser.El("button", "aria-label", "Save changes")
	closeBtn := browser.El("button", "aria-label", "Close")
	dialog := browser.El("div", "role", "dialog").Add(
		browser.El("p").WithText("This field is required"),
		closeBtn,
	)
	d := browser.NewFakeDriver("https://crm.test", browser.El("body").Add(save, dialog))
	rt, s := failedAtStep(t, d, staleRecord(), types.FailureTimeout)

	s = rt.OracleHealer(context.Background(), s)

	assert.Equal(t, types.FailureNone, s.Failure)
	assert.Equal(t, 1, closeBtn.Clicks)
}
