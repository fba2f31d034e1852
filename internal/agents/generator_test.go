package agents

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacts/internal/browser"
	"pacts/internal/types"
)

func passedRun() *types.RunState {
	s := types.NewRunState("req-gen", "https://app.test/login")
	s.PlanHash = strings.Repeat("ab", 32)
	s.Verdict = types.VerdictPass
	s.ExecutedSteps = []types.StepResult{
		{
			Intent: types.Intent{
				ElementName: "Username", Action: types.ActionFill,
				Value: "alice", Ordinal: -1,
				Outcome: types.OutcomeFieldPopulated,
			},
			Selector: `[aria-label="Username"]`,
			Strategy: types.StrategyAriaLabel,
			Outcome:  "ok",
		},
		{
			Intent: types.Intent{
				ElementName: "Password", Action: types.ActionFill,
				Value: "hunter2", Ordinal: -1, Secret: true,
			},
			Selector: `input[type="password"]`,
			Strategy: types.StrategyIDClass,
			Outcome:  "ok",
		},
		{
			Intent: types.Intent{
				ElementName: "first video", Action: types.ActionClick,
				Ordinal: 0, ElementTypeHint: "video",
			},
			Selector: `a[href], [role="link"]`,
			Strategy: types.StrategyOrdinal,
			Ordinal:  0,
			Outcome:  "ok",
		},
		{
			Intent: types.Intent{
				ElementName: "Log in", Action: types.ActionWait, Ordinal: -1,
				Outcome: types.OutcomePageContainsText + "Dashboard",
			},
			Outcome: "ok",
		},
	}
	return s
}

func TestGeneratorWritesReplayScript(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test/login", browser.El("body"))
	rt := newTestRuntime(t, fastConfig(t), d)

	s := rt.Generator(context.Background(), passedRun())

	path := s.CtxString(CtxArtifactPath)
	require.NotEmpty(t, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	src := string(data)

	assert.Contains(t, src, "package main")
	assert.Contains(t, src, `MustPage("https://app.test/login")`)
	assert.Contains(t, src, `page.MustElement("[aria-label=\"Username\"]").MustSelectAllText().MustInput("alice")`)
	// Positional steps replay by index over the role enumeration.
	assert.Contains(t, src, `page.MustElements("a[href], [role=\"link\"]")[0].MustClick()`)
	// The wait step replays as a text assertion.
	assert.Contains(t, src, `page.MustElementR("body", "Dashboard")`)

	// Secrets never appear as literals.
	assert.NotContains(t, src, "hunter2")
	assert.Contains(t, src, `os.Getenv("PACTS_SECRET_PASSWORD")`)

	require.Len(t, rt.Artifacts(), 1)
	art := rt.Artifacts()[0]
	assert.Equal(t, "test_source", art.Kind)
	assert.Equal(t, path, art.Path)
	assert.NotEmpty(t, art.Hash)
}

func TestGeneratorSkipsFailedRuns(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test", browser.El("body"))
	rt := newTestRuntime(t, fastConfig(t), d)

	s := passedRun()
	s.Verdict = types.VerdictFail
	s = rt.Generator(context.Background(), s)

	assert.Empty(t, s.CtxString(CtxArtifactPath))
	assert.Empty(t, rt.Artifacts())
}

func TestGeneratorHealedRunUsesHealedSelector(t *testing.T) {
	d := browser.NewFakeDriver("https://app.test", browser.El("body"))
	rt := newTestRuntime(t, fastConfig(t), d)

	s := passedRun()
	s.Verdict = types.VerdictHealed
	// The executed step already carries the selector that worked after
	// healing; the stale one exists nowhere in the log.
	s.ExecutedSteps[0].Selector = `[data-test="username"]`
	s = rt.Generator(context.Background(), s)

	data, err := os.ReadFile(s.CtxString(CtxArtifactPath))
	require.NoError(t, err)
	assert.Contains(t, string(data), `[data-test=\"username\"]`)
}
