package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacts/internal/browser"
	"pacts/internal/types"
)

func plannerRuntime(t *testing.T) *Runtime {
	d := browser.NewFakeDriver("https://app.test", browser.El("body"))
	return newTestRuntime(t, fastConfig(t), d)
}

func TestParseSuiteRejectsInvalidInput(t *testing.T) {
	_, err := ParseSuite([]byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseSuite([]byte(`{"testcases": []}`))
	assert.Error(t, err)

	_, err = ParseSuite([]byte(`{"testcases": [{"id": "t", "steps": [{"target": "x", "action": "explode"}]}]}`))
	assert.Error(t, err)
}

func TestParseSuiteAcceptsValidInput(t *testing.T) {
	suite, err := ParseSuite([]byte(`{
		"testcases": [{
			"id": "login",
			"steps": [
				{"target": "Username", "action": "fill", "value": "{{user}}"},
				{"target": "Log in", "action": "click"}
			],
			"data": [{"user": "alice"}, {"user": "bob"}]
		}]
	}`))
	require.NoError(t, err)
	require.Len(t, suite.TestCases, 1)
	assert.Len(t, suite.TestCases[0].Steps, 2)
	assert.Len(t, suite.TestCases[0].Data, 2)
}

func TestSubstituteTokens(t *testing.T) {
	row := map[string]string{"user": "alice", "password": "hunter2"}
	secrets := map[string]bool{"password": true}

	out, secret, unresolved := substituteTokens("{{user}}@corp", row, secrets)
	assert.Equal(t, "alice@corp", out)
	assert.False(t, secret)
	assert.False(t, unresolved)

	out, secret, _ = substituteTokens("{{password}}", row, secrets)
	assert.Equal(t, "hunter2", out)
	assert.True(t, secret)

	out, _, unresolved = substituteTokens("{{missing}}", row, secrets)
	assert.Equal(t, "{{missing}}", out)
	assert.True(t, unresolved)
}

func TestParseOrdinalGrammar(t *testing.T) {
	cases := []struct {
		name    string
		ordinal int
		hint    string
		ok      bool
	}{
		{"first video", 0, "video", true},
		{"second result", 1, "result", true},
		{"tenth row", 9, "row", true},
		{"2nd item", 1, "item", true},
		{"11th entry", 10, "entry", true},
		{"3rd link", 2, "link", true},
		{"username field", -1, "", false},
		{"first", -1, "", false},
	}
	for _, tc := range cases {
		ord, hint, ok := parseOrdinal(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		if tc.ok {
			assert.Equal(t, tc.ordinal, ord, tc.name)
			assert.Equal(t, tc.hint, hint, tc.name)
		}
	}
}

func TestParseLegacyLine(t *testing.T) {
	step, ok := parseLegacyLine("Username | fill | alice | field_populated")
	require.True(t, ok)
	assert.Equal(t, "Username", step.Target)
	assert.Equal(t, "fill", step.Action)
	assert.Equal(t, "alice", step.Value)
	assert.Equal(t, "field_populated", step.Outcome)

	_, ok = parseLegacyLine("just a target")
	assert.False(t, ok)

	_, ok = parseLegacyLine("Target | frobnicate")
	assert.False(t, ok)
}

func TestPlannerBindsDataAndFlagsSecrets(t *testing.T) {
	rt := plannerRuntime(t)
	s := seedState("https://app.test", loginSteps(), map[string]string{
		"user": "alice", "password": "hunter2",
	})
	s.Context[CtxSecretTokens] = map[string]bool{"password": true}

	s = rt.Planner(context.Background(), s)
	require.False(t, s.Terminal())
	// Three authored steps plus the synthetic navigation assertion.
	require.Len(t, s.Plan, 4)

	assert.Equal(t, "alice", s.Plan[0].Value)
	assert.False(t, s.Plan[0].Secret)
	assert.Equal(t, "hunter2", s.Plan[1].Value)
	assert.True(t, s.Plan[1].Secret)
	assert.Equal(t, -1, s.Plan[0].Ordinal)
	assert.NotEmpty(t, s.PlanHash)
}

func TestPlannerAppendsNavigationAssertion(t *testing.T) {
	rt := plannerRuntime(t)
	s := seedState("https://app.test", loginSteps(), nil)

	s = rt.Planner(context.Background(), s)
	require.Len(t, s.Plan, 4)
	last := s.Plan[3]
	assert.Equal(t, types.ActionWait, last.Action)
	assert.Equal(t, types.OutcomePageContainsText+"dashboard", last.Outcome)
}

func TestPlannerDecoratesOrdinals(t *testing.T) {
	rt := plannerRuntime(t)
	s := seedState("https://app.test", []types.SuiteStep{
		{Target: "search box", Action: "fill", Value: "go tutorials"},
		{Target: "first video", Action: "click"},
	}, nil)

	s = rt.Planner(context.Background(), s)
	require.Len(t, s.Plan, 2)
	assert.Equal(t, 0, s.Plan[1].Ordinal)
	assert.Equal(t, "video", s.Plan[1].ElementTypeHint)
	assert.Equal(t, -1, s.Plan[0].Ordinal)
}

func TestPlannerScopePropagationWindow(t *testing.T) {
	rt := plannerRuntime(t)
	s := seedState("https://app.test", []types.SuiteStep{
		{Target: "New Case", Action: "click"},
		{Target: "Subject", Action: "fill", Value: "a"},
		{Target: "Description", Action: "fill", Value: "b"},
		{Target: "Priority", Action: "select", Value: "High"},
		{Target: "Save", Action: "click"},
		{Target: "Confirm banner", Action: "click"},
	}, nil)

	s = rt.Planner(context.Background(), s)
	require.Len(t, s.Plan, 6)
	assert.Empty(t, s.Plan[0].ScopeHint)
	for i := 1; i <= 4; i++ {
		assert.Equal(t, "New Case", s.Plan[i].ScopeHint, "step %d", i)
	}
	assert.Empty(t, s.Plan[5].ScopeHint)
}

func TestPlannerNoInputIsAnError(t *testing.T) {
	rt := plannerRuntime(t)
	s := types.NewRunState("r", "https://app.test")

	s = rt.Planner(context.Background(), s)
	assert.Equal(t, types.VerdictError, s.Verdict)
	assert.Equal(t, types.RCAUnknown, s.RCA.Class)
}

func TestPlannerUnresolvedTokensFlagged(t *testing.T) {
	rt := plannerRuntime(t)
	s := seedState("https://app.test", []types.SuiteStep{
		{Target: "Amount", Action: "fill", Value: "{{amount}}"},
	}, map[string]string{})

	s = rt.Planner(context.Background(), s)
	assert.Equal(t, true, s.Context[CtxUnresolvedData])
	// Missing tokens stay literal so discovery still gets a name.
	assert.Equal(t, "{{amount}}", s.Plan[0].Value)
}

func TestPlannerLegacyLinesFromContext(t *testing.T) {
	rt := plannerRuntime(t)
	s := types.NewRunState("r", "https://app.test")
	s.Context[CtxRawSteps] = []string{
		"Username | fill | alice",
		"",
		"Log in | click",
	}

	s = rt.Planner(context.Background(), s)
	require.Len(t, s.Plan, 2)
	assert.Equal(t, types.ActionFill, s.Plan[0].Action)
}

func TestPlanHashIsDeterministic(t *testing.T) {
	rt := plannerRuntime(t)
	a := rt.Planner(context.Background(), seedState("https://app.test", loginSteps(), nil))
	b := rt.Planner(context.Background(), seedState("https://app.test", loginSteps(), nil))
	assert.Equal(t, a.PlanHash, b.PlanHash)

	other := loginSteps()
	other[0].Value = "different"
	c := rt.Planner(context.Background(), seedState("https://app.test", other, nil))
	assert.NotEqual(t, a.PlanHash, c.PlanHash)
}

func TestExpandSuite(t *testing.T) {
	suite := &types.Suite{TestCases: []types.TestCase{
		{ID: "a", Steps: []types.SuiteStep{{Target: "x", Action: "click"}},
			Data: []map[string]string{{"u": "1"}, {"u": "2"}}},
		{ID: "b", Steps: []types.SuiteStep{{Target: "y", Action: "click"}}},
	}}
	runs := ExpandSuite(suite)
	require.Len(t, runs, 3)
	assert.Equal(t, "a", runs[0]["case_id"])
	assert.Equal(t, 1, runs[1]["row_idx"])
	assert.Equal(t, "b", runs[2]["case_id"])
}
