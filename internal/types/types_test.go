package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanHashDeterministic(t *testing.T) {
	mk := func() Plan {
		return Plan{
			{ElementName: "Search Wikipedia", Action: ActionFill, Value: "Artificial Intelligence", Ordinal: -1},
			{ElementName: "Search Wikipedia", Action: ActionPress, Value: "Enter", Outcome: "page_contains_text:Artificial intelligence", Ordinal: -1},
		}
	}
	a, b := mk(), mk()
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)

	b[1].Value = "Tab"
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestNormalizeURLPattern(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips query and fragment", "https://en.wikipedia.org/wiki/Go?x=1#top", "en.wikipedia.org/wiki/go"},
		{"keeps two path segments", "https://example.com/a/b/c/d", "example.com/a/b"},
		{"host only", "https://www.youtube.com", "www.youtube.com"},
		{"lowercases host", "https://Example.COM/Path", "example.com/path"},
		{"non-url passthrough", "not a url", "not a url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeURLPattern(tc.in))
		})
	}
}

func TestCacheKeyRoundTrip(t *testing.T) {
	k := NewCacheKey("https://en.wikipedia.org/wiki/Main?q=1", "Search Wikipedia", ActionFill)
	assert.Equal(t, "en.wikipedia.org/wiki/main", k.URLPattern)
	assert.Equal(t, "search wikipedia", k.ElementName)

	parsed, err := ParseCacheKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseCacheKey("nope")
	assert.Error(t, err)
}

func TestOutcomeTokens(t *testing.T) {
	in := Intent{Outcome: "navigates_to:watch", Ordinal: -1}
	tok, ok := in.NavigatesTo()
	require.True(t, ok)
	assert.Equal(t, "watch", tok)

	in = Intent{Outcome: "page_contains_text:Artificial intelligence", Ordinal: -1}
	txt, ok := in.PageContainsText()
	require.True(t, ok)
	assert.Equal(t, "Artificial intelligence", txt)

	in = Intent{Outcome: "field_populated", Ordinal: -1}
	_, ok = in.NavigatesTo()
	assert.False(t, ok)
}

func TestRunStateInvariants(t *testing.T) {
	s := NewRunState("req-1", "https://example.com")
	s.Plan = Plan{{ElementName: "a", Action: ActionClick, Ordinal: -1}}

	require.NoError(t, s.CheckInvariants(3))

	s.ExecutedSteps = []StepResult{{Outcome: "ok"}, {Outcome: "ok"}}
	assert.Error(t, s.CheckInvariants(3), "executed_steps beyond plan length")

	s.ExecutedSteps = s.ExecutedSteps[:1]
	s.HealRound = 4
	assert.Error(t, s.CheckInvariants(3), "heal budget exceeded")

	s.HealRound = 0
	s.Verdict = VerdictPass
	require.NoError(t, s.CheckInvariants(3))

	s.HealEvents = append(s.HealEvents, HealEvent{Round: 1, Success: true})
	assert.Error(t, s.CheckInvariants(3), "pass with successful heal")

	s.Verdict = VerdictHealed
	require.NoError(t, s.CheckInvariants(3))
}

func TestActionHelpers(t *testing.T) {
	assert.True(t, ActionFill.Editable())
	assert.False(t, ActionClick.Editable())
	assert.True(t, ActionPress.Valid())
	assert.False(t, Action("explode").Valid())
	assert.True(t, FailureTimeout.Transient())
	assert.False(t, FailureNotUnique.Transient())
}
