package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pacts/internal/types"
)

func TestRankStrategiesWinnersFirstLosersLast(t *testing.T) {
	now := time.Now().UTC()
	entries := []types.LedgerEntry{
		{Strategy: types.StrategyRole, SuccessCount: 8, FailureCount: 1, LastUsedAt: now.Add(-24 * time.Hour)},
		{Strategy: types.StrategyIDClass, SuccessCount: 0, FailureCount: 6, LastUsedAt: now.Add(-24 * time.Hour)},
	}

	ranked := RankStrategies(entries, types.AllTiers)
	assert.Equal(t, types.StrategyRole, ranked[0])
	assert.Equal(t, types.StrategyIDClass, ranked[len(ranked)-1])
	assert.ElementsMatch(t, types.AllTiers, ranked)
}

func TestRankStrategiesUnseenKeepWaterfallOrder(t *testing.T) {
	ranked := RankStrategies(nil, types.AllTiers)
	assert.Equal(t, types.AllTiers, ranked)
}

func TestRecencyBoostDecays(t *testing.T) {
	now := time.Now().UTC()
	fresh := types.LedgerEntry{Strategy: types.StrategyNameAttr, SuccessCount: 3, FailureCount: 0, LastUsedAt: now.Add(-time.Hour)}
	stale := types.LedgerEntry{Strategy: types.StrategyNameAttr, SuccessCount: 3, FailureCount: 0, LastUsedAt: now.Add(-60 * 24 * time.Hour)}

	assert.Greater(t, StrategyScore(fresh, now), StrategyScore(stale, now))
	assert.InDelta(t, (3.0/4.0)*1.5, StrategyScore(fresh, now), 0.001)
	assert.InDelta(t, (3.0/4.0)*0.7, StrategyScore(stale, now), 0.001)
}

func TestRecentFailureOutranksAncientSuccessLosing(t *testing.T) {
	// A strategy that failed recently still sinks below unseen ones.
	now := time.Now().UTC()
	entries := []types.LedgerEntry{
		{Strategy: types.StrategyAriaLabel, SuccessCount: 0, FailureCount: 3, LastUsedAt: now},
	}
	ranked := RankStrategies(entries, types.AllTiers)
	assert.Equal(t, types.StrategyAriaLabel, ranked[len(ranked)-1])
}
