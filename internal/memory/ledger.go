package memory

import (
	"sort"
	"time"

	"pacts/internal/types"
)

// recencyBoost weights ledger rows so recent outcomes dominate: healing
// strategies drift with the app under test, and what worked last quarter
// says little about today.
func recencyBoost(lastUsed time.Time, now time.Time) float64 {
	age := now.Sub(lastUsed)
	switch {
	case age <= 7*24*time.Hour:
		return 1.5
	case age <= 30*24*time.Hour:
		return 1.0
	default:
		return 0.7
	}
}

// StrategyScore is the ranking weight of one strategy for one element.
func StrategyScore(e types.LedgerEntry, now time.Time) float64 {
	return e.Rate() * recencyBoost(e.LastUsedAt, now)
}

// unseenPrior is the score for strategies with no ledger history. Proven
// winners rank above it, proven losers sink below it, and the unseen
// middle keeps waterfall order among themselves.
const unseenPrior = 0.1

// RankStrategies orders the discovery tiers for a heal attempt by the
// ledger's weighted success rate. Ties preserve waterfall order.
func RankStrategies(entries []types.LedgerEntry, base []types.Strategy) []types.Strategy {
	now := time.Now().UTC()
	scores := make(map[types.Strategy]float64, len(entries))
	for _, e := range entries {
		scores[e.Strategy] = StrategyScore(e, now)
	}

	basePos := make(map[types.Strategy]int, len(base))
	out := make([]types.Strategy, len(base))
	for i, s := range base {
		basePos[s] = i
		out[i] = s
	}

	scoreOf := func(s types.Strategy) float64 {
		if sc, ok := scores[s]; ok {
			return sc
		}
		return unseenPrior
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := scoreOf(out[i]), scoreOf(out[j])
		if si != sj {
			return si > sj
		}
		return basePos[out[i]] < basePos[out[j]]
	})
	return out
}
