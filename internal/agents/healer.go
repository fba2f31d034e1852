package agents

import (
	"context"
	"time"

	"pacts/internal/browser"
	"pacts/internal/discovery"
	"pacts/internal/gate"
	"pacts/internal/logging"
	"pacts/internal/memory"
	"pacts/internal/types"
)

// OracleHealer runs one bounded heal cycle for the failed step: reveal,
// reprobe, stabilize. Every cycle increments HealRound whether or not it
// succeeds, so a step that cannot be healed exhausts the budget instead
// of looping. An exhausted budget returns the state untouched and the
// router hands it to VerdictRCA.
func (r *Runtime) OracleHealer(ctx context.Context, s *types.RunState) *types.RunState {
	if s.Terminal() || s.Failure == types.FailureNone {
		return s
	}
	log := logging.Get(logging.CategoryHeal)

	if s.HealRound >= r.Cfg.Healing.MaxRounds {
		log.Warn("req=%s step=%d heal budget exhausted (%d rounds)", s.ReqID, s.StepIdx, s.HealRound)
		return s
	}

	idx := s.StepIdx
	intent := s.Plan[idx]
	round := s.HealRound + 1
	before, _ := s.RecordFor(idx)
	key := types.NewCacheKey(s.URL, intent.ElementName, intent.Action)

	log.Info("[HEAL] req=%s step=%d round=%d/%d failure=%s selector=%s",
		s.ReqID, idx, round, r.Cfg.Healing.MaxRounds, s.Failure, before.Selector)

	// The strategy that just failed never wins the reprobe.
	if !before.Zero() {
		r.markTierFailed(idx, before.Strategy)
	}

	r.reveal(ctx, s, idx, before)

	rec, ok := r.reprobe(ctx, s, idx, intent, key)
	s.HealRound = round
	if !ok {
		s.HealEvents = append(s.HealEvents, types.HealEvent{
			Round:          round,
			SelectorBefore: before.Selector,
			Success:        false,
			Reason:         "no candidate cleared the gate",
		})
		log.Warn("req=%s step=%d round=%d failed: no candidate cleared the gate", s.ReqID, idx, round)
		return s
	}

	s.ReplaceRecord(idx, rec)
	s.Failure = types.FailureNone
	s.HealEvents = append(s.HealEvents, types.HealEvent{
		Round:          round,
		SelectorBefore: before.Selector,
		SelectorAfter:  rec.Selector,
		Strategy:       rec.Strategy,
		Success:        true,
	})
	if err := r.Store.RecordHealOutcome(key.URLPattern, key.ElementName, rec.Strategy, true); err != nil {
		logging.Get(logging.CategoryStore).Warn("heal ledger write failed: %v", err)
	}
	if err := r.Cache.Admit(ctx, key, rec, r.pageHash); err != nil {
		logging.Get(logging.CategoryCache).Warn("cache admit after heal failed: %v", err)
	}
	// Reveal may have closed the panel a memoized scope pointed into.
	r.invalidateScopes()
	log.Info("req=%s step=%d healed via %s: %s", s.ReqID, idx, rec.Strategy, rec.Selector)
	return s
}

// reveal clears whatever hides the target: scroll it into view, dismiss
// any blocking dialog, and let in-flight requests drain briefly.
func (r *Runtime) reveal(ctx context.Context, s *types.RunState, idx int, rec types.SelectorRecord) {
	log := logging.Get(logging.CategoryHeal)

	if !rec.Zero() {
		scope, _ := r.resolveScope(ctx, s.Plan[idx].ScopeHint, false)
		if els, err := r.Engine.Resolve(ctx, rec, scope); err == nil && len(els) > 0 {
			_ = els[0].ScrollIntoView()
		}
	}

	if res := r.Sentinel.Scan(ctx); res.Fired {
		log.Info("reveal dismissed dialog: %s", truncateReason(res.Text))
	}

	budget := time.Duration(r.Cfg.Healing.RevealBudgetMs) * time.Millisecond
	if budget <= 0 {
		budget = time.Second
	}
	_ = r.Driver.WaitIdle(ctx, budget)
}

// reprobe re-runs discovery in ledger-ranked strategy order, excluding
// every strategy that already failed for this step. Each candidate must
// clear the gate under a doubled budget before it wins; widened matching
// with the scope dropped is the last resort.
func (r *Runtime) reprobe(ctx context.Context, s *types.RunState, idx int, intent types.Intent, key types.CacheKey) (types.SelectorRecord, bool) {
	log := logging.Get(logging.CategoryHeal)

	entries, err := r.Store.HealStats(key.URLPattern, key.ElementName)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("heal ledger read failed: %v", err)
	}
	order := memory.RankStrategies(entries, types.AllTiers)
	scope, _ := r.resolveScope(ctx, intent.ScopeHint, false)

	if rec, ok := r.probePass(ctx, s, idx, intent, key, discovery.Options{
		Scope: scope,
		Order: order,
	}); ok {
		return rec, true
	}

	log.Debug("req=%s step=%d normal reprobe exhausted, widening", s.ReqID, idx)
	return r.probePass(ctx, s, idx, intent, key, discovery.Options{
		Widen: true,
		Order: order,
	})
}

// probePass walks candidates under one option set until a candidate
// stabilizes or discovery runs dry. Failed candidates are charged to the
// ledger and excluded for the rest of the run.
func (r *Runtime) probePass(ctx context.Context, s *types.RunState, idx int, intent types.Intent, key types.CacheKey, opts discovery.Options) (types.SelectorRecord, bool) {
	for {
		opts.Skip = r.failedTiersFor(idx)
		rec, ok := r.Engine.Discover(ctx, intent, opts)
		if !ok {
			return types.SelectorRecord{}, false
		}
		if r.stabilize(ctx, rec, intent, opts.Scope) {
			rec.Meta.DomHashPrefix = prefixOf(r.pageHash, 12)
			return rec, true
		}
		r.markTierFailed(idx, rec.Strategy)
		if err := r.Store.RecordHealOutcome(key.URLPattern, key.ElementName, rec.Strategy, false); err != nil {
			logging.Get(logging.CategoryStore).Warn("heal ledger write failed: %v", err)
		}
		if intent.HasOrdinal() {
			// The ordinal tier preempts discovery unconditionally; if its
			// candidate failed the gate there is nothing else to probe.
			return types.SelectorRecord{}, false
		}
	}
}

// stabilize is the heal-time actionability check under doubled budgets.
func (r *Runtime) stabilize(ctx context.Context, rec types.SelectorRecord, intent types.Intent, scope browser.Element) bool {
	els, err := r.Engine.Resolve(ctx, rec, scope)
	if err != nil {
		return false
	}
	_, failure := r.Gate.Check(ctx, els, intent.Action, gate.CheckOpts{
		Scope:        scope,
		ScopeHinted:  intent.ScopeHint != "" && scope != nil,
		TimeoutScale: 2,
	})
	return failure == types.FailureNone
}

func truncateReason(s string) string {
	if len(s) > 120 {
		return s[:120]
	}
	return s
}
