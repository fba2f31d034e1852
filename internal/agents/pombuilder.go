package agents

import (
	"context"
	"strings"

	"pacts/internal/browser"
	"pacts/internal/discovery"
	"pacts/internal/gate"
	"pacts/internal/logging"
	"pacts/internal/memory"
	"pacts/internal/profile"
	"pacts/internal/types"
)

// POMBuilder navigates once, classifies the runtime profile, and walks
// every intent through cache, drift check, and the tier waterfall. An
// intent discovery can legitimately miss here when its element only
// exists after earlier steps run (search results, modal fields); the
// Executor re-runs discovery just-in-time for those, so a miss records an
// empty slot instead of failing the run.
func (r *Runtime) POMBuilder(ctx context.Context, s *types.RunState) *types.RunState {
	if s.Terminal() {
		return s
	}
	log := logging.Get(logging.CategoryDiscovery)

	if navigated, _ := s.Context[CtxNavigated].(bool); !navigated {
		if err := r.navigate(ctx, s); err != nil {
			log.Error("req=%s navigation failed: %v", s.ReqID, err)
			s.DriverFault = true
			s.Verdict = types.VerdictError
			s.RCA = types.RCA{Class: types.RCAEnvFault, Confidence: 0.9, Notes: err.Error()}
			return s
		}
		s.Context[CtxNavigated] = true
	}

	for idx, intent := range s.Intents {
		if idx < len(s.Discovered) {
			continue
		}
		if !needsElement(intent) {
			s.Discovered = append(s.Discovered, types.SelectorRecord{})
			continue
		}
		// Consecutive intents on the same element reuse the record.
		if idx > 0 && len(s.Discovered) > 0 &&
			strings.EqualFold(intent.ElementName, s.Intents[idx-1].ElementName) &&
			!s.Discovered[idx-1].Zero() {
			s.Discovered = append(s.Discovered, s.Discovered[idx-1])
			continue
		}
		rec := r.discoverIntent(ctx, s, idx, intent)
		s.Discovered = append(s.Discovered, rec)
	}
	return s
}

func needsElement(intent types.Intent) bool {
	return intent.Action != types.ActionWait && intent.Action != types.ActionNavigate
}

func (r *Runtime) navigate(ctx context.Context, s *types.RunState) error {
	if statePath := s.CtxString(CtxStorageState); statePath != "" {
		if err := r.Driver.LoadStorageState(ctx, statePath); err != nil {
			logging.Get(logging.CategoryBrowser).Warn("storage state load failed: %v", err)
		}
	}
	if err := r.Driver.Navigate(ctx, s.URL); err != nil {
		return err
	}

	html := r.Driver.HTMLPrefix(ctx, 1<<20)
	r.Profile = profile.Detect(r.Cfg.Profiles, s.URL, html, s.CtxString(CtxProfileOverride))
	r.Gate = gate.New(r.Driver, r.Profile)
	r.Sentinel = gate.NewSentinel(r.Driver, r.Cfg.Sentinel)

	r.Gate.PageReady(ctx)
	r.refreshPageHash(ctx)
	r.invalidateScopes()
	return nil
}

// refreshPageHash recomputes the structural fingerprint; drift checks for
// cached selectors compare against it.
func (r *Runtime) refreshPageHash(ctx context.Context) {
	structure, err := r.Driver.Eval(ctx, memory.StructureJS)
	if err != nil {
		logging.Get(logging.CategoryCache).Debug("fingerprint eval failed: %v", err)
		return
	}
	r.pageHash = memory.FingerprintHex(strings.Trim(structure, `"`))
}

// discoverIntent is the per-intent protocol: cache, drift check, tier
// walk, actionability, admission.
func (r *Runtime) discoverIntent(ctx context.Context, s *types.RunState, idx int, intent types.Intent) types.SelectorRecord {
	log := logging.Get(logging.CategoryDiscovery)
	scope, _ := r.resolveScope(ctx, intent.ScopeHint, false)

	key := types.NewCacheKey(s.URL, intent.ElementName, intent.Action)
	if entry, hit, err := r.Cache.Lookup(ctx, key); err == nil && hit {
		if rec, ok := r.validateCached(ctx, s, key, entry, intent, scope); ok {
			return rec
		}
	}

	rec, ok := r.Engine.Discover(ctx, intent, discovery.Options{Scope: scope})
	if !ok {
		log.Debug("req=%s step=%d no selector yet for %q (deferred to executor)",
			s.ReqID, idx, intent.ElementName)
		return types.SelectorRecord{}
	}
	if !r.gatePasses(ctx, rec, intent, scope) {
		// Walk the remaining tiers past the failing candidate.
		skip := map[types.Strategy]bool{rec.Strategy: true}
		for {
			next, ok := r.Engine.Discover(ctx, intent, discovery.Options{Scope: scope, Skip: skip})
			if !ok {
				return types.SelectorRecord{}
			}
			if r.gatePasses(ctx, next, intent, scope) {
				rec = next
				break
			}
			skip[next.Strategy] = true
		}
	}

	rec.Meta.DomHashPrefix = prefixOf(r.pageHash, 12)
	if err := r.Cache.Admit(ctx, key, rec, r.pageHash); err != nil {
		logging.Get(logging.CategoryCache).Warn("cache admit failed: %v", err)
	}
	return rec
}

// validateCached applies the drift check then the actionability gate to a
// cache hit. Rejection evicts and falls back to the tier walk.
func (r *Runtime) validateCached(ctx context.Context, s *types.RunState, key types.CacheKey, entry types.CacheEntry, intent types.Intent, scope browser.Element) (types.SelectorRecord, bool) {
	log := logging.Get(logging.CategoryCache)

	if entry.DomHashSnapshot != "" && r.pageHash != "" {
		prev, okA := memory.ParseFingerprint(entry.DomHashSnapshot)
		cur, okB := memory.ParseFingerprint(r.pageHash)
		if okA && okB && memory.Drifted(prev, cur, r.Profile.Budgets.DriftThreshold*100) {
			s.DriftEvents++
			r.Cache.Evict(ctx, key, "drift")
			log.Info("req=%s drift %.1f%% evicted %s", s.ReqID,
				memory.DriftPercent(prev, cur), entry.Selector)
			return types.SelectorRecord{}, false
		}
	}

	rec := types.SelectorRecord{
		Selector: entry.Selector,
		Score:    entry.Score,
		Strategy: entry.Strategy,
		Stable:   entry.Stable,
		Meta: types.SelectorMeta{
			FromCache:     true,
			DomHashPrefix: prefixOf(entry.DomHashSnapshot, 12),
		},
	}
	if !r.gatePasses(ctx, rec, intent, scope) {
		r.Cache.Evict(ctx, key, "gate failure on cached selector")
		return types.SelectorRecord{}, false
	}
	r.Cache.RecordHit(ctx, key)
	return rec, true
}

func (r *Runtime) gatePasses(ctx context.Context, rec types.SelectorRecord, intent types.Intent, scope browser.Element) bool {
	els, err := r.Engine.Resolve(ctx, rec, scope)
	if err != nil {
		return false
	}
	_, failure := r.Gate.Check(ctx, els, intent.Action, gate.CheckOpts{
		Scope:       scope,
		ScopeHinted: intent.ScopeHint != "",
	})
	return failure == types.FailureNone
}

func prefixOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
