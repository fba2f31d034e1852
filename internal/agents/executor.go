package agents

import (
	"context"
	"strings"
	"time"

	"pacts/internal/browser"
	"pacts/internal/discovery"
	"pacts/internal/gate"
	"pacts/internal/logging"
	"pacts/internal/types"
)

// transientRetries is how many same-selector retries a transient gate
// failure gets before the step yields to the healer.
const transientRetries = 2

// Executor walks the plan from StepIdx, one intent per iteration:
// sentinel pre-scan, element acquisition through the actionability gate,
// pattern dispatch, post-action sentinel scan, outcome verification.
// The first diagnosable failure stops the loop with s.Failure set; the
// router decides whether the healer gets it.
func (r *Runtime) Executor(ctx context.Context, s *types.RunState) *types.RunState {
	if s.Terminal() {
		return s
	}
	log := logging.Get(logging.CategoryExec)

	for s.StepIdx < len(s.Plan) {
		if ctx.Err() != nil {
			return s
		}
		idx := s.StepIdx
		intent := s.Plan[idx]
		start := time.Now()
		log.Info("req=%s step=%d/%d %s %q", s.ReqID, idx+1, len(s.Plan),
			intent.Action, intent.ElementName)

		if res := r.Sentinel.Scan(ctx); res.Fired {
			log.Warn("req=%s step=%d sentinel fired before action: %s", s.ReqID, idx, res.Text)
			s.SentinelFired = true
			s.Failure = res.FailureKind()
			return s
		}

		if !needsElement(intent) {
			if failure := r.runFlowStep(ctx, intent); failure != types.FailureNone {
				s.Failure = failure
				return s
			}
			r.commitStep(s, intent, types.SelectorRecord{}, PatternWait, start)
			continue
		}

		scope, _ := r.resolveScope(ctx, intent.ScopeHint, false)
		rec, _ := s.RecordFor(idx)
		if rec.Zero() {
			// The element may only exist now that earlier steps ran;
			// re-discover against the live page.
			jit, ok := r.Engine.Discover(ctx, intent, discovery.Options{Scope: scope})
			if !ok {
				log.Warn("req=%s step=%d discovery missing for %q", s.ReqID, idx, intent.ElementName)
				s.Failure = types.FailureDiscoveryMissing
				return s
			}
			jit.Meta.DomHashPrefix = prefixOf(r.pageHash, 12)
			rec = jit
			s.ReplaceRecord(idx, rec)
			key := types.NewCacheKey(s.URL, intent.ElementName, intent.Action)
			if err := r.Cache.Admit(ctx, key, rec, r.pageHash); err != nil {
				logging.Get(logging.CategoryCache).Warn("cache admit failed: %v", err)
			}
		}

		el, failure := r.acquire(ctx, rec, intent, scope)
		if failure != types.FailureNone {
			log.Warn("req=%s step=%d gate failure %s on %s", s.ReqID, idx, failure, rec.Selector)
			s.Failure = failure
			return s
		}

		pattern, err := r.performAction(ctx, intent, el)
		if err != nil {
			log.Warn("req=%s step=%d action failed: %v", s.ReqID, idx, err)
			s.Failure = types.FailureTimeout
			return s
		}

		// Submit-like actions can surface validation dialogs immediately.
		switch intent.Action {
		case types.ActionClick, types.ActionPress, types.ActionSelect:
			if res := r.Sentinel.Scan(ctx); res.Fired {
				log.Warn("req=%s step=%d sentinel fired after action: %s", s.ReqID, idx, res.Text)
				s.SentinelFired = true
				s.Failure = res.FailureKind()
				return s
			}
		}

		if failure := r.verifyOutcome(ctx, intent, el); failure != types.FailureNone {
			log.Warn("req=%s step=%d outcome %q not met", s.ReqID, idx, intent.Outcome)
			s.Failure = failure
			return s
		}

		if _, nav := intent.NavigatesTo(); nav {
			r.refreshPageHash(ctx)
			r.invalidateScopes()
		}
		r.commitStep(s, intent, rec, pattern, start)
	}
	return s
}

// acquire resolves the record and runs the five-point gate, retrying the
// same selector for transient failures.
func (r *Runtime) acquire(ctx context.Context, rec types.SelectorRecord, intent types.Intent, scope browser.Element) (browser.Element, types.FailureKind) {
	log := logging.Get(logging.CategoryExec)
	opts := gate.CheckOpts{Scope: scope, ScopeHinted: intent.ScopeHint != ""}
	for attempt := 0; ; attempt++ {
		els, err := r.Engine.Resolve(ctx, rec, scope)
		if err != nil {
			els = nil
		}
		el, failure := r.Gate.Check(ctx, els, intent.Action, opts)
		if failure == types.FailureNone {
			return el, failure
		}
		if !failure.Transient() || attempt >= transientRetries || ctx.Err() != nil {
			return nil, failure
		}
		log.Debug("transient %s on %s, retry %d/%d", failure, rec.Selector, attempt+1, transientRetries)
	}
}

// runFlowStep handles elementless intents: navigation and outcome-only
// waits.
func (r *Runtime) runFlowStep(ctx context.Context, intent types.Intent) types.FailureKind {
	if intent.Action == types.ActionNavigate {
		target := intent.Value
		if target == "" {
			target = intent.ElementName
		}
		if err := r.Driver.Navigate(ctx, target); err != nil {
			logging.Get(logging.CategoryBrowser).Warn("navigate %s failed: %v", target, err)
			return types.FailureTimeout
		}
		r.Gate.PageReady(ctx)
		r.refreshPageHash(ctx)
		r.invalidateScopes()
	}
	return r.verifyOutcome(ctx, intent, nil)
}

// verifyOutcome checks the declared outcome token. Actions without an
// outcome verify implicitly: the primitive not erroring is the check.
func (r *Runtime) verifyOutcome(ctx context.Context, intent types.Intent, el browser.Element) types.FailureKind {
	switch {
	case intent.Outcome == types.OutcomeFieldPopulated:
		if el == nil {
			return types.FailureAssertion
		}
		got, err := el.Value()
		if err != nil || strings.TrimSpace(got) != strings.TrimSpace(intent.Value) {
			return types.FailureAssertion
		}
	case hasPrefixOutcome(intent, types.OutcomeNavigatesTo):
		token, _ := intent.NavigatesTo()
		if !r.awaitNavigation(ctx, token) {
			return types.FailureAssertion
		}
	case hasPrefixOutcome(intent, types.OutcomePageContainsText):
		token, _ := intent.PageContainsText()
		if !r.awaitPageText(ctx, token) {
			return types.FailureAssertion
		}
	}
	return types.FailureNone
}

func hasPrefixOutcome(intent types.Intent, prefix string) bool {
	return strings.HasPrefix(intent.Outcome, prefix)
}

// commitStep appends the execution log entry and advances the cursor.
// A successful step also clears the heal round counter; budget is per
// step, not per run.
func (r *Runtime) commitStep(s *types.RunState, intent types.Intent, rec types.SelectorRecord, pattern string, start time.Time) {
	s.ExecutedSteps = append(s.ExecutedSteps, types.StepResult{
		Intent:   intent,
		Selector: rec.Selector,
		Strategy: rec.Strategy,
		Ordinal:  rec.Meta.Ordinal,
		Pattern:  pattern,
		Ms:       time.Since(start).Milliseconds(),
		Outcome:  "ok",
	})
	s.StepIdx++
	s.HealRound = 0
	s.Failure = types.FailureNone
}
