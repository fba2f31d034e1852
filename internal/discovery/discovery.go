package discovery

import (
	"context"
	"fmt"

	"pacts/internal/browser"
	"pacts/internal/logging"
	"pacts/internal/types"
)

// Engine walks the tier table against a live driver.
type Engine struct {
	driver browser.Driver
}

// New builds a discovery engine over a run's driver.
func New(d browser.Driver) *Engine {
	return &Engine{driver: d}
}

// Options shape one discovery attempt.
type Options struct {
	// Scope restricts queries to descendants of this container.
	Scope browser.Element
	// Widen relaxes fuzzy matching; healer last resort.
	Widen bool
	// Skip removes strategies already tried unsuccessfully in this run.
	Skip map[types.Strategy]bool
	// Order overrides the waterfall; nil keeps the tier table order.
	Order []types.Strategy
}

func (e *Engine) queryFn(ctx context.Context, scope browser.Element) queryFn {
	return func(selector string) []browser.Element {
		var els []browser.Element
		var err error
		if scope != nil {
			els, err = e.driver.QueryIn(ctx, scope, selector)
		} else {
			els, err = e.driver.Query(ctx, selector)
		}
		if err != nil {
			logging.Get(logging.CategoryDiscovery).Debug("query %q failed: %v", selector, err)
			return nil
		}
		return els
	}
}

// Discover resolves one intent to a selector record. The ordinal tier
// preempts the waterfall when the intent is positional; an out-of-range
// ordinal falls through to the regular tiers.
func (e *Engine) Discover(ctx context.Context, intent types.Intent, opts Options) (types.SelectorRecord, bool) {
	log := logging.Get(logging.CategoryDiscovery)
	q := e.queryFn(ctx, opts.Scope)
	in := Input{Intent: intent, Widen: opts.Widen}

	if intent.HasOrdinal() {
		if rec, ok := tierOrdinal(q, in); ok {
			log.Info("ordinal hit for %q: %s[%d] role=%s",
				intent.ElementName, rec.Selector, rec.Meta.Ordinal, rec.Meta.Role)
			return rec, true
		}
		log.Debug("ordinal %d out of range for %q, falling through to tiers",
			intent.Ordinal, intent.ElementName)
	}

	order := opts.Order
	if order == nil {
		order = types.AllTiers
	}
	for _, strategy := range order {
		if opts.Skip[strategy] {
			continue
		}
		spec, ok := specFor(strategy)
		if !ok {
			continue
		}
		rec, ok := spec.fn(q, in)
		if !ok {
			continue
		}
		log.Info("tier %d (%s) hit for %q: %s score=%.2f stable=%t",
			spec.Tier, spec.Strategy, intent.ElementName, rec.Selector, rec.Score, rec.Stable)
		return rec, true
	}

	log.Warn("all tiers missed for %q (widen=%t)", intent.ElementName, opts.Widen)
	return types.SelectorRecord{}, false
}

// Resolve materializes a record into the element(s) its locator denotes.
// Positional strategies (ordinal, role) denote exactly the indexed element
// of the enumeration; everything else denotes all selector matches.
func (e *Engine) Resolve(ctx context.Context, rec types.SelectorRecord, scope browser.Element) ([]browser.Element, error) {
	q := e.queryFn(ctx, scope)
	els := q(rec.Selector)
	if !positional(rec) {
		return els, nil
	}
	if rec.Meta.Ordinal < 0 || rec.Meta.Ordinal >= len(els) {
		return nil, fmt.Errorf("position %d out of range (%d matches) for %s",
			rec.Meta.Ordinal, len(els), rec.Selector)
	}
	return []browser.Element{els[rec.Meta.Ordinal]}, nil
}

func positional(rec types.SelectorRecord) bool {
	return rec.Strategy == types.StrategyOrdinal || rec.Strategy == types.StrategyRole
}
