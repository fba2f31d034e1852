package discovery

import (
	"context"

	"pacts/internal/browser"
	"pacts/internal/logging"
)

// ResolveScope maps a scope hint to a container element. Resolution order:
// dialog by accessible name, form by legend, then landmark/region. Missing
// scope is not fatal; the caller falls back to the whole document and the
// gate's scoped check reports the mismatch.
func ResolveScope(ctx context.Context, d browser.Driver, hint string, widen bool) (browser.Element, bool) {
	if hint == "" {
		return nil, false
	}

	dialogSel, _ := browser.RoleSelector("dialog")
	if el, ok := bestByAccessibleName(ctx, d, dialogSel, hint, widen); ok {
		logging.Get(logging.CategoryDiscovery).Debug("scope %q -> dialog %s", hint, el.Selector())
		return el, true
	}

	if forms, err := d.Query(ctx, "form"); err == nil {
		best := Match{}
		var found browser.Element
		for _, form := range forms {
			legends, err := d.QueryIn(ctx, form, "legend")
			if err != nil {
				continue
			}
			for _, legend := range legends {
				if m := MatchName(legend.Text(), hint, widen); m.Found() && m.Better(best) {
					best, found = m, form
				}
			}
		}
		if found != nil {
			logging.Get(logging.CategoryDiscovery).Debug("scope %q -> form legend", hint)
			return found, true
		}
	}

	landmarkSel := `[role="region"], [role="main"], [role="navigation"], [role="complementary"], section[aria-label], nav[aria-label], aside[aria-label]`
	if el, ok := bestByAccessibleName(ctx, d, landmarkSel, hint, widen); ok {
		logging.Get(logging.CategoryDiscovery).Debug("scope %q -> landmark %s", hint, el.Selector())
		return el, true
	}

	logging.Get(logging.CategoryDiscovery).Debug("scope %q unresolved", hint)
	return nil, false
}

// bestByAccessibleName picks the best-matching element for a name among
// those matching sel. The accessible name is aria-label, falling back to a
// contained heading, then the element's own text.
func bestByAccessibleName(ctx context.Context, d browser.Driver, sel, name string, widen bool) (browser.Element, bool) {
	els, err := d.Query(ctx, sel)
	if err != nil {
		return nil, false
	}
	best := Match{}
	var found browser.Element
	for _, el := range els {
		if m := MatchName(accessibleName(ctx, d, el), name, widen); m.Found() && m.Better(best) {
			best, found = m, el
		}
	}
	return found, found != nil
}

// accessibleName approximates the ARIA accessible-name computation for
// container elements.
func accessibleName(ctx context.Context, d browser.Driver, el browser.Element) string {
	if label := el.Attr("aria-label"); label != "" {
		return label
	}
	if headings, err := d.QueryIn(ctx, el, "h1, h2, h3, h4, h5, h6"); err == nil && len(headings) > 0 {
		return headings[0].Text()
	}
	return el.Text()
}
