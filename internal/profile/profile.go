// Package profile classifies a target page as STATIC or DYNAMIC and derives
// the readiness/timeout budgets the gate and executor run under.
package profile

import (
	"net/url"
	"strings"
	"time"

	"pacts/internal/config"
	"pacts/internal/logging"
)

// Kind is the runtime profile of a page.
type Kind string

const (
	Static  Kind = "STATIC"
	Dynamic Kind = "DYNAMIC"
)

// Budgets are the deadlines a profile grants each suspension point.
type Budgets struct {
	NetworkIdle    time.Duration // stage-1 readiness wait
	StepBudget     time.Duration // per-step cap; also run cap factor
	ActionTimeout  time.Duration // single action primitive
	SettleDelay    time.Duration // DYNAMIC post-load settle; 0 for STATIC
	DriftThreshold float64       // Hamming distance fraction for cache drift
}

// Profile is the detection result.
type Profile struct {
	Kind    Kind
	Budgets Budgets

	// SuccessToken is the host-specific DOM selector that marks an SPA
	// navigation as complete, when configured.
	SuccessToken string

	// ReadyHook is the optional page-installed readiness predicate name.
	ReadyHook string
}

// spaSignatures are HTML markers that indicate a client-rendered app.
var spaSignatures = []string{
	`data-reactroot`,
	`id="root"`,
	`id="app"`,
	`ng-version`,
	`ng-app`,
	`data-aura-rendered-by`,
	`lightning-`,
	`__NEXT_DATA__`,
	`data-v-app`,
}

// htmlSizeThreshold marks app-shell pages whose HTML is mostly script mass.
const htmlSizeThreshold = 512 * 1024

// Detect classifies a URL + HTML prefix under the configured budgets.
// override may be "STATIC" or "DYNAMIC" to bypass detection entirely.
func Detect(cfg config.ProfilesConfig, rawURL, htmlPrefix, override string) Profile {
	kind := classify(cfg, rawURL, htmlPrefix, override)

	p := Profile{
		Kind:      kind,
		ReadyHook: cfg.ReadyHook,
		Budgets: Budgets{
			StepBudget:    msOr(cfg.StepBudgetMs, 30*time.Second),
			ActionTimeout: msOr(cfg.ActionTimeoutMs, 10*time.Second),
		},
	}
	switch kind {
	case Dynamic:
		p.Budgets.NetworkIdle = msOr(cfg.DynamicIdleMs, 5*time.Second)
		p.Budgets.SettleDelay = msOr(cfg.SettleDelayMs, 1500*time.Millisecond)
		p.Budgets.DriftThreshold = pctOr(cfg.DynamicDriftPercent, 0.72)
	default:
		p.Budgets.NetworkIdle = msOr(cfg.StaticIdleMs, 2*time.Second)
		p.Budgets.DriftThreshold = pctOr(cfg.StaticDriftPercent, 0.35)
	}

	if host := hostOf(rawURL); host != "" && cfg.SuccessTokens != nil {
		p.SuccessToken = cfg.SuccessTokens[host]
	}

	logging.Get(logging.CategoryProfile).Info("[PROFILE] %s -> %s (idle=%v settle=%v drift=%.0f%%)",
		rawURL, kind, p.Budgets.NetworkIdle, p.Budgets.SettleDelay, p.Budgets.DriftThreshold*100)
	return p
}

func classify(cfg config.ProfilesConfig, rawURL, htmlPrefix, override string) Kind {
	switch strings.ToUpper(strings.TrimSpace(override)) {
	case string(Static):
		return Static
	case string(Dynamic):
		return Dynamic
	}

	host := hostOf(rawURL)
	for _, h := range cfg.DynamicHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return Dynamic
		}
	}
	// Lightning / app-builder hosts are dynamic regardless of HTML.
	if strings.Contains(host, "lightning.force.com") || strings.Contains(host, "salesforce.com") {
		return Dynamic
	}

	lower := strings.ToLower(htmlPrefix)
	for _, sig := range spaSignatures {
		if strings.Contains(lower, strings.ToLower(sig)) {
			return Dynamic
		}
	}
	if len(htmlPrefix) > htmlSizeThreshold {
		return Dynamic
	}
	return Static
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func msOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func pctOr(pct int, fallback float64) float64 {
	if pct <= 0 || pct > 100 {
		return fallback
	}
	return float64(pct) / 100
}
