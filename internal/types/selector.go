package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Strategy names the discovery tier that produced a selector.
type Strategy string

const (
	StrategyAriaLabel       Strategy = "aria-label"
	StrategyAriaPlaceholder Strategy = "aria-placeholder"
	StrategyNameAttr        Strategy = "name"
	StrategyPlaceholder     Strategy = "placeholder"
	StrategyLabelFor        Strategy = "label-for"
	StrategyRole            Strategy = "role"
	StrategyDataTest        Strategy = "data-test"
	StrategyIDClass         Strategy = "id-class"
	StrategyOrdinal         Strategy = "ordinal"
	StrategyCached          Strategy = "cached"
)

// AllTiers is the waterfall order of the eight discovery tiers. The ordinal
// tier sits outside this list: it preempts the walk when the intent carries
// an ordinal.
var AllTiers = []Strategy{
	StrategyAriaLabel,
	StrategyAriaPlaceholder,
	StrategyNameAttr,
	StrategyPlaceholder,
	StrategyLabelFor,
	StrategyRole,
	StrategyDataTest,
	StrategyIDClass,
}

// SelectorMeta carries discovery diagnostics alongside the selector.
type SelectorMeta struct {
	Tier          int    `json:"tier"`
	DomHashPrefix string `json:"dom_hash_prefix,omitempty"`
	MatchedText   string `json:"matched_text,omitempty"`
	Ordinal       int    `json:"ordinal,omitempty"`
	Role          string `json:"role,omitempty"`
	FromCache     bool   `json:"from_cache,omitempty"`
}

// SelectorRecord is the output of discovery for one intent.
type SelectorRecord struct {
	Selector string       `json:"selector"`
	Score    float64      `json:"score"`
	Strategy Strategy     `json:"strategy"`
	Stable   bool         `json:"stable"`
	Meta     SelectorMeta `json:"meta"`
}

// Zero reports whether the record is empty (discovery failure).
func (r SelectorRecord) Zero() bool { return r.Selector == "" }

// CacheKey identifies a cached selector: URL pattern + element + action.
type CacheKey struct {
	URLPattern  string `json:"url_pattern"`
	ElementName string `json:"element_name"`
	Action      Action `json:"action"`
}

// String renders the key in its storage form.
func (k CacheKey) String() string {
	return k.URLPattern + "|" + k.ElementName + "|" + string(k.Action)
}

// NewCacheKey normalizes a raw URL and element name into a cache key. The
// pattern strips query and fragment and keeps host plus at most the first
// two path segments; the element name is lowercased.
func NewCacheKey(rawURL, elementName string, action Action) CacheKey {
	return CacheKey{
		URLPattern:  NormalizeURLPattern(rawURL),
		ElementName: strings.ToLower(strings.TrimSpace(elementName)),
		Action:      action,
	}
}

// NormalizeURLPattern reduces a URL to host + leading path segments so that
// cache entries survive query/fragment churn and deep-link variation.
func NormalizeURLPattern(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) > 2 {
		segs = segs[:2]
	}
	path := strings.Join(segs, "/")
	if path != "" {
		return strings.ToLower(u.Host) + "/" + path
	}
	return strings.ToLower(u.Host)
}

// CacheEntry is the durable form of an admitted selector. Only stable
// records are admitted.
type CacheEntry struct {
	Key             CacheKey  `json:"key"`
	Selector        string    `json:"selector"`
	Strategy        Strategy  `json:"strategy"`
	Score           float64   `json:"score"`
	Stable          bool      `json:"stable"`
	Epoch           int       `json:"epoch"`
	CreatedAt       time.Time `json:"created_at"`
	LastOkAt        time.Time `json:"last_ok_at"`
	HitCount        int64     `json:"hit_count"`
	MissCount       int64     `json:"miss_count"`
	DomHashSnapshot string    `json:"dom_hash_snapshot"`
}

// LedgerEntry is one strategy-outcome row of the heal-history ledger.
type LedgerEntry struct {
	URLPattern   string    `json:"url_pattern"`
	ElementName  string    `json:"element_name"`
	Strategy     Strategy  `json:"strategy"`
	SuccessCount int64     `json:"success_count"`
	FailureCount int64     `json:"failure_count"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// Rate is the smoothed success rate used for strategy ranking.
func (e LedgerEntry) Rate() float64 {
	return float64(e.SuccessCount) / float64(e.SuccessCount+e.FailureCount+1)
}

// RunRecord is the durable summary of one completed run.
type RunRecord struct {
	ID            string        `json:"id"` // ULID
	ReqID         string        `json:"req_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Verdict       Verdict       `json:"verdict"`
	RCAClass      RCAClass      `json:"rca_class"`
	RCAConfidence float64       `json:"rca_confidence"`
	HealRounds    int           `json:"heal_rounds"`
	PlanHash      string        `json:"plan_hash"`
	Duration      time.Duration `json:"duration_ms"`
}

/// Artifact is a persisted run by-product: screenshot or generated test.
type Artifact struct {
	ID    string `json:"id"` // UUID
	RunID string `json:"run_id"`
	Kind  string `json:"kind"` // screenshot | test_source
	Path  string `json:"path"`
	Hash  string `json:"hash"`
}

// ParseCacheKey parses the storage form produced by CacheKey.String.
func ParseCacheKey(s string) (CacheKey, error) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 {
		return CacheKey{}, fmt.Errorf("malformed cache key: %q", s)
	}
	return CacheKey{URLPattern: parts[0], ElementName: parts[1], Action: Action(parts[2])}, nil
}
