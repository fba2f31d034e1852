package types

import (
	"fmt"
	"time"
)

// FailureKind names the reason the executor yielded control.
type FailureKind string

const (
	FailureNone             FailureKind = "none"
	FailureNotUnique        FailureKind = "not_unique"
	FailureNotVisible       FailureKind = "not_visible"
	FailureDisabled         FailureKind = "disabled"
	FailureUnstable         FailureKind = "unstable"
	FailureNotScoped        FailureKind = "not_scoped"
	FailureTimeout          FailureKind = "timeout"
	FailureDiscoveryMissing FailureKind = "discovery_missing"
	FailureAssertion        FailureKind = "assertion_fail"
)

// Transient reports whether the failure is worth a same-selector retry
// before yielding to the healer.
func (f FailureKind) Transient() bool {
	return f == FailureTimeout || f == FailureUnstable
}

// Verdict classifies a completed run.
type Verdict string

const (
	VerdictNone    Verdict = "none"
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictHealed  Verdict = "healed"
	VerdictBlocked Verdict = "blocked"
	VerdictError   Verdict = "error"
)

// RCAClass is the root-cause taxonomy; one class per run.
type RCAClass string

const (
	RCASelectorDrift       RCAClass = "selector_drift"
	RCATimingInstability   RCAClass = "timing_instability"
	RCAAssertionMismatch   RCAClass = "assertion_mismatch"
	RCADataIssue           RCAClass = "data_issue"
	RCAEnvFault            RCAClass = "env_fault"
	RCADiscoveryExhausted  RCAClass = "discovery_exhausted"
	RCAUIBlocked           RCAClass = "ui_blocked"
	RCAUnknown             RCAClass = "unknown"
)

// RCA is the root-cause attribution set by VerdictRCA.
type RCA struct {
	Class      RCAClass `json:"class"`
	Confidence float64  `json:"confidence"`
	Notes      string   `json:"notes,omitempty"`
}

// StepResult is one entry of the append-only execution log.
type StepResult struct {
	Intent   Intent      `json:"intent"`
	Selector string      `json:"selector"`
	Strategy Strategy    `json:"strategy"`
	Ordinal  int         `json:"ordinal,omitempty"` // positional index for ordinal/role strategies
	Pattern  string      `json:"pattern,omitempty"`
	Ms       int64       `json:"ms"`
	Outcome  string      `json:"outcome"` // "ok" or the failure kind
	Failure  FailureKind `json:"failure,omitempty"`
}

// HealEvent is one entry of the append-only healing log.
type HealEvent struct {
	Round          int      `json:"round"`
	SelectorBefore string   `json:"selector_before"`
	SelectorAfter  string   `json:"selector_after"`
	Strategy       Strategy `json:"strategy"`
	Success        bool     `json:"success"`
	Reason         string   `json:"reason,omitempty"`
}

// RunState is the single shared state threaded through the agent graph.
// Nodes consume and return it; routers inspect it to pick the next node.
type RunState struct {
	ReqID string `json:"req_id"`
	URL   string `json:"url"`

	Plan     Plan   `json:"plan"`    // frozen after Planner
	Intents  Plan   `json:"intents"` // working copy POMBuilder walks
	PlanHash string `json:"plan_hash"`

	Discovered []SelectorRecord `json:"discovered"` // one per intent

	StepIdx   int         `json:"step_idx"`
	HealRound int         `json:"heal_round"`
	Failure   FailureKind `json:"failure"`

	ExecutedSteps []StepResult `json:"executed_steps"`
	HealEvents    []HealEvent  `json:"heal_events"`
	DriftEvents   int          `json:"drift_events"`
	SentinelFired bool         `json:"sentinel_fired"`
	DriverFault   bool         `json:"driver_fault"`

	Verdict Verdict `json:"verdict"`
	RCA     RCA     `json:"rca"`

	StartedAt time.Time `json:"started_at"`

	// Context is the extension scratchpad: storage-state path, custom
	// readiness hook name, profile override, success-token selectors.
	Context map[string]any `json:"context,omitempty"`
}

// NewRunState seeds a run for the given correlation key and target URL.
func NewRunState(reqID, url string) *RunState {
	return &RunState{
		ReqID:     reqID,
		URL:       url,
		Failure:   FailureNone,
		Verdict:   VerdictNone,
		StartedAt: time.Now(),
		Context:   make(map[string]any),
	}
}

// Terminal reports whether a verdict has been set; once true, no further
// executor or healer transitions may occur.
func (s *RunState) Terminal() bool { return s.Verdict != VerdictNone }

// Done reports whether every plan step has executed successfully.
func (s *RunState) Done() bool {
	return len(s.Plan) > 0 && s.StepIdx >= len(s.Plan)
}

// Healed reports whether any heal cycle succeeded during the run.
func (s *RunState) Healed() bool {
	for _, e := range s.HealEvents {
		if e.Success {
			return true
		}
	}
	return false
}

// RecordFor returns the discovered selector record for step idx.
func (s *RunState) RecordFor(idx int) (SelectorRecord, bool) {
	if idx < 0 || idx >= len(s.Discovered) {
		return SelectorRecord{}, false
	}
	return s.Discovered[idx], true
}

// ReplaceRecord swaps the selector record for step idx (healer commit).
func (s *RunState) ReplaceRecord(idx int, rec SelectorRecord) {
	if idx >= 0 && idx < len(s.Discovered) {
		s.Discovered[idx] = rec
	}
}

// CtxString reads a string value from the context scratchpad.
func (s *RunState) CtxString(key string) string {
	if v, ok := s.Context[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// CheckInvariants verifies the structural invariants every run must hold.
// Used by tests and by the graph runner in debug mode.
func (s *RunState) CheckInvariants(maxHealRounds int) error {
	if len(s.ExecutedSteps) > len(s.Plan) {
		return fmt.Errorf("executed_steps (%d) exceeds plan length (%d)",
			len(s.ExecutedSteps), len(s.Plan))
	}
	if s.HealRound > maxHealRounds {
		return fmt.Errorf("heal_round %d exceeds budget %d", s.HealRound, maxHealRounds)
	}
	if s.Verdict == VerdictPass || s.Verdict == VerdictHealed {
		if len(s.ExecutedSteps) != len(s.Plan) {
			return fmt.Errorf("verdict %s with %d/%d steps executed",
				s.Verdict, len(s.ExecutedSteps), len(s.Plan))
		}
	}
	if s.Verdict == VerdictPass && s.Healed() {
		return fmt.Errorf("verdict pass with a successful heal event")
	}
	return nil
}
