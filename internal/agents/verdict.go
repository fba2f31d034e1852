package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"pacts/internal/logging"
	"pacts/internal/types"
)

// VerdictRCA classifies the finished run and attributes a root cause.
// Verdicts are final: once set, no node transitions further except the
// Generator for pass/healed.
func (r *Runtime) VerdictRCA(ctx context.Context, s *types.RunState) *types.RunState {
	log := logging.Get(logging.CategoryVerdict)

	switch {
	case s.Terminal():
		// Planner or POMBuilder already declared an error with its RCA.
	case s.DriverFault:
		s.Verdict = types.VerdictError
		s.RCA = types.RCA{Class: types.RCAEnvFault, Confidence: 0.9, Notes: "browser driver fault"}
	case s.CtxString(CtxBlockReason) != "":
		s.Verdict = types.VerdictBlocked
		s.RCA = types.RCA{Class: types.RCAUIBlocked, Confidence: 0.85, Notes: s.CtxString(CtxBlockReason)}
	case s.Done():
		if s.Healed() {
			s.Verdict = types.VerdictHealed
			s.RCA = types.RCA{
				Class:      types.RCASelectorDrift,
				Confidence: 0.8,
				Notes:      fmt.Sprintf("%d heal event(s) during the run", len(s.HealEvents)),
			}
		} else {
			s.Verdict = types.VerdictPass
		}
	default:
		s.Verdict = types.VerdictFail
		s.RCA = r.classify(s)
	}

	if s.Verdict != types.VerdictPass && s.Verdict != types.VerdictHealed {
		r.captureFailureScreenshot(ctx, s)
	}

	log.Info("[VERDICT] req=%s %s rca=%s conf=%.2f steps=%d/%d heals=%d drift=%d",
		s.ReqID, s.Verdict, s.RCA.Class, s.RCA.Confidence,
		len(s.ExecutedSteps), len(s.Plan), len(s.HealEvents), s.DriftEvents)
	return s
}

// classify maps the failure evidence to one RCA class. Rules are ordered
// by specificity; the first matching rule wins.
func (r *Runtime) classify(s *types.RunState) types.RCA {
	failedStep := ""
	if s.StepIdx < len(s.Plan) {
		failedStep = fmt.Sprintf("step %d (%s %q)", s.StepIdx+1,
			s.Plan[s.StepIdx].Action, s.Plan[s.StepIdx].ElementName)
	}

	switch {
	case s.DriftEvents > 0:
		return types.RCA{
			Class:      types.RCASelectorDrift,
			Confidence: 0.9,
			Notes:      fmt.Sprintf("%d drift eviction(s) before %s failed with %s", s.DriftEvents, failedStep, s.Failure),
		}
	case s.SentinelFired:
		return types.RCA{
			Class:      types.RCAUIBlocked,
			Confidence: 0.85,
			Notes:      "error dialog interrupted " + failedStep,
		}
	case s.Failure == types.FailureAssertion:
		return types.RCA{
			Class:      types.RCAAssertionMismatch,
			Confidence: 0.8,
			Notes:      "declared outcome not observed at " + failedStep,
		}
	case s.Context[CtxUnresolvedData] == true:
		return types.RCA{
			Class:      types.RCADataIssue,
			Confidence: 0.7,
			Notes:      "unresolved data tokens in the plan; " + failedStep + " failed with " + string(s.Failure),
		}
	case s.Failure == types.FailureDiscoveryMissing:
		return types.RCA{
			Class:      types.RCADiscoveryExhausted,
			Confidence: 0.8,
			Notes:      "no tier produced a selector for " + failedStep,
		}
	case s.Failure.Transient() || s.Failure == types.FailureNotVisible:
		return types.RCA{
			Class:      types.RCATimingInstability,
			Confidence: 0.6,
			Notes:      failedStep + " failed with " + string(s.Failure),
		}
	default:
		return types.RCA{
			Class:      types.RCAUnknown,
			Confidence: 0.5,
			Notes:      failedStep + " failed with " + string(s.Failure),
		}
	}
}

// captureFailureScreenshot saves the terminal page state for triage.
func (r *Runtime) captureFailureScreenshot(ctx context.Context, s *types.RunState) {
	dir := r.Cfg.Cache.ArtifactsDir
	if dir == "" || r.Driver == nil {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	path := filepath.Join(dir, s.ReqID+"_failure.png")
	if err := r.Driver.Screenshot(ctx, path); err != nil {
		logging.Get(logging.CategoryBrowser).Debug("failure screenshot: %v", err)
		return
	}
	r.artifacts = append(r.artifacts, types.Artifact{
		ID:   uuid.NewString(),
		Kind: "screenshot",
		Path: path,
		Hash: hashFile(path),
	})
}

func hashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}
