package memory

import (
	"time"

	"github.com/oklog/ulid/v2"

	"pacts/internal/types"
)

// RedactedValue replaces secret step values everywhere they would be
// persisted or logged.
const RedactedValue = "[REDACTED]"

// RedactSteps returns a copy of the step results with secret values
// masked. The originals stay untouched; the executor still needs them.
func RedactSteps(steps []types.StepResult) []types.StepResult {
	out := make([]types.StepResult, len(steps))
	copy(out, steps)
	for i := range out {
		if out[i].Intent.Secret {
			out[i].Intent.Value = RedactedValue
		}
	}
	return out
}

// NewRunRecord summarizes a finished run under a fresh ULID.
func NewRunRecord(state *types.RunState, finishedAt time.Time) types.RunRecord {
	return types.RunRecord{
		ID:            ulid.Make().String(),
		ReqID:         state.ReqID,
		StartedAt:     state.StartedAt,
		FinishedAt:    finishedAt,
		Verdict:       state.Verdict,
		RCAClass:      state.RCA.Class,
		RCAConfidence: state.RCA.Confidence,
		HealRounds:    state.HealRound,
		PlanHash:      state.PlanHash,
		Duration:      finishedAt.Sub(state.StartedAt),
	}
}

// PersistRun redacts, then writes the run summary, its steps, and any
// artifacts in one pass.
func PersistRun(store *Store, state *types.RunState, artifacts []types.Artifact) (types.RunRecord, error) {
	rec := NewRunRecord(state, time.Now().UTC())
	steps := RedactSteps(state.ExecutedSteps)
	if err := store.SaveRun(rec, state.URL, state.DriftEvents, steps); err != nil {
		return rec, err
	}
	for _, a := range artifacts {
		a.RunID = rec.ID
		if err := store.SaveArtifact(a); err != nil {
			return rec, err
		}
	}
	return rec, nil
}
