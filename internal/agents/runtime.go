// Package agents implements the six graph nodes: Planner, POMBuilder,
// Executor, OracleHealer, VerdictRCA, and Generator. Every node is a pure
// transition on the shared RunState; failures are routed through state
// fields, never raised across node boundaries.
package agents

import (
	"context"

	"pacts/internal/browser"
	"pacts/internal/config"
	"pacts/internal/discovery"
	"pacts/internal/gate"
	"pacts/internal/memory"
	"pacts/internal/profile"
	"pacts/internal/types"
)

// RunState context keys the nodes and the CLI agree on.
const (
	CtxSuiteSteps      = "suite_steps"       // []types.SuiteStep
	CtxDataRow         = "data_row"          // map[string]string
	CtxRawSteps        = "raw_steps"         // []string
	CtxSecretTokens    = "secret_tokens"     // map[string]bool
	CtxProfileOverride = "profile_override"  // "STATIC" | "DYNAMIC"
	CtxStorageState    = "storage_state"     // path to the saved state blob
	CtxNavigated       = "navigated"         // bool, set by POMBuilder
	CtxArtifactPath    = "artifact_path"     // set by Generator
	CtxUnresolvedData  = "unresolved_tokens" // bool, set by Planner
	CtxBlockReason     = "block_reason"      // captcha / anti-bot wall text
)

// Node is the uniform signature every graph node satisfies.
type Node func(ctx context.Context, s *types.RunState) *types.RunState

// Runtime carries the capability handles one run's nodes share. Nothing
// here is a process singleton; the orchestrator builds one Runtime per
// run so tests can hand in fakes.
type Runtime struct {
	Cfg    *config.Config
	Driver browser.Driver
	Cache  *memory.Cache
	Store  *memory.Store

	// Set by POMBuilder after first navigation.
	Profile  profile.Profile
	Engine   *discovery.Engine
	Gate     *gate.Gate
	Sentinel *gate.Sentinel

	// pageHash is the structural fingerprint of the current page, renewed
	// on navigation; drift checks compare cache snapshots against it.
	pageHash    string
	scopes      map[string]browser.Element
	failedTiers map[int]map[types.Strategy]bool
	artifacts   []types.Artifact
}

// NewRuntime builds the per-run capability bundle.
func NewRuntime(cfg *config.Config, driver browser.Driver, cache *memory.Cache, store *memory.Store) *Runtime {
	return &Runtime{
		Cfg:         cfg,
		Driver:      driver,
		Cache:       cache,
		Store:       store,
		Engine:      discovery.New(driver),
		scopes:      map[string]browser.Element{},
		failedTiers: map[int]map[types.Strategy]bool{},
	}
}

// Artifacts returns what the Generator produced for this run.
func (r *Runtime) Artifacts() []types.Artifact { return r.artifacts }

func (r *Runtime) markTierFailed(step int, strategy types.Strategy) {
	if r.failedTiers[step] == nil {
		r.failedTiers[step] = map[types.Strategy]bool{}
	}
	r.failedTiers[step][strategy] = true
}

func (r *Runtime) failedTiersFor(step int) map[types.Strategy]bool {
	return r.failedTiers[step]
}

// resolveScope resolves and memoizes a scope hint for this run.
func (r *Runtime) resolveScope(ctx context.Context, hint string, widen bool) (browser.Element, bool) {
	if hint == "" {
		return nil, false
	}
	if el, ok := r.scopes[hint]; ok {
		return el, el != nil
	}
	el, ok := discovery.ResolveScope(ctx, r.Driver, hint, widen)
	if ok {
		r.scopes[hint] = el
	}
	return el, ok
}

// invalidateScopes drops memoized containers; called after navigation and
// after heals that may have closed a panel.
func (r *Runtime) invalidateScopes() {
	r.scopes = map[string]browser.Element{}
}
