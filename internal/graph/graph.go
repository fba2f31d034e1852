// Package graph wires the six agents into the orchestration state
// machine: Planner -> POMBuilder -> Executor <-> OracleHealer ->
// VerdictRCA -> Generator. Nodes transform the RunState; routers inspect
// it to pick the next node. The graph is built once per run and never
// mutates mid-flight.
package graph

import (
	"context"
	"time"

	"pacts/internal/agents"
	"pacts/internal/logging"
	"pacts/internal/types"
)

// NodeID names a vertex of the agent graph.
type NodeID string

const (
	NodePlanner    NodeID = "planner"
	NodePOMBuilder NodeID = "pombuilder"
	NodeExecutor   NodeID = "executor"
	NodeHealer     NodeID = "oracle_healer"
	NodeVerdict    NodeID = "verdict_rca"
	NodeGenerator  NodeID = "generator"
	NodeEnd        NodeID = "end"
)

// Router picks the next node from the state one node just returned.
type Router func(s *types.RunState) NodeID

// Graph is the compiled agent topology for one run.
type Graph struct {
	rt      *agents.Runtime
	nodes   map[NodeID]agents.Node
	routers map[NodeID]Router
}

// New compiles the graph over a run's capability bundle.
func New(rt *agents.Runtime) *Graph {
	g := &Graph{rt: rt}
	maxRounds := rt.Cfg.Healing.MaxRounds

	g.nodes = map[NodeID]agents.Node{
		NodePlanner:    rt.Planner,
		NodePOMBuilder: rt.POMBuilder,
		NodeExecutor:   rt.Executor,
		NodeHealer:     rt.OracleHealer,
		NodeVerdict:    rt.VerdictRCA,
		NodeGenerator:  rt.Generator,
	}
	g.routers = map[NodeID]Router{
		NodePlanner: func(s *types.RunState) NodeID {
			if s.Terminal() {
				return NodeVerdict
			}
			return NodePOMBuilder
		},
		NodePOMBuilder: func(s *types.RunState) NodeID {
			if s.Terminal() {
				return NodeVerdict
			}
			if s.Failure != types.FailureNone {
				return NodeHealer
			}
			return NodeExecutor
		},
		NodeExecutor: func(s *types.RunState) NodeID {
			if s.Terminal() || s.Done() {
				return NodeVerdict
			}
			if s.Failure != types.FailureNone {
				if s.HealRound >= maxRounds {
					return NodeVerdict
				}
				return NodeHealer
			}
			// Neither done nor failed: the run context expired mid-plan.
			return NodeVerdict
		},
		NodeHealer: func(s *types.RunState) NodeID {
			if s.Terminal() {
				return NodeVerdict
			}
			if s.Failure == types.FailureNone {
				return NodeExecutor
			}
			if s.HealRound >= maxRounds {
				return NodeVerdict
			}
			return NodeHealer
		},
		NodeVerdict: func(s *types.RunState) NodeID {
			if s.Verdict == types.VerdictPass || s.Verdict == types.VerdictHealed {
				return NodeGenerator
			}
			return NodeEnd
		},
		NodeGenerator: func(s *types.RunState) NodeID {
			return NodeEnd
		},
	}
	return g
}

// Run drives the state machine to the end node. After planning, the
// remaining nodes execute under a run-level deadline derived from the
// plan length; exceeding it forces verdict=error rather than hanging.
func (g *Graph) Run(ctx context.Context, s *types.RunState) *types.RunState {
	log := logging.Get(logging.CategoryBoot)
	cancel := context.CancelFunc(func() {})
	defer func() { cancel() }()

	cur := NodePlanner
	for cur != NodeEnd {
		if ctx.Err() != nil && !s.Terminal() {
			s.Verdict = types.VerdictError
			s.RCA = types.RCA{
				Class:      types.RCAEnvFault,
				Confidence: 0.9,
				Notes:      "run budget exceeded at node " + string(cur),
			}
			cur = NodeVerdict
		}

		log.Debug("req=%s node=%s step=%d failure=%s", s.ReqID, cur, s.StepIdx, s.Failure)
		s = g.nodes[cur](ctx, s)

		if cur == NodePlanner && !s.Terminal() {
			budgetCtx, budgetCancel := context.WithTimeout(ctx, g.runBudget(len(s.Plan)))
			ctx, cancel = budgetCtx, budgetCancel
		}
		if g.rt.Cfg.Logging.DebugMode {
			if err := s.CheckInvariants(g.rt.Cfg.Healing.MaxRounds); err != nil {
				log.Error("req=%s invariant violated after %s: %v", s.ReqID, cur, err)
			}
		}
		cur = g.routers[cur](s)
	}
	return s
}

// runBudget caps the whole run at plan length times the per-step budget,
// never below 30 seconds.
func (g *Graph) runBudget(planLen int) time.Duration {
	step := time.Duration(g.rt.Cfg.Profiles.StepBudgetMs) * time.Millisecond
	if step <= 0 {
		step = 30 * time.Second
	}
	budget := time.Duration(planLen) * step
	if budget < 30*time.Second {
		budget = 30 * time.Second
	}
	return budget
}
