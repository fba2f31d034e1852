package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"pacts/internal/logging"
	"pacts/internal/types"
)

// Generator renders a standalone replay script from a pass/healed run.
// The script uses the last-known-good selector for every step, so a run
// that healed emits the selectors that actually worked, not the ones
// that failed.
func (r *Runtime) Generator(ctx context.Context, s *types.RunState) *types.RunState {
	log := logging.Get(logging.CategoryResult)
	if s.Verdict != types.VerdictPass && s.Verdict != types.VerdictHealed {
		return s
	}

	src := renderReplay(s)
	dir := r.Cfg.Cache.ArtifactsDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error("artifact dir: %v", err)
		return s
	}
	path := filepath.Join(dir, s.ReqID+"_replay.go")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		log.Error("write replay script: %v", err)
		return s
	}

	r.artifacts = append(r.artifacts, types.Artifact{
		ID:   uuid.NewString(),
		Kind: "test_source",
		Path: path,
		Hash: hashFile(path),
	})
	s.Context[CtxArtifactPath] = path
	log.Info("[RESULT] req=%s replay script %s (%d steps)", s.ReqID, path, len(s.ExecutedSteps))
	return s
}

// replayKeys maps the key names the executor presses to rod input keys.
var replayKeys = map[string]string{
	"Enter":  "input.Enter",
	"Escape": "input.Escape",
	"Tab":    "input.Tab",
}

var envNameRe = regexp.MustCompile(`[^A-Z0-9]+`)

// renderReplay emits a self-contained rod program replaying the run.
func renderReplay(s *types.RunState) string {
	var b strings.Builder
	needsInput := false
	needsEnv := false
	for _, step := range s.ExecutedSteps {
		if step.Intent.Action == types.ActionPress {
			if _, ok := replayKeys[step.Intent.Value]; ok {
				needsInput = true
			}
		}
		if step.Intent.Secret {
			needsEnv = true
		}
	}

	fmt.Fprintf(&b, "// Replay of run %s (plan %s).\n", s.ReqID, shortHash(s.PlanHash))
	b.WriteString("// Generated by pacts; selectors are the last known good for each step.\n")
	b.WriteString("package main\n\nimport (\n\t\"fmt\"\n")
	if needsEnv {
		b.WriteString("\t\"os\"\n")
	}
	b.WriteString("\n\t\"github.com/go-rod/rod\"\n")
	if needsInput {
		b.WriteString("\t\"github.com/go-rod/rod/lib/input\"\n")
	}
	b.WriteString(")\n\nfunc main() {\n")
	fmt.Fprintf(&b, "\tpage := rod.New().MustConnect().MustPage(%q)\n", s.URL)
	b.WriteString("\tpage.MustWaitLoad()\n")

	for i, step := range s.ExecutedSteps {
		in := step.Intent
		fmt.Fprintf(&b, "\n\t// Step %d: %s %q\n", i+1, in.Action, in.ElementName)
		renderStep(&b, step)
	}

	b.WriteString("\n\tfmt.Println(\"replay complete\")\n")
	b.WriteString("}\n")
	return b.String()
}

func renderStep(b *strings.Builder, step types.StepResult) {
	in := step.Intent
	elExpr := fmt.Sprintf("page.MustElement(%q)", step.Selector)
	if step.Strategy == types.StrategyOrdinal || step.Strategy == types.StrategyRole {
		elExpr = fmt.Sprintf("page.MustElements(%q)[%d]", step.Selector, step.Ordinal)
	}

	switch in.Action {
	case types.ActionNavigate:
		target := in.Value
		if target == "" {
			target = in.ElementName
		}
		fmt.Fprintf(b, "\tpage.MustNavigate(%q).MustWaitLoad()\n", target)
	case types.ActionWait:
		// Outcome assertion only; handled below.
	case types.ActionClick, types.ActionCheck, types.ActionUncheck:
		fmt.Fprintf(b, "\t%s.MustClick()\n", elExpr)
	case types.ActionFill, types.ActionType:
		fmt.Fprintf(b, "\t%s.MustSelectAllText().MustInput(%s)\n", elExpr, valueExpr(in))
	case types.ActionPress:
		if key, ok := replayKeys[in.Value]; ok {
			fmt.Fprintf(b, "\t%s.MustType(%s)\n", elExpr, key)
		} else {
			fmt.Fprintf(b, "\t%s.MustType()\n", elExpr)
		}
	case types.ActionSelect:
		fmt.Fprintf(b, "\t%s.MustSelect(%q)\n", elExpr, in.Value)
	case types.ActionHover:
		fmt.Fprintf(b, "\t%s.MustHover()\n", elExpr)
	case types.ActionFocus:
		fmt.Fprintf(b, "\t%s.MustFocus()\n", elExpr)
	}

	if token, ok := in.NavigatesTo(); ok {
		fmt.Fprintf(b, "\tpage.MustElementR(\"body\", %q)\n", regexp.QuoteMeta(token))
	} else if token, ok := in.PageContainsText(); ok {
		fmt.Fprintf(b, "\tpage.MustElementR(\"body\", %q)\n", regexp.QuoteMeta(token))
	}
}

// valueExpr keeps secrets out of generated sources: a secret-bound value
// renders as an environment lookup, never as a literal.
func valueExpr(in types.Intent) string {
	if in.Secret {
		name := envNameRe.ReplaceAllString(strings.ToUpper(in.ElementName), "_")
		return fmt.Sprintf("os.Getenv(%q)", "PACTS_SECRET_"+strings.Trim(name, "_"))
	}
	return fmt.Sprintf("%q", in.Value)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
