package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"pacts/internal/agents"
	"pacts/internal/browser"
	"pacts/internal/graph"
	"pacts/internal/memory"
	"pacts/internal/types"
)

var (
	flagURL       string
	flagProfile   string
	flagSecrets   []string
	flagSaveState bool
)

var runCmd = &cobra.Command{
	Use:   "run <requirements-file>",
	Short: "Execute a requirements file against a live browser",
	Long: `Run takes either a Suite JSON document or a plain requirements file.

Plain files carry the target URL on the first non-empty line followed by
one "target | action | value | outcome" step per line. Suite JSON expands
into one run per (testcase, data row) pair and requires --url.`,
	Args: cobra.ExactArgs(1),
	RunE: runRequirements,
}

func init() {
	runCmd.Flags().StringVar(&flagURL, "url", "", "target URL (required for Suite JSON input)")
	runCmd.Flags().StringVar(&flagProfile, "profile", "", "force page profile: STATIC or DYNAMIC")
	runCmd.Flags().StringSliceVar(&flagSecrets, "secret", nil, "data tokens to redact from logs, persistence, and generated scripts")
	runCmd.Flags().BoolVar(&flagSaveState, "save-state", false, "save cookies and web storage after a passing run for authenticated re-runs")
}

// runInput is one fully bound run: a target URL plus the context entries
// the Planner consumes.
type runInput struct {
	url  string
	ctx  map[string]any
	name string
}

func runRequirements(cmd *cobra.Command, args []string) error {
	inputs, err := loadInputs(args[0])
	if err != nil {
		return err
	}

	store, err := memory.OpenStore(cfg.Cache.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	cache := memory.NewCache(store, cfg.Cache)

	mgr := browser.NewManager(cfg.Browser)
	defer mgr.Shutdown()

	worst := types.VerdictPass
	for _, in := range inputs {
		verdict, err := executeOne(cmd.Context(), mgr, store, cache, in)
		if err != nil {
			return err
		}
		if severity(verdict) > severity(worst) {
			worst = verdict
		}
	}
	exitCode = codeFor(worst)
	return nil
}

func executeOne(ctx context.Context, mgr *browser.Manager, store *memory.Store, cache *memory.Cache, in runInput) (types.Verdict, error) {
	driver, err := mgr.NewRun(ctx)
	if err != nil {
		return types.VerdictError, fmt.Errorf("start browser run: %w", err)
	}
	defer driver.Close()

	state := types.NewRunState(ulid.Make().String(), in.url)
	cliLog.Infow("run starting", "req_id", state.ReqID, "input", in.name, "url", in.url)
	for k, v := range in.ctx {
		state.Context[k] = v
	}
	if flagProfile != "" {
		state.Context[agents.CtxProfileOverride] = strings.ToUpper(flagProfile)
	}
	if len(flagSecrets) > 0 {
		secrets, _ := state.Context[agents.CtxSecretTokens].(map[string]bool)
		if secrets == nil {
			secrets = map[string]bool{}
		}
		for _, name := range flagSecrets {
			secrets[name] = true
		}
		state.Context[agents.CtxSecretTokens] = secrets
	}
	if u, err := url.Parse(in.url); err == nil && u.Host != "" {
		statePath := browser.StatePathFor(cfg.Browser.StorageStateDir, u.Host)
		if _, err := os.Stat(statePath); err == nil {
			state.Context[agents.CtxStorageState] = statePath
		}
	}

	rt := agents.NewRuntime(&cfg, driver, cache, store)
	final := graph.New(rt).Run(ctx, state)

	if flagSaveState && (final.Verdict == types.VerdictPass || final.Verdict == types.VerdictHealed) {
		if u, err := url.Parse(in.url); err == nil && u.Host != "" {
			if err := os.MkdirAll(cfg.Browser.StorageStateDir, 0o755); err == nil {
				statePath := browser.StatePathFor(cfg.Browser.StorageStateDir, u.Host)
				if err := driver.SaveStorageState(ctx, statePath); err != nil {
					fmt.Fprintf(os.Stderr, "pacts: save storage state: %v\n", err)
				}
			}
		}
	}

	if _, err := memory.PersistRun(store, final, rt.Artifacts()); err != nil {
		fmt.Fprintf(os.Stderr, "pacts: persist run %s: %v\n", final.ReqID, err)
	}
	cliLog.Infow("run finished", "req_id", final.ReqID, "verdict", string(final.Verdict),
		"steps", len(final.ExecutedSteps), "heal_rounds", final.HealRound)
	printSummary(in, final, rt.Artifacts())
	return final.Verdict, nil
}

// loadInputs parses the requirements file into one or more bound runs.
// The file is either a bare Suite JSON document (target from --url), or
// plain text: the target URL on the first non-empty line followed by a
// Suite JSON block or legacy step lines.
func loadInputs(path string) ([]runInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("%s: empty requirements file", path)
	}

	if strings.HasPrefix(trimmed, "{") {
		if flagURL == "" {
			return nil, fmt.Errorf("suite JSON input requires --url")
		}
		return suiteInputs(path, flagURL, []byte(trimmed))
	}

	target, rest, _ := strings.Cut(trimmed, "\n")
	target = strings.TrimSpace(target)
	if flagURL != "" {
		target = flagURL
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "{") {
		return suiteInputs(path, target, []byte(rest))
	}

	var lines []string
	for _, line := range strings.Split(rest, "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: no steps after the target URL", path)
	}
	return []runInput{{
		url:  target,
		ctx:  map[string]any{agents.CtxRawSteps: lines},
		name: path,
	}}, nil
}

// suiteInputs expands a Suite JSON document into one run per testcase and
// data row.
func suiteInputs(path, target string, raw []byte) ([]runInput, error) {
	suite, err := agents.ParseSuite(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var inputs []runInput
	for _, rc := range agents.ExpandSuite(suite) {
		name := fmt.Sprintf("%v", rc["case_id"])
		if idx, ok := rc["row_idx"].(int); ok && idx > 0 {
			name = fmt.Sprintf("%s[%d]", name, idx)
		}
		inputs = append(inputs, runInput{url: target, ctx: rc, name: name})
	}
	return inputs, nil
}

func printSummary(in runInput, s *types.RunState, artifacts []types.Artifact) {
	fmt.Printf("%s  %s  verdict=%s", in.name, s.ReqID, s.Verdict)
	if s.RCA.Class != "" {
		fmt.Printf("  rca=%s(%.2f)", s.RCA.Class, s.RCA.Confidence)
	}
	fmt.Printf("  steps=%d/%d", len(s.ExecutedSteps), len(s.Plan))
	if len(s.HealEvents) > 0 {
		healed := 0
		for _, ev := range s.HealEvents {
			if ev.Success {
				healed++
			}
		}
		fmt.Printf("  heals=%d/%d", healed, len(s.HealEvents))
	}
	fmt.Println()
	if s.RCA.Notes != "" {
		fmt.Printf("  %s\n", s.RCA.Notes)
	}
	for _, art := range artifacts {
		fmt.Printf("  %s: %s\n", art.Kind, art.Path)
	}
}

func severity(v types.Verdict) int {
	switch v {
	case types.VerdictPass, types.VerdictHealed:
		return 0
	case types.VerdictFail, types.VerdictBlocked:
		return 1
	default:
		return 2
	}
}

func codeFor(v types.Verdict) int {
	return severity(v)
}
