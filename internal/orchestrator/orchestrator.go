// Package orchestrator implements the run driver (C5, spec.md §4.6): it
// turns a flowgraph plus a configuration store into a set of concurrent
// per-node tasks, fanning workers out level by level exactly as the
// teacher's internal/engine.Execute fans out independent steps, except
// that a "level" here is a flowgraph depth rather than a dependency-plan
// level and the only channel between workers is the on-disk manifest
// plus internal/tasksync's shared active/error maps.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/sc/internal/builtins"
	"github.com/alexisbeaulieu97/sc/internal/flowgraph"
	"github.com/alexisbeaulieu97/sc/internal/logger"
	"github.com/alexisbeaulieu97/sc/internal/plugin"
	"github.com/alexisbeaulieu97/sc/internal/schema"
	"github.com/alexisbeaulieu97/sc/internal/task"
	"github.com/alexisbeaulieu97/sc/internal/tasksync"
	"github.com/alexisbeaulieu97/sc/pkg/scerrors"
)

// Config describes one run of a flowgraph against a configuration store.
type Config struct {
	Flow     *flowgraph.Flow
	Store    *schema.Store
	Registry *plugin.Registry
	Log      *logger.Logger

	Design   string
	JobName  string
	BuildDir string

	Quiet     bool
	Timeout   time.Duration
	Track     bool
	HashCheck bool
	VerCheck  bool
	Clean     bool
	SCVersion string
}

// BuildSingleToolFlow constructs the two-node flow ("import" -> step bound
// to nop, then step bound to tool) the orchestrator assembles automatically
// when a run names a single tool instead of a full flowgraph (spec.md §4.6
// "Auto flow construction").
func BuildSingleToolFlow(name, tool string) *flowgraph.Flow {
	f := flowgraph.New(name)
	importNode := flowgraph.Node{Step: "import", Index: "0", Kind: flowgraph.KindBuiltin, Builtin: "nop"}
	toolNode := flowgraph.Node{Step: tool, Index: "0", Kind: flowgraph.KindTool, Tool: tool}
	_ = f.AddNode(importNode)
	_ = f.AddNode(toolNode)
	_ = f.AddEdge(importNode, toolNode)
	return f
}

var jobNameSuffix = regexp.MustCompile(`^(.*?)(\d+)$`)

// NextJobName scans buildDir/design for sibling directories matching
// base<N> and returns base<N+1>, the auto-increment behaviour spec.md §4.6
// uses when a caller doesn't pin an explicit jobname.
func NextJobName(buildDir, design, base string) string {
	designDir := filepath.Join(buildDir, design)
	entries, err := os.ReadDir(designDir)
	if err != nil {
		return base + "0"
	}
	maxN := -1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := jobNameSuffix.FindStringSubmatch(e.Name())
		if m == nil || m[1] != base {
			continue
		}
		if n, convErr := strconv.Atoi(m[2]); convErr == nil && n > maxN {
			maxN = n
		}
	}
	return fmt.Sprintf("%s%d", base, maxN+1)
}

// Run executes every node of cfg.Flow to completion, level by level
// (longest-path-from-root depth, per flowgraph.ListSteps), returning the
// first task error encountered. Each tool-node worker operates on its own
// cloned *schema.Store; built-in nodes run against cfg.Store itself and
// write their flowstatus select entry there. Between workers, the shared
// tasksync.TaskState and the manifests on disk carry the state.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Flow == nil || cfg.Store == nil {
		return fmt.Errorf("orchestrator: flow and store are required")
	}

	jobDir := filepath.Join(cfg.BuildDir, cfg.Design, cfg.JobName)
	if cfg.Clean {
		if err := os.RemoveAll(jobDir); err != nil {
			return fmt.Errorf("orchestrator: clean stale job directory: %w", err)
		}
	}
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("orchestrator: create job directory: %w", err)
	}

	if err := cfg.Flow.CheckCycles(); err != nil {
		return err
	}

	if err := cfg.Store.DeclareRunDefaults(); err != nil {
		return fmt.Errorf("orchestrator: declare run defaults: %w", err)
	}

	levels, err := cfg.Flow.ListSteps()
	if err != nil {
		return err
	}

	state := tasksync.NewTaskState()
	for _, l := range levels {
		id := l.Node.ID()
		state.SetActive(id, true)
		state.SetError(id, true) // spec.md §4.6: seeded as failed until a task clears it on success.
	}

	if err := checkManifest(cfg); err != nil {
		return err
	}

	byDepth := make(map[int][]flowgraph.StepDepth)
	var depths []int
	for _, l := range levels {
		if _, seen := byDepth[l.Depth]; !seen {
			depths = append(depths, l.Depth)
		}
		byDepth[l.Depth] = append(byDepth[l.Depth], l)
	}
	sortInts(depths)

	var firstErr error
	var errMu sync.Mutex

	for _, d := range depths {
		var wg sync.WaitGroup
		for _, sd := range byDepth[d] {
			node := sd.Node
			wg.Add(1)
			go func(n flowgraph.Node) {
				defer wg.Done()
				if runErr := cfg.runNode(ctx, n, state); runErr != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = runErr
					}
					errMu.Unlock()
				}
			}(node)
		}
		wg.Wait()
		if firstErr != nil {
			break
		}
	}

	if reconcileErr := cfg.reconcile(levels); reconcileErr != nil && firstErr == nil {
		firstErr = reconcileErr
	}

	if err := cfg.snapshotHistory(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

func (cfg Config) upstreamRefs(n flowgraph.Node) []task.UpstreamRef {
	preds := cfg.Flow.Predecessors(n)
	refs := make([]task.UpstreamRef, 0, len(preds))
	for _, p := range preds {
		refs = append(refs, task.UpstreamRef{Step: p.Step, Index: p.Index})
	}
	return refs
}

func (cfg Config) runNode(ctx context.Context, n flowgraph.Node, state *tasksync.TaskState) error {
	switch n.Kind {
	case flowgraph.KindBuiltin:
		return cfg.runBuiltinNode(ctx, n, state)
	default:
		return cfg.runToolNode(ctx, n, state)
	}
}

func (cfg Config) runToolNode(ctx context.Context, n flowgraph.Node, state *tasksync.TaskState) error {
	adapter, err := cfg.Registry.Get(n.Tool)
	if err != nil {
		return scerrors.NewFlowgraphError(cfg.Flow.Name, n.ID(), err)
	}

	workerStore := cfg.Store.Clone()
	workerLog := cfg.Log.ForTask(n.Step, n.Index)
	workerStore.SetLogger(workerLog)

	if err := adapter.Setup(ctx, workerStore, n.Step, n.Index); err != nil {
		return scerrors.NewTaskError(n.Step, n.Index, fmt.Errorf("setup: %w", err))
	}

	runner := &task.Runner{
		Spec: task.Spec{
			Flow:      cfg.Flow.Name,
			Step:      n.Step,
			Index:     n.Index,
			Tool:      n.Tool,
			Design:    cfg.Design,
			JobName:   cfg.JobName,
			BuildDir:  cfg.BuildDir,
			Adapter:   adapter,
			Upstream:  cfg.upstreamRefs(n),
			Quiet:     cfg.Quiet,
			Timeout:   cfg.Timeout,
			Track:     cfg.Track,
			HashCheck: cfg.HashCheck,
			VerCheck:  cfg.VerCheck,
			SCVersion: cfg.SCVersion,
		},
		Store: workerStore,
		State: state,
		Log:   workerLog,
	}
	return runner.Run(ctx)
}

// runBuiltinNode evaluates a combinator node (join/nop/minimum/maximum/
// verify) directly against its predecessors' manifests, rather than
// spawning a subprocess-backed task.Runner: built-ins have no tool to
// execute, only upstream metrics to combine (spec.md §4.5).
func (cfg Config) runBuiltinNode(ctx context.Context, n flowgraph.Node, state *tasksync.TaskState) (err error) {
	id := n.ID()
	defer func() {
		if err != nil {
			state.SetError(id, true)
		} else {
			state.SetError(id, false)
		}
		state.SetActive(id, false)
	}()

	for _, up := range cfg.upstreamRefs(n) {
		upID := up.Step + up.Index
		for state.Active(upID) {
			time.Sleep(100 * time.Millisecond)
		}
	}

	wd := task.NewWorkDir(cfg.BuildDir, cfg.Design, cfg.JobName, n.Step, n.Index)
	if err = wd.Prepare(); err != nil {
		return scerrors.NewTaskError(n.Step, n.Index, err)
	}

	inputs, upstreamFailed := cfg.loadUpstreamMetrics(n, state)
	if n.Builtin != "verify" && upstreamFailed {
		failed := ""
		for _, u := range inputs {
			if u.Error {
				failed = u.ID()
				break
			}
		}
		return scerrors.NewHaltError(n.Step, n.Index, failed)
	}

	preds := cfg.Flow.Predecessors(n)
	selected := preds

	switch n.Builtin {
	case "join", "nop":
		// Pass through every predecessor's outputs unchanged; the
		// resolved set is the whole predecessor list.
	case "minimum", "maximum":
		weights := cfg.readWeights(n)
		var result *builtins.Result
		if n.Builtin == "minimum" {
			result = builtins.Minimum(inputs, weights)
		} else {
			result = builtins.Maximum(inputs, weights)
		}
		if result == nil {
			return scerrors.NewTaskError(n.Step, n.Index, fmt.Errorf("no eligible upstream input"))
		}
		if err = cfg.linkWinner(n, *result.Winner, wd); err != nil {
			return scerrors.NewTaskError(n.Step, n.Index, err)
		}
		if setErr := cfg.recordSelection(n, []flowgraph.Node{{Step: result.Winner.Step, Index: result.Winner.Index}}); setErr != nil {
			return scerrors.NewTaskError(n.Step, n.Index, setErr)
		}
		return nil
	case "verify":
		assertions := cfg.readAssertions(n)
		ok, vErr := builtins.Verify(inputs, assertions)
		if vErr != nil {
			return scerrors.NewTaskError(n.Step, n.Index, vErr)
		}
		if !ok {
			return scerrors.NewTaskError(n.Step, n.Index, fmt.Errorf("verify assertion failed"))
		}
	case "mux":
		return scerrors.NewTaskError(n.Step, n.Index, fmt.Errorf("mux has no concrete selection policy (spec.md §9 open question)"))
	default:
		return scerrors.NewTaskError(n.Step, n.Index, fmt.Errorf("unknown builtin %q", n.Builtin))
	}

	if setErr := cfg.recordSelection(n, selected); setErr != nil {
		return scerrors.NewTaskError(n.Step, n.Index, setErr)
	}

	for _, p := range preds {
		src := task.UpstreamDir(cfg.BuildDir, cfg.Design, cfg.JobName, p.Step, p.Index)
		if linkErr := linkAll(src, wd.Outputs); linkErr != nil {
			return scerrors.NewTaskError(n.Step, n.Index, linkErr)
		}
	}
	return nil
}

// recordSelection writes the resolved upstream set a builtin chose to
// flowstatus/<step>/<index>/select (spec.md §3.4 step 7, §4.2 keypath
// table), encoding each entry as "step.index".
func (cfg Config) recordSelection(n flowgraph.Node, chosen []flowgraph.Node) error {
	sel := make([]string, 0, len(chosen))
	for _, c := range chosen {
		sel = append(sel, c.Step+"."+c.Index)
	}
	return cfg.Store.Set([]string{"flowstatus", n.Step, n.Index, "select"}, sel, "value", true)
}

func (cfg Config) loadUpstreamMetrics(n flowgraph.Node, state *tasksync.TaskState) ([]builtins.Upstream, bool) {
	preds := cfg.Flow.Predecessors(n)
	inputs := make([]builtins.Upstream, 0, len(preds))
	anyFailed := false
	for _, p := range preds {
		id := p.Step + p.Index
		errored := state.Error(id)
		anyFailed = anyFailed || errored
		u := builtins.Upstream{Step: p.Step, Index: p.Index, Error: errored, Metrics: map[string]float64{}, Goals: map[string]float64{}}
		manifestPath := filepath.Join(task.UpstreamDir(cfg.BuildDir, cfg.Design, cfg.JobName, p.Step, p.Index), cfg.Design+".pkg.json")
		if data, rErr := os.ReadFile(manifestPath); rErr == nil {
			if node, dErr := schema.DecodeJSON(data); dErr == nil {
				store := schema.FromNode(node, cfg.Log)
				for _, key := range getKeysSafe(store, "metric", p.Step, p.Index) {
					if v, gErr := store.Get([]string{"metric", p.Step, p.Index, key, "real"}, "value"); gErr == nil {
						if f, ok := v.(float64); ok {
							u.Metrics[key] = f
						}
					}
					if g, gErr := store.Get([]string{"metric", p.Step, p.Index, key, "goal"}, "value"); gErr == nil {
						if f, ok := g.(float64); ok {
							u.Goals[key] = f
						}
					}
				}
			}
		}
		inputs = append(inputs, u)
	}
	return inputs, anyFailed
}

// getKeysSafe calls Store.GetKeys and discards the error, used for the
// optional/best-effort metric and weight lookups in this file.
func getKeysSafe(s *schema.Store, keypath ...string) []string {
	keys, err := s.GetKeys(keypath...)
	if err != nil {
		return nil
	}
	return keys
}

func (cfg Config) readWeights(n flowgraph.Node) builtins.Weights {
	weights := builtins.Weights{}
	keys := getKeysSafe(cfg.Store, "flowgraph", cfg.Flow.Name, n.Step, n.Index, "weight")
	for _, k := range keys {
		if v, gErr := cfg.Store.Get([]string{"flowgraph", cfg.Flow.Name, n.Step, n.Index, "weight", k}, "value"); gErr == nil {
			if f, ok := v.(float64); ok {
				weights[k] = f
			}
		}
	}
	return weights
}

func (cfg Config) readAssertions(n flowgraph.Node) []builtins.Assertion {
	var assertions []builtins.Assertion
	keys := getKeysSafe(cfg.Store, "flowgraph", cfg.Flow.Name, n.Step, n.Index, "args")
	for _, k := range keys {
		v, err := cfg.Store.Get([]string{"flowgraph", cfg.Flow.Name, n.Step, n.Index, "args", k}, "value")
		if err != nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		op, goal, ok := splitAssertion(s)
		if !ok {
			continue
		}
		assertions = append(assertions, builtins.Assertion{Metric: k, Op: op, Goal: goal})
	}
	return assertions
}

func splitAssertion(expr string) (op string, goal float64, ok bool) {
	for _, candidate := range []string{">=", "<=", "==", "!=", ">", "<"} {
		if idx := indexOf(expr, candidate); idx >= 0 {
			goalStr := expr[idx+len(candidate):]
			g, err := strconv.ParseFloat(trimSpace(goalStr), 64)
			if err != nil {
				return "", 0, false
			}
			return candidate, g, true
		}
	}
	return "", 0, false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func (cfg Config) linkWinner(n flowgraph.Node, winner builtins.Upstream, wd task.WorkDir) error {
	src := task.UpstreamDir(cfg.BuildDir, cfg.Design, cfg.JobName, winner.Step, winner.Index)
	return linkAll(src, wd.Outputs)
}

func linkAll(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if err := os.Link(srcPath, dstPath); err != nil {
			if _, statErr := os.Stat(dstPath); statErr == nil {
				continue
			}
			return err
		}
	}
	return nil
}

// checkManifest runs before any worker starts (spec.md §4.6
// "check_manifest"): for every tool node it looks up the node's adapter in
// cfg.Registry and runs the adapter's Setup against the parent store,
// aborting the run if either fails. It does not check required keypaths,
// declared options or input files.
func checkManifest(cfg Config) error {
	for _, n := range cfg.Flow.Nodes() {
		if n.Kind != flowgraph.KindTool {
			continue
		}
		adapter, err := cfg.Registry.Get(n.Tool)
		if err != nil {
			return scerrors.NewFlowgraphError(cfg.Flow.Name, n.ID(), err)
		}
		if err := adapter.Setup(context.Background(), cfg.Store, n.Step, n.Index); err != nil {
			return scerrors.NewFlowgraphError(cfg.Flow.Name, n.ID(), fmt.Errorf("check_manifest setup: %w", err))
		}
	}
	return nil
}

// reconcile merges the final manifest of every node at the greatest depth
// back into the parent store (spec.md §4.6 "Reconciliation"). The merge
// runs with clobber=false, so any scalar the parent store already holds a
// value for keeps it; no keypath gets special handling.
func (cfg Config) reconcile(levels []flowgraph.StepDepth) error {
	maxDepth := -1
	for _, l := range levels {
		if l.Depth > maxDepth {
			maxDepth = l.Depth
		}
	}
	for _, l := range levels {
		if l.Depth != maxDepth {
			continue
		}
		manifestPath := filepath.Join(task.UpstreamDir(cfg.BuildDir, cfg.Design, cfg.JobName, l.Node.Step, l.Node.Index), cfg.Design+".pkg.json")
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}
		node, err := schema.DecodeJSON(data)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", manifestPath, err)
		}
		upstream := schema.FromNode(node, cfg.Log)
		if err := cfg.Store.Merge(upstream, false, false); err != nil {
			return fmt.Errorf("reconcile %s: %w", manifestPath, err)
		}
	}
	return nil
}

// snapshotHistory writes a cfghistory/<jobname>.json snapshot of the
// reconciled parent store, the audit trail spec.md §4.6 keeps per run.
func (cfg Config) snapshotHistory() error {
	histDir := filepath.Join(cfg.BuildDir, cfg.Design, "cfghistory")
	if err := os.MkdirAll(histDir, 0o755); err != nil {
		return err
	}
	node, err := cfg.Store.GetDict()
	if err != nil {
		return err
	}
	data, err := schema.EncodeJSON(node)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(histDir, cfg.JobName+".json"), data, 0o644)
}
