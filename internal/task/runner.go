package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/sc/internal/logger"
	"github.com/alexisbeaulieu97/sc/internal/pathresolver"
	"github.com/alexisbeaulieu97/sc/internal/plugin"
	"github.com/alexisbeaulieu97/sc/internal/schema"
	"github.com/alexisbeaulieu97/sc/internal/tasksync"
	"github.com/alexisbeaulieu97/sc/pkg/scerrors"
)

var specValidator = validator.New()

// Spec describes everything a Runner needs to execute one (step,index):
// static configuration resolved by the orchestrator before the worker is
// spawned.
type Spec struct {
	Flow     string `validate:"required"`
	Step     string `validate:"required"`
	Index    string `validate:"required"`
	Tool     string // empty for a built-in node
	Design   string `validate:"required"`
	JobName  string `validate:"required"`
	BuildDir string `validate:"required"`

	Adapter  plugin.ToolAdapter // nil for a built-in node
	Upstream []UpstreamRef

	Quiet     bool
	Timeout   time.Duration
	Track     bool
	HashCheck bool
	VerCheck  bool
	SCVersion string
}

// UpstreamRef names one producer this task depends on.
type UpstreamRef struct {
	Step  string
	Index string
}

func (u UpstreamRef) id() string { return u.Step + u.Index }

// Runner executes one (step,index) task end to end, following the 27
// steps of spec.md §4.4.
type Runner struct {
	Spec    Spec
	Store   *schema.Store
	State   *tasksync.TaskState
	Metrics *Metrics
	Log     *logger.Logger

	// toolVersion is set by the step 14 version check, when it runs, and
	// carried into the step 23 provenance record.
	toolVersion string
}

// ID is this task's flowgraph identity.
func (r *Runner) ID() string { return r.Spec.Step + r.Spec.Index }

// Run executes the full workflow, publishing active/error on tasksync.TaskState
// before returning, exactly once, regardless of outcome (spec.md §4.4
// step 27 and the "any uncaught failure" closing rule).
func (r *Runner) Run(ctx context.Context) (err error) {
	id := r.ID()
	log := r.Log.ForTask(r.Spec.Step, r.Spec.Index)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in task %s: %v", id, rec)
		}
		if err != nil {
			r.State.SetError(id, true)
			log.Error(err, "task failed")
		} else {
			r.State.SetError(id, false)
		}
		r.State.SetActive(id, false)
	}()

	if verr := specValidator.Struct(r.Spec); verr != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, fmt.Errorf("invalid task spec: %w", verr))
	}

	// Step 1: wait for upstream.
	r.waitUpstream(id)

	wallStart := time.Now()

	// Step 4: working directory.
	wd := NewWorkDir(r.Spec.BuildDir, r.Spec.Design, r.Spec.JobName, r.Spec.Step, r.Spec.Index)
	if err = wd.Prepare(); err != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, fmt.Errorf("prepare working directory: %w", err))
	}

	// Step 5: manifest fan-in.
	upstreamErrored, err := r.fanIn(wd)
	if err != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, err)
	}

	// Step 8: halt on upstream error.
	if upstreamErrored {
		return scerrors.NewHaltError(r.Spec.Step, r.Spec.Index, r.firstErroredUpstream())
	}

	// Step 9: stage inputs.
	if err = r.stageInputs(wd); err != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, fmt.Errorf("stage inputs: %w", err))
	}

	if r.Spec.Adapter == nil {
		// Built-in node: hard-link inputs into outputs (spec.md §4.4
		// step 17 "Built-in") and publish a trivial manifest.
		if err = linkTree(wd.Inputs, wd.Outputs); err != nil {
			return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, fmt.Errorf("builtin passthrough: %w", err))
		}
		return r.emitManifest(wd)
	}

	adapter := r.Spec.Adapter

	// Step 11: manifest check (declared inputs present).
	for _, required := range adapter.InputFiles(r.Spec.Step, r.Spec.Index) {
		if _, statErr := os.Stat(filepath.Join(wd.Inputs, required)); statErr != nil {
			return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, fmt.Errorf("required input %q missing from inputs/", required))
		}
	}

	// Step 12: pre-process hook.
	if err = adapter.PreProcess(ctx, r.Store, r.Spec.Step, r.Spec.Index); err != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, fmt.Errorf("pre-process: %w", err))
	}

	// Step 13: environment.
	env, err := r.buildEnv()
	if err != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, err)
	}

	// Step 14: version check.
	if r.Spec.VerCheck {
		if err = r.checkVersion(ctx, wd); err != nil {
			return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, err)
		}
	}

	// Step 15: serialize manifest (pre-execution snapshot for the tool).
	if err = r.writeManifest(wd, "sc_manifest.json"); err != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, err)
	}

	// Step 16-18: execute, CPU timer.
	runtimeOpts, err := adapter.RuntimeOptions(ctx, r.Store, r.Spec.Step, r.Spec.Index)
	if err != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, fmt.Errorf("runtime options: %w", err))
	}
	argv := append([]string{r.Spec.Tool}, runtimeOpts...)
	logPath := filepath.Join(wd.Root, r.Spec.Step+".log")

	execStart := time.Now()
	result, runErr := RunSubprocess(ctx, wd.Root, argv, env, logPath, r.Spec.Quiet, r.Spec.Timeout)
	execDuration := time.Since(execStart)
	if r.Metrics != nil {
		status := "success"
		if runErr != nil {
			status = "failed"
		}
		r.Metrics.Observe(r.Spec.Step, r.Spec.Index, r.Spec.Tool, execDuration, result.ExitCode, status)
	}
	if err = r.Store.Set([]string{"metric", r.Spec.Step, r.Spec.Index, "exetime", "real"}, execDuration.Seconds(), "value", true); err != nil {
		return err
	}
	if runErr != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, fmt.Errorf("execute: %w", runErr))
	}

	// Step 19: post-process hook.
	if err = adapter.PostProcess(ctx, r.Store, r.Spec.Step, r.Spec.Index); err != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, fmt.Errorf("post-process: %w", err))
	}

	// Step 20: log scan.
	if err = r.scanLogs(wd, logPath, log); err != nil {
		return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, err)
	}

	// Step 21: hashing.
	if r.Spec.HashCheck {
		if err = r.hashOutputs(wd, adapter); err != nil {
			return scerrors.NewTaskError(r.Spec.Step, r.Spec.Index, err)
		}
	}

	// Step 22: wall timer.
	wallDuration := time.Since(wallStart)
	if err = r.Store.Set([]string{"metric", r.Spec.Step, r.Spec.Index, "tasktime", "real"}, wallDuration.Seconds(), "value", true); err != nil {
		return err
	}

	// Step 23: provenance.
	if r.Spec.Track {
		r.recordProvenance(wallStart, time.Now())
	}

	// Step 24: emit manifest.
	return r.emitManifest(wd)
}

func (r *Runner) waitUpstream(id string) {
	for _, up := range r.Spec.Upstream {
		for r.State.Active(up.id()) {
			time.Sleep(100 * time.Millisecond)
		}
	}
	r.State.SetActive(id, true)
}

func (r *Runner) fanIn(wd WorkDir) (anyErrored bool, err error) {
	for _, up := range r.Spec.Upstream {
		if r.State.Error(up.id()) {
			anyErrored = true
			continue
		}
		manifestPath := filepath.Join(
			UpstreamDir(r.Spec.BuildDir, r.Spec.Design, r.Spec.JobName, up.Step, up.Index),
			r.Spec.Design+".pkg.json",
		)
		data, readErr := os.ReadFile(manifestPath)
		if readErr != nil {
			continue
		}
		tree, parseErr := schema.DecodeJSON(data)
		if parseErr != nil {
			return anyErrored, fmt.Errorf("parse upstream manifest %q: %w", manifestPath, parseErr)
		}
		upstreamStore := schema.FromNode(tree, r.Log)
		if mergeErr := r.Store.Merge(upstreamStore, false, false); mergeErr != nil {
			return anyErrored, fmt.Errorf("merge upstream manifest %q: %w", manifestPath, mergeErr)
		}
	}
	return anyErrored, nil
}

func (r *Runner) firstErroredUpstream() string {
	for _, up := range r.Spec.Upstream {
		if r.State.Error(up.id()) {
			return up.id()
		}
	}
	return ""
}

func (r *Runner) stageInputs(wd WorkDir) error {
	if r.Spec.Step == "import" {
		return nil // nothing is staged into an import step's inputs/ here.
	}
	for _, up := range r.Spec.Upstream {
		srcOutputs := UpstreamDir(r.Spec.BuildDir, r.Spec.Design, r.Spec.JobName, up.Step, up.Index)
		if err := linkTreeExcept(srcOutputs, wd.Inputs, r.Spec.Design+".pkg.json"); err != nil {
			return err
		}
	}
	return nil
}

func linkTree(src, dst string) error {
	return linkTreeExcept(src, dst, "")
}

func linkTreeExcept(src, dst, exclude string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.Name() == exclude {
			continue
		}
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return err
			}
			if err := linkTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := os.Link(srcPath, dstPath); err != nil {
			if _, statErr := os.Stat(dstPath); statErr == nil {
				continue
			}
			return err
		}
	}
	return nil
}

// checkVersion runs the tool's version-check switch and halts the task when
// the reported version isn't in the 'version' allow-list (spec.md §4.4 step
// 14). Absent a declared vswitch or allow-list, the check is a no-op: not
// every tool needs one.
func (r *Runner) checkVersion(ctx context.Context, wd WorkDir) error {
	vswitchVal, err := r.Store.Get([]string{"eda", r.Spec.Tool, "vswitch"}, "value")
	if err != nil {
		return nil
	}
	vswitch := toStringList(vswitchVal)
	if len(vswitch) == 0 {
		return nil
	}

	stdout, err := StreamVersion(ctx, wd.Root, r.Spec.Tool, vswitch)
	if err != nil {
		return fmt.Errorf("version check: run %s %v: %w", r.Spec.Tool, vswitch, err)
	}
	reported, err := r.Spec.Adapter.ParseVersion(stdout)
	if err != nil {
		return fmt.Errorf("version check: parse version: %w", err)
	}
	r.toolVersion = reported

	allowedVal, err := r.Store.Get([]string{"eda", r.Spec.Tool, "version"}, "value")
	if err != nil {
		return nil
	}
	allowed := toStringList(allowedVal)
	if len(allowed) == 0 {
		return nil
	}
	for _, v := range allowed {
		if v == reported {
			return nil
		}
	}
	return fmt.Errorf("tool %q reported version %q, not in allowed list %v", r.Spec.Tool, reported, allowed)
}

// scanLogs applies every eda/<tool>/regex/<step>/<index>/<suffix> filter
// list against logPath, writing survivors to <step>.<suffix> in the task's
// working directory and, unless quiet, echoing them to the task logger
// (spec.md §4.4 step 20).
func (r *Runner) scanLogs(wd WorkDir, logPath string, log *logger.Logger) error {
	suffixes, err := r.Store.GetKeys("eda", r.Spec.Tool, "regex", r.Spec.Step, r.Spec.Index)
	if err != nil {
		return nil
	}
	for _, suffix := range suffixes {
		raw, getErr := r.Store.Get([]string{"eda", r.Spec.Tool, "regex", r.Spec.Step, r.Spec.Index, suffix}, "value")
		if getErr != nil {
			continue
		}
		args := toStringList(raw)
		if len(args) == 0 {
			continue
		}
		filters := make([]LogFilter, 0, len(args))
		for _, a := range args {
			filters = append(filters, parseGrepArg(a))
		}
		matches, scanErr := ScanLog(logPath, filters)
		if scanErr != nil {
			return fmt.Errorf("scan log for suffix %q: %w", suffix, scanErr)
		}
		if _, writeErr := WriteSuffix(wd.Root, r.Spec.Step, suffix, matches); writeErr != nil {
			return fmt.Errorf("write scan result %q: %w", suffix, writeErr)
		}
		if !r.Spec.Quiet {
			for _, m := range matches {
				log.Info(strings.TrimSpace(m))
			}
		}
	}
	return nil
}

// parseGrepArg parses one regex filter entry into a LogFilter, following
// the "-v/-i/-E/-e/-x/-o/-w PATTERN" grammar of
// original_source/siliconcompiler/core.py's Chip.grep: any number of
// leading single-letter switches, each its own whitespace-separated token,
// followed by the pattern as the remainder of the string.
func parseGrepArg(arg string) LogFilter {
	fields := strings.Fields(arg)
	f := LogFilter{}
	for i, tok := range fields {
		switch tok {
		case "-v":
			f.Invert = true
		case "-i":
			f.IgnoreCase = true
		case "-x":
			f.WholeLine = true
		case "-o":
			f.OnlyMatching = true
		case "-w":
			f.WholeWord = true
		case "-E":
			// -E (extended regex) is the only flavour regexp supports, and
			// is therefore already the default.
		case "-e":
			// -e marks "the rest of the line is the pattern, even if it
			// looks like a switch".
			f.Pattern = strings.Join(fields[i+1:], " ")
			return f
		default:
			f.Pattern = strings.Join(fields[i:], " ")
			return f
		}
	}
	return f
}

// toStringList coerces a Store.Get("value") result for a list-typed
// parameter into a []string, discarding entries of unexpected type.
func toStringList(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}

func (r *Runner) buildEnv() ([]string, error) {
	env := os.Environ()
	servers, _ := r.Store.Get([]string{"eda", r.Spec.Tool, "licenseserver"}, "value")
	if strs := toStringList(servers); len(strs) > 0 {
		env = append(env, fmt.Sprintf("%s_LICENSE_SERVER=%s", strings.ToUpper(r.Spec.Tool), strings.Join(strs, ":")))
	}
	return env, nil
}

func (r *Runner) writeManifest(wd WorkDir, filename string) error {
	node, err := r.Store.GetDict()
	if err != nil {
		return fmt.Errorf("snapshot manifest: %w", err)
	}
	data, err := schema.EncodeJSON(node)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(wd.Root, filename), data, 0o644)
}

func (r *Runner) emitManifest(wd WorkDir) error {
	if err := r.Store.Set([]string{"flowstatus", r.Spec.Step, r.Spec.Index, "error"}, false, "value", true); err != nil {
		return err
	}
	node, err := r.Store.GetDict()
	if err != nil {
		return fmt.Errorf("snapshot manifest: %w", err)
	}
	data, err := schema.EncodeJSON(schema.Prune(node))
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(wd.Outputs, r.Spec.Design+".pkg.json"), data, 0o644)
}

func (r *Runner) hashOutputs(wd WorkDir, adapter plugin.ToolAdapter) error {
	for _, out := range adapter.OutputFiles(r.Spec.Step, r.Spec.Index) {
		path := filepath.Join(wd.Outputs, out)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		digest, err := pathresolver.HashFile(path)
		if err != nil {
			return fmt.Errorf("hash output %q: %w", out, err)
		}
		if err := r.Store.Add([]string{"input", r.Spec.Step, r.Spec.Index, out}, digest, "filehash"); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) recordProvenance(start, end time.Time) {
	prov := CollectHostProvenance()
	prov.RunID = NewRunID()
	prov.StartTime = start
	prov.EndTime = end
	prov.SCVersion = r.Spec.SCVersion
	prov.ToolVersion = r.toolVersion

	prefix := []string{"record", r.Spec.Step, r.Spec.Index}
	fields := map[string]string{
		"runid":       prov.RunID,
		"starttime":   prov.StartTime.Format(time.RFC3339),
		"endtime":     prov.EndTime.Format(time.RFC3339),
		"machine":     prov.Machine,
		"platform":    prov.Platform,
		"arch":        prov.CPUArch,
		"userid":      prov.UserID,
		"scversion":   prov.SCVersion,
		"toolversion": prov.ToolVersion,
		"gatewayipv4": prov.GatewayIPv4,
		"gatewaymac":  prov.GatewayMAC,
		"cloudregion": prov.CloudRegion,
		"distroid":    prov.DistroID,
		"distrover":   prov.DistroVer,
		"kernelver":   prov.KernelVer,
	}
	for suffix, v := range fields {
		_ = r.Store.Set(append(append([]string(nil), prefix...), suffix), v, "value", true)
	}
}
