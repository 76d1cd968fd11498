package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/sc/internal/logger"
	"github.com/alexisbeaulieu97/sc/internal/orchestrator"
	"github.com/alexisbeaulieu97/sc/internal/plugin"
	"github.com/alexisbeaulieu97/sc/internal/schema"
)

type runFlags struct {
	manifest  string
	design    string
	jobname   string
	builddir  string
	tool      string
	flow      string
	quiet     bool
	clean     bool
	track     bool
	hashCheck bool
	verCheck  bool
	timeout   time.Duration
}

// newRunCmd is intentionally thin (SPEC_FULL.md §6): load a manifest into
// a *schema.Store, build a flowgraph (auto two-node for a bare --tool, or
// deferred to a future --flow loader), and hand both to orchestrator.Run.
// It does not replicate the teacher's flag-to-startup-order machinery;
// that front-end belongs to the excluded interactive CLI surface.
func newRunCmd(log *logger.Logger) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a flowgraph against a design manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, log, flags)
		},
	}

	cmd.Flags().StringVar(&flags.manifest, "manifest", "", "path to a YAML manifest (param-record tree) to seed the schema store")
	cmd.Flags().StringVar(&flags.design, "design", "top", "design name")
	cmd.Flags().StringVar(&flags.jobname, "jobname", "", "job name (auto-incremented from the design's build directory when empty)")
	cmd.Flags().StringVar(&flags.builddir, "builddir", "build", "root build directory")
	cmd.Flags().StringVar(&flags.tool, "tool", "", "run a single bound tool step (auto-builds an import->tool flowgraph)")
	cmd.Flags().StringVar(&flags.flow, "flow", "default", "flowgraph name")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "suppress subprocess output on stdout")
	cmd.Flags().BoolVar(&flags.clean, "clean", false, "remove any stale job directory before running")
	cmd.Flags().BoolVar(&flags.track, "track", false, "record per-task provenance")
	cmd.Flags().BoolVar(&flags.hashCheck, "hashcheck", false, "hash declared outputs after each task")
	cmd.Flags().BoolVar(&flags.verCheck, "vercheck", false, "verify each tool's reported version against its declared allow-list")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "per-task subprocess timeout (0 disables)")

	return cmd
}

func runRun(cmd *cobra.Command, log *logger.Logger, flags *runFlags) error {
	store := schema.New(log)

	if flags.manifest != "" {
		data, err := os.ReadFile(flags.manifest)
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parse manifest: %w", err)
		}
		node, err := schema.FromMap(normalizeYAML(raw))
		if err != nil {
			return fmt.Errorf("decode manifest: %w", err)
		}
		loaded := schema.FromNode(node, log)
		if err := store.Merge(loaded, true, true); err != nil {
			return fmt.Errorf("merge manifest into store: %w", err)
		}
	}

	if flags.tool == "" {
		return fmt.Errorf("--tool is required (no flowgraph file loader in this build)")
	}
	flow := orchestrator.BuildSingleToolFlow(flags.flow, flags.tool)

	jobname := flags.jobname
	if jobname == "" {
		jobname = orchestrator.NextJobName(flags.builddir, flags.design, "job")
	}

	cfg := orchestrator.Config{
		Flow:      flow,
		Store:     store,
		Registry:  plugin.Default(),
		Log:       log,
		Design:    flags.design,
		JobName:   jobname,
		BuildDir:  flags.builddir,
		Quiet:     flags.quiet,
		Timeout:   flags.timeout,
		Track:     flags.track,
		HashCheck: flags.hashCheck,
		VerCheck:  flags.verCheck,
		Clean:     flags.clean,
		SCVersion: version,
	}

	if err := orchestrator.Run(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s/%s/%s complete\n", flags.design, jobname, flags.tool)
	return nil
}

// normalizeYAML converts yaml.v3's map[string]interface{} decode result
// (which, for nested maps, actually yields map[string]interface{} already
// under gopkg.in/yaml.v3 but with interface{} keys one level deeper via
// MapSlice-less decoding) into the plain map[string]interface{}/[]interface{}
// shape schema.FromMap expects.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = normalizeYAML(child)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = normalizeYAML(child)
		}
		return out
	default:
		return val
	}
}
