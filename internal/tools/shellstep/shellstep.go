// Package shellstep implements a general-purpose tool adapter that runs an
// arbitrary shell executable, the compiled-in equivalent of the teacher's
// commandplugin (internal/plugins/command) adapted from a single
// check/apply dotfile action into a repeatable flowgraph task bound by
// spec.md §6's setup/pre_process/post_process/parse_version/
// runtime_options surface.
package shellstep

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/alexisbeaulieu97/sc/internal/plugin"
	"github.com/alexisbeaulieu97/sc/internal/schema"
)

func init() {
	if err := plugin.Default().Register(New()); err != nil {
		panic(fmt.Sprintf("shellstep: register: %v", err))
	}
}

// Adapter binds one executable name to the tool-adapter contract. A single
// Go type backs every "shell" step a flowgraph names; which step that is
// gets bound by the 'exe' schema entry Setup declares.
type Adapter struct {
	name string
}

// New returns the "shell" tool adapter.
func New() *Adapter { return &Adapter{name: "shell"} }

var _ plugin.ToolAdapter = (*Adapter)(nil)

func (a *Adapter) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        a.name,
		Version:     "1.0.0",
		APIVersion:  "1.x",
		Description: "Runs an arbitrary shell executable as a flowgraph task.",
	}
}

// Setup declares this tool's standard eda/<tool>/<step>/<index>/... entries
// (spec.md §6): exe, option, vswitch, input, output, require, licenseserver.
// A real tool adapter would have hard-coded defaults here; shellstep leaves
// them to the caller's manifest since the executable itself is caller-named.
func (a *Adapter) Setup(ctx context.Context, s *schema.Store, step, index string) error {
	base := []string{"eda", a.name, step, index}
	decls := []struct {
		suffix string
		p      schema.Param
	}{
		{"exe", schema.Param{Type: schema.TypeStr, ShortHelp: "executable name"}},
		{"option", schema.Param{Type: schema.TypeStr, IsList: true, ShortHelp: "command line options"}},
		{"vswitch", schema.Param{Type: schema.TypeStr, IsList: true, ShortHelp: "version check switch"}},
		{"version", schema.Param{Type: schema.TypeStr, IsList: true, ShortHelp: "allowed version list"}},
		{"input", schema.Param{Type: schema.TypeFile, IsList: true, ShortHelp: "required input files"}},
		{"output", schema.Param{Type: schema.TypeFile, IsList: true, ShortHelp: "produced output files"}},
		{"require", schema.Param{Type: schema.TypeStr, IsList: true, ShortHelp: "required keypaths"}},
		{"licenseserver", schema.Param{Type: schema.TypeStr, IsList: true, ShortHelp: "license server URIs"}},
	}
	for _, d := range decls {
		keypath := append(append([]string(nil), base...), d.suffix)
		if err := s.Declare(keypath, d.p); err != nil {
			return fmt.Errorf("declare eda/%s/%s/%s/%s: %w", a.name, step, index, d.suffix, err)
		}
	}

	// eda/<tool>/regex/<step>/<index>/<suffix> holds one grep-style filter
	// list per caller-named suffix (e.g. "errors", "warnings"); the suffix
	// itself isn't known here, so a "default" template lets Store.Set
	// materialize it the first time a caller writes one (spec.md §6 log
	// scanning, resolveOrCreate's wildcard-template rule).
	regexKeypath := []string{"eda", a.name, "regex", step, index, "default"}
	if err := s.Declare(regexKeypath, schema.Param{Type: schema.TypeStr, IsList: true, ShortHelp: "grep-style log filter arguments"}); err != nil {
		return fmt.Errorf("declare eda/%s/regex/%s/%s/default: %w", a.name, step, index, err)
	}
	return nil
}

// PreProcess and PostProcess have nothing generic to do; a real tool
// adapter built on this pattern (e.g. a synthesis or place-and-route
// binding) would override these in its own package.
func (a *Adapter) PreProcess(ctx context.Context, s *schema.Store, step, index string) error {
	return nil
}

func (a *Adapter) PostProcess(ctx context.Context, s *schema.Store, step, index string) error {
	return nil
}

var versionRe = regexp.MustCompile(`\d+(\.\d+){0,2}`)

// ParseVersion extracts the first semver-like token from the tool's
// version-switch stdout.
func (a *Adapter) ParseVersion(stdout string) (string, error) {
	m := versionRe.FindString(stdout)
	if m == "" {
		return "", fmt.Errorf("no version token found in %q", strings.TrimSpace(stdout))
	}
	return m, nil
}

// RuntimeOptions reads eda/<tool>/<step>/<index>/option verbatim.
func (a *Adapter) RuntimeOptions(ctx context.Context, s *schema.Store, step, index string) ([]string, error) {
	v, err := s.Get([]string{"eda", a.name, step, index, "option"}, "value")
	if err != nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out, nil
}

// InputFiles and OutputFiles have no static defaults for the generic shell
// adapter: unlike a tool-specific adapter (which knows its own filenames
// at compile time), shellstep's filenames are only known once a step's
// eda/.../input and eda/.../output schema entries are populated, which the
// ToolAdapter interface has no store handle to read at this call site.
func (a *Adapter) InputFiles(step, index string) []string  { return nil }
func (a *Adapter) OutputFiles(step, index string) []string { return nil }
