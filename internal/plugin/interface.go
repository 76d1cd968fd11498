// Package plugin defines the tool-adapter contract (spec.md §6 "Plug-in
// modules") and the compiled-in registry tool nodes are bound against.
// Adapters are registered at init time by each internal/tools/<name>
// package; there is no dynamic .so loading.
package plugin

import (
	"context"

	"github.com/alexisbeaulieu97/sc/internal/schema"
)

// Metadata identifies a tool adapter for the registry and for dependency
// bookkeeping between tools (e.g. a place-and-route adapter that expects
// a particular synthesis adapter's output format to already be present).
type Metadata struct {
	Name         string
	Version      string
	APIVersion   string
	Dependencies []Dependency
	Description  string
}

// Dependency records that a tool adapter expects another tool to also be
// registered, optionally pinned to a version constraint.
type Dependency struct {
	Name              string
	VersionConstraint string
}

// AdapterInitializer lets an adapter receive a reference to the registry
// during startup, e.g. to resolve a declared Dependency. Adapters that
// don't need this may ignore the interface; the registry detects it via
// type assertion.
type AdapterInitializer interface {
	Init(registry *Registry) error
}

// ToolAdapter is the contract every internal/tools/<name> package
// implements, corresponding to spec.md §6's setup/pre_process/
// post_process/parse_version/runtime_options plug-in surface.
type ToolAdapter interface {
	Metadata() Metadata

	// Setup declares this tool's capabilities into the schema under
	// eda/<tool>/... for the given (step,index): exe, option, script,
	// format, vswitch, version, input, output, require, regex, continue,
	// copy, refdir, licenseserver, env.
	Setup(ctx context.Context, s *schema.Store, step, index string) error

	// PreProcess runs just before the tool's subprocess is invoked.
	PreProcess(ctx context.Context, s *schema.Store, step, index string) error

	// PostProcess runs just after the tool's subprocess exits successfully.
	PostProcess(ctx context.Context, s *schema.Store, step, index string) error

	// ParseVersion extracts a version string from the tool's
	// vswitch-invocation stdout, compared against the declared version
	// allow-list when vercheck is enabled.
	ParseVersion(stdout string) (string, error)

	// RuntimeOptions returns extra command-line arguments computed at run
	// time, e.g. from schema state not known at Setup time.
	RuntimeOptions(ctx context.Context, s *schema.Store, step, index string) ([]string, error)

	// InputFiles and OutputFiles declare the static filenames this tool
	// reads from inputs/ and writes to outputs/, used by
	// flowgraph.CheckFlowgraphIO and GatherOutputs.
	InputFiles(step, index string) []string
	OutputFiles(step, index string) []string
}
