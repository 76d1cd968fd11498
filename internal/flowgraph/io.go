package flowgraph

import (
	"fmt"
	"sort"

	"github.com/alexisbeaulieu97/sc/pkg/scerrors"
)

// ToolAdapter is the minimal surface flowgraph needs from a tool binding to
// validate I/O compatibility; the full adapter interface lives in
// internal/plugin.
type ToolAdapter interface {
	InputFiles(step, index string) []string
	OutputFiles(step, index string) []string
}

// GatherOutputs computes the fix-point output set a node makes available
// to its successors (spec.md §4.3 "gather_outputs"): union for join/nop,
// intersection for minimum/maximum, and the tool adapter's static output
// declaration (plus, for import, every staged filename) for tool nodes.
func (f *Flow) GatherOutputs(n Node, adapters map[string]ToolAdapter, stagedImports []string) ([]string, error) {
	switch n.Kind {
	case KindBuiltin:
		preds := f.Predecessors(n)
		sets := make([][]string, 0, len(preds))
		for _, p := range preds {
			out, err := f.GatherOutputs(p, adapters, stagedImports)
			if err != nil {
				return nil, err
			}
			sets = append(sets, out)
		}
		switch n.Builtin {
		case "join", "nop":
			return unionStrings(sets), nil
		case "minimum", "maximum":
			return intersectStrings(sets), nil
		default:
			return unionStrings(sets), nil
		}
	case KindTool:
		adapter, ok := adapters[n.Tool]
		if !ok {
			return nil, scerrors.NewFlowgraphError(f.Name, n.ID(), fmt.Errorf("no adapter registered for tool %q", n.Tool))
		}
		outs := append([]string(nil), adapter.OutputFiles(n.Step, n.Index)...)
		if n.Step == "import" {
			outs = append(outs, stagedImports...)
		}
		return outs, nil
	default:
		return nil, nil
	}
}

func unionStrings(sets [][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range sets {
		for _, s := range set {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

func intersectStrings(sets [][]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, set := range sets {
		unique := make(map[string]bool)
		for _, s := range set {
			unique[s] = true
		}
		for s := range unique {
			counts[s]++
		}
	}
	var out []string
	for s, c := range counts {
		if c == len(sets) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// CheckFlowgraphIO validates that every non-builtin node's declared input
// filenames are satisfied by gather_outputs of its upstream(s), or present
// on disk in the upstream's outputs/ directory (spec.md §4.3
// "check_flowgraph_io"). onDiskCheck lets the caller supply a
// filesystem-backed fallback; pass nil to skip it.
func (f *Flow) CheckFlowgraphIO(adapters map[string]ToolAdapter, stagedImports []string, onDiskCheck func(upstream Node, filename string) bool) error {
	for _, n := range f.Nodes() {
		preds := f.Predecessors(n)
		if n.Kind == KindTool && len(preds) > 1 {
			// Tool nodes with multiple upstreams are skipped: neither
			// rejected nor checked for inputs, and nothing is logged here.
			continue
		}
		if n.Kind != KindTool {
			continue
		}
		adapter, ok := adapters[n.Tool]
		if !ok {
			return scerrors.NewFlowgraphError(f.Name, n.ID(), fmt.Errorf("no adapter registered for tool %q", n.Tool))
		}
		required := adapter.InputFiles(n.Step, n.Index)
		if len(required) == 0 {
			continue
		}

		available := make(map[string]bool)
		for _, p := range preds {
			outs, err := f.GatherOutputs(p, adapters, stagedImports)
			if err != nil {
				return err
			}
			for _, o := range outs {
				available[o] = true
			}
		}

		for _, req := range required {
			if available[req] {
				continue
			}
			satisfied := false
			if onDiskCheck != nil {
				for _, p := range preds {
					if onDiskCheck(p, req) {
						satisfied = true
						break
					}
				}
			}
			if !satisfied {
				return scerrors.NewFlowgraphError(f.Name, n.ID(), fmt.Errorf("required input %q is not produced by any upstream task and not found on disk", req))
			}
		}
	}
	return nil
}
