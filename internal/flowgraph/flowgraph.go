// Package flowgraph builds and analyzes the per-run task graph (C3): nodes
// are (step,index) pairs bound to a tool or a built-in combinator, edges
// are input dependencies. The graph itself is backed by
// github.com/katalvlaran/lvlath/graph, the pack's adjacency-list
// implementation, so traversal (depth assignment, cycle detection) reuses
// its thread-safe DFS rather than a hand-rolled walk.
package flowgraph

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	lvgraph "github.com/katalvlaran/lvlath/graph"

	"github.com/alexisbeaulieu97/sc/pkg/scerrors"
)

var nodeValidator = validator.New()

// NodeKind distinguishes a task bound to an external tool from one bound
// to a built-in combinator (spec.md §3.3).
type NodeKind int

const (
	KindTool NodeKind = iota
	KindBuiltin
)

// Node describes one (step,index) pair in a flowgraph.
type Node struct {
	Step  string `validate:"required"`
	Index string `validate:"required"`
	Kind  NodeKind
	// Tool is the bound tool name when Kind == KindTool.
	Tool string `validate:"required_if=Kind 0"`
	// Builtin is the bound combinator name when Kind == KindBuiltin
	// ("minimum", "maximum", "join", "nop", "mux", "verify").
	Builtin string `validate:"required_if=Kind 1,omitempty,oneof=minimum maximum join nop mux verify"`
}

// ID returns the node's flowgraph identity, "step<index>".
func (n Node) ID() string {
	return n.Step + n.Index
}

// Flow is one named flowgraph: a set of nodes plus the input edges
// declared between them (spec.md §3.3).
type Flow struct {
	Name  string
	g     *lvgraph.Graph
	nodes map[string]Node
}

// New creates an empty, directed flowgraph named name.
func New(name string) *Flow {
	return &Flow{
		Name:  name,
		g:     lvgraph.NewGraph(true, false),
		nodes: make(map[string]Node),
	}
}

// AddNode registers a (step,index) pair in the flow, rejecting a
// structurally invalid node (spec.md §3.3: every node names a step/index
// and is bound to exactly one of a tool or a known built-in).
func (f *Flow) AddNode(n Node) error {
	if err := nodeValidator.Struct(n); err != nil {
		return scerrors.NewFlowgraphError(f.Name, n.ID(), err)
	}
	if _, exists := f.nodes[n.ID()]; exists {
		return nil
	}
	f.nodes[n.ID()] = n
	f.g.AddVertex(&lvgraph.Vertex{ID: n.ID(), Metadata: map[string]interface{}{"node": n}})
	return nil
}

// AddEdge declares that "to" depends on an output of "from" (spec.md §3.3
// input edges). The graph records the dependency from->to so that a
// depth-first walk rooted at the entry nodes visits producers before
// consumers.
func (f *Flow) AddEdge(from, to Node) error {
	if _, ok := f.nodes[from.ID()]; !ok {
		return scerrors.NewFlowgraphError(f.Name, from.ID(), fmt.Errorf("edge references unknown node %s", from.ID()))
	}
	if _, ok := f.nodes[to.ID()]; !ok {
		return scerrors.NewFlowgraphError(f.Name, to.ID(), fmt.Errorf("edge references unknown node %s", to.ID()))
	}
	f.g.AddEdge(from.ID(), to.ID(), 1)
	return nil
}

// Nodes returns every registered node, unordered.
func (f *Flow) Nodes() []Node {
	out := make([]Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out
}

// Node looks up a node by its "step index" identity.
func (f *Flow) Node(step, index string) (Node, bool) {
	n, ok := f.nodes[step+index]
	return n, ok
}

// entryNodes returns nodes with no incoming edges: the roots a DFS must
// start from to reach the whole graph.
func (f *Flow) entryNodes() []string {
	hasIncoming := make(map[string]bool, len(f.nodes))
	for _, e := range f.g.Edges() {
		hasIncoming[e.To.ID] = true
	}
	var roots []string
	for id := range f.nodes {
		if !hasIncoming[id] {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// CheckCycles reports an error if the flowgraph contains a cycle, walking
// a DFS from every entry node and flagging any vertex reached while still
// on the current recursion stack.
func (f *Flow) CheckCycles() error {
	state := make(map[string]int) // 0=unvisited,1=active,2=done
	var visit func(id string) error
	visit = func(id string) error {
		state[id] = 1
		res, err := f.g.DFS(id, &lvgraph.DFSOptions{
			OnVisit: func(v *lvgraph.Vertex, depth int) error {
				if depth == 0 {
					return nil
				}
				if state[v.ID] == 1 {
					return fmt.Errorf("cycle detected at node %s", v.ID)
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
		for _, v := range res.Order {
			state[v.ID] = 2
		}
		state[id] = 2
		return nil
	}

	for _, root := range f.entryNodes() {
		if state[root] != 0 {
			continue
		}
		if err := visit(root); err != nil {
			return scerrors.NewFlowgraphError(f.Name, root, err)
		}
	}
	if len(state) < len(f.nodes) {
		for id := range f.nodes {
			if state[id] == 0 {
				return scerrors.NewFlowgraphError(f.Name, id, fmt.Errorf("node is unreachable from any entry point, possibly part of an isolated cycle"))
			}
		}
	}
	return nil
}

// StepDepth pairs a node with its computed depth.
type StepDepth struct {
	Node  Node
	Depth int
}

// ListSteps returns every node annotated with its depth: the length of
// the longest path from any entry node to it (spec.md §3.3 "list_steps").
// Nodes are sorted by ascending depth; within a depth they keep the order
// in which the DFS walks (entry nodes taken in ID order) first reached
// them. The order in which nodes were added to the flow is not recorded
// and plays no part in this ordering.
func (f *Flow) ListSteps() ([]StepDepth, error) {
	depth := make(map[string]int, len(f.nodes))
	order := make(map[string]int, len(f.nodes))
	i := 0
	for _, root := range f.entryNodes() {
		res, err := f.g.DFS(root, &lvgraph.DFSOptions{
			OnVisit: func(v *lvgraph.Vertex, d int) error {
				if cur, ok := depth[v.ID]; !ok || d > cur {
					depth[v.ID] = d
				}
				if _, ok := order[v.ID]; !ok {
					order[v.ID] = i
					i++
				}
				return nil
			},
		})
		if err != nil {
			return nil, scerrors.NewFlowgraphError(f.Name, root, err)
		}
		_ = res
	}
	// A DFS visits each vertex once, at its tree depth; relax every edge
	// until each reached vertex carries its longest-path depth.
	edges := f.g.Edges()
	for range f.nodes {
		for _, e := range edges {
			if from, ok := depth[e.From.ID]; ok && depth[e.To.ID] < from+1 {
				depth[e.To.ID] = from + 1
			}
		}
	}

	out := make([]StepDepth, 0, len(f.nodes))
	for id, n := range f.nodes {
		d, ok := depth[id]
		if !ok {
			d = 0
			order[id] = i
			i++
		}
		out = append(out, StepDepth{Node: n, Depth: d})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Depth != out[b].Depth {
			return out[a].Depth < out[b].Depth
		}
		return order[out[a].Node.ID()] < order[out[b].Node.ID()]
	})
	return out, nil
}

// Predecessors returns the nodes that "to" directly depends on.
func (f *Flow) Predecessors(to Node) []Node {
	var out []Node
	for _, e := range f.g.Edges() {
		if e.To.ID == to.ID() {
			if n, ok := f.nodes[e.From.ID]; ok {
				out = append(out, n)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Successors returns the nodes that directly depend on "from".
func (f *Flow) Successors(from Node) []Node {
	var out []Node
	for _, v := range f.g.Neighbors(from.ID()) {
		if n, ok := f.nodes[v.ID]; ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
