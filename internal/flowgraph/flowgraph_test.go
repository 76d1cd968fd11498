package flowgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func importNode() Node  { return Node{Step: "import", Index: "0", Kind: KindBuiltin, Builtin: "nop"} }
func synthNode() Node   { return Node{Step: "synth", Index: "0", Kind: KindTool, Tool: "yosys"} }
func placeNode() Node   { return Node{Step: "place", Index: "0", Kind: KindTool, Tool: "openroad"} }
func routeNode() Node   { return Node{Step: "route", Index: "0", Kind: KindTool, Tool: "openroad"} }

func TestListStepsOrdersByDepth(t *testing.T) {
	f := New("asicflow")
	require.NoError(t, f.AddNode(importNode()))
	require.NoError(t, f.AddNode(synthNode()))
	require.NoError(t, f.AddNode(placeNode()))
	require.NoError(t, f.AddNode(routeNode()))

	require.NoError(t, f.AddEdge(importNode(), synthNode()))
	require.NoError(t, f.AddEdge(synthNode(), placeNode()))
	require.NoError(t, f.AddEdge(placeNode(), routeNode()))

	steps, err := f.ListSteps()
	require.NoError(t, err)
	require.Len(t, steps, 4)

	depths := make(map[string]int, len(steps))
	for _, sd := range steps {
		depths[sd.Node.ID()] = sd.Depth
	}
	assert.Equal(t, 0, depths["import0"])
	assert.Equal(t, 1, depths["synth0"])
	assert.Equal(t, 2, depths["place0"])
	assert.Equal(t, 3, depths["route0"])

	assert.Equal(t, "import0", steps[0].Node.ID())
	assert.Equal(t, "route0", steps[3].Node.ID())
}

func TestAddNodeRejectsMissingToolBinding(t *testing.T) {
	f := New("asicflow")
	err := f.AddNode(Node{Step: "synth", Index: "0", Kind: KindTool})
	assert.Error(t, err)
}

func TestAddNodeRejectsUnknownBuiltin(t *testing.T) {
	f := New("asicflow")
	err := f.AddNode(Node{Step: "select", Index: "0", Kind: KindBuiltin, Builtin: "bogus"})
	assert.Error(t, err)
}

func TestAddEdgeRejectsUnknownNode(t *testing.T) {
	f := New("asicflow")
	require.NoError(t, f.AddNode(importNode()))

	err := f.AddEdge(importNode(), synthNode())
	assert.Error(t, err)
}

func TestCheckCyclesDetectsCycle(t *testing.T) {
	f := New("loopflow")
	require.NoError(t, f.AddNode(synthNode()))
	require.NoError(t, f.AddNode(placeNode()))

	require.NoError(t, f.AddEdge(synthNode(), placeNode()))
	require.NoError(t, f.AddEdge(placeNode(), synthNode()))

	assert.Error(t, f.CheckCycles())
}

func TestCheckCyclesAcceptsDAG(t *testing.T) {
	f := New("asicflow")
	require.NoError(t, f.AddNode(importNode()))
	require.NoError(t, f.AddNode(synthNode()))
	require.NoError(t, f.AddEdge(importNode(), synthNode()))

	assert.NoError(t, f.CheckCycles())
}

func TestPredecessorsAndSuccessors(t *testing.T) {
	f := New("asicflow")
	require.NoError(t, f.AddNode(importNode()))
	require.NoError(t, f.AddNode(synthNode()))
	require.NoError(t, f.AddNode(placeNode()))
	require.NoError(t, f.AddEdge(importNode(), synthNode()))
	require.NoError(t, f.AddEdge(synthNode(), placeNode()))

	preds := f.Predecessors(placeNode())
	require.Len(t, preds, 1)
	assert.Equal(t, "synth0", preds[0].ID())

	succs := f.Successors(importNode())
	require.Len(t, succs, 1)
	assert.Equal(t, "synth0", succs[0].ID())
}
