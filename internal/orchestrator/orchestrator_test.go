package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/sc/internal/flowgraph"
	"github.com/alexisbeaulieu97/sc/internal/plugin"
	"github.com/alexisbeaulieu97/sc/internal/schema"
)

type fakeAdapter struct {
	name    string
	options []string
}

var _ plugin.ToolAdapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Metadata() plugin.Metadata {
	return plugin.Metadata{Name: f.name, Version: "1.0.0", APIVersion: "1.x"}
}
func (f *fakeAdapter) Setup(ctx context.Context, s *schema.Store, step, index string) error {
	return nil
}
func (f *fakeAdapter) PreProcess(ctx context.Context, s *schema.Store, step, index string) error {
	return nil
}
func (f *fakeAdapter) PostProcess(ctx context.Context, s *schema.Store, step, index string) error {
	return nil
}
func (f *fakeAdapter) ParseVersion(stdout string) (string, error) { return stdout, nil }
func (f *fakeAdapter) RuntimeOptions(ctx context.Context, s *schema.Store, step, index string) ([]string, error) {
	return f.options, nil
}
func (f *fakeAdapter) InputFiles(step, index string) []string  { return nil }
func (f *fakeAdapter) OutputFiles(step, index string) []string { return nil }

func TestBuildSingleToolFlowShape(t *testing.T) {
	f := BuildSingleToolFlow("default", "echo")

	importNode, ok := f.Node("import", "0")
	require.True(t, ok)
	assert.Equal(t, flowgraph.KindBuiltin, importNode.Kind)
	assert.Equal(t, "nop", importNode.Builtin)

	toolNode, ok := f.Node("echo", "0")
	require.True(t, ok)
	assert.Equal(t, flowgraph.KindTool, toolNode.Kind)
	assert.Equal(t, "echo", toolNode.Tool)

	preds := f.Predecessors(toolNode)
	require.Len(t, preds, 1)
	assert.Equal(t, "import0", preds[0].ID())
}

func TestNextJobNameAutoIncrement(t *testing.T) {
	buildDir := t.TempDir()

	assert.Equal(t, "job0", NextJobName(buildDir, "top", "job"))

	require.NoError(t, os.MkdirAll(filepath.Join(buildDir, "top", "job0"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(buildDir, "top", "job1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(buildDir, "top", "other5"), 0o755))

	assert.Equal(t, "job2", NextJobName(buildDir, "top", "job"))
}

func TestSortIntsOrdersAscending(t *testing.T) {
	xs := []int{3, 1, 2, 0}
	sortInts(xs)
	assert.Equal(t, []int{0, 1, 2, 3}, xs)
}

func TestSplitAssertionParsesOperatorsLongestFirst(t *testing.T) {
	op, goal, ok := splitAssertion("slack>=0.0")
	require.True(t, ok)
	assert.Equal(t, ">=", op)
	assert.Equal(t, 0.0, goal)

	op, goal, ok = splitAssertion("power < 1.5")
	require.True(t, ok)
	assert.Equal(t, "<", op)
	assert.Equal(t, 1.5, goal)

	_, _, ok = splitAssertion("not an assertion")
	assert.False(t, ok)
}

func TestLinkAllReturnsNilForMissingSource(t *testing.T) {
	err := linkAll(filepath.Join(t.TempDir(), "does-not-exist"), t.TempDir())
	assert.NoError(t, err)
}

func newRunStore(t *testing.T) *schema.Store {
	t.Helper()
	s := schema.New(nil)
	require.NoError(t, s.Declare([]string{"design"}, schema.Param{Type: schema.TypeStr}))
	require.NoError(t, s.Set([]string{"design"}, "top", "value", true))
	return s
}

func TestRunEndToEndWithFakeToolAdapter(t *testing.T) {
	buildDir := t.TempDir()
	registry := plugin.NewRegistry()
	require.NoError(t, registry.Register(&fakeAdapter{name: "echo", options: []string{"hello"}}))

	flow := BuildSingleToolFlow("default", "echo")
	store := newRunStore(t)

	cfg := Config{
		Flow:     flow,
		Store:    store,
		Registry: registry,
		Design:   "top",
		JobName:  "job0",
		BuildDir: buildDir,
	}

	require.NoError(t, Run(context.Background(), cfg))

	manifestPath := filepath.Join(buildDir, "top", "job0", "echo", "0", "outputs", "top.pkg.json")
	_, err := os.Stat(manifestPath)
	require.NoError(t, err)

	histPath := filepath.Join(buildDir, "top", "cfghistory", "job0.json")
	_, err = os.Stat(histPath)
	require.NoError(t, err)

	designVal, err := store.Get([]string{"design"}, "value")
	require.NoError(t, err)
	assert.Equal(t, "top", designVal)
}

func TestRunFailsOnUnknownTool(t *testing.T) {
	buildDir := t.TempDir()
	registry := plugin.NewRegistry()

	flow := BuildSingleToolFlow("default", "nosuchtool")
	store := newRunStore(t)

	cfg := Config{
		Flow:     flow,
		Store:    store,
		Registry: registry,
		Design:   "top",
		JobName:  "job0",
		BuildDir: buildDir,
	}

	err := Run(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunRejectsMissingFlowOrStore(t *testing.T) {
	assert.Error(t, Run(context.Background(), Config{}))
}
