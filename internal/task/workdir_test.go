package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkDirLayout(t *testing.T) {
	w := NewWorkDir("/build", "top", "job0", "synth", "0")
	assert.Equal(t, filepath.Join("/build", "top", "job0", "synth", "0"), w.Root)
	assert.Equal(t, filepath.Join(w.Root, "inputs"), w.Inputs)
	assert.Equal(t, filepath.Join(w.Root, "outputs"), w.Outputs)
	assert.Equal(t, filepath.Join(w.Root, "reports"), w.Reports)
}

func TestPrepareClearsStaleContentsAndCreatesLayout(t *testing.T) {
	buildDir := t.TempDir()
	w := NewWorkDir(buildDir, "top", "job0", "synth", "0")

	require.NoError(t, os.MkdirAll(w.Root, 0o755))
	stale := filepath.Join(w.Root, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	require.NoError(t, w.Prepare())

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))

	for _, dir := range []string{w.Inputs, w.Outputs, w.Reports} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestUpstreamDirPointsAtOutputs(t *testing.T) {
	got := UpstreamDir("/build", "top", "job0", "synth", "0")
	assert.Equal(t, filepath.Join("/build", "top", "job0", "synth", "0", "outputs"), got)
}
