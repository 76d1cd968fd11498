package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSubprocessCapturesLogAndSucceeds(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "synth.log")

	res, err := RunSubprocess(context.Background(), dir, []string{"echo", "hello world"}, os.Environ(), logPath, true, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.TimedOut)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
}

func TestRunSubprocessReportsNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "synth.log")

	res, err := RunSubprocess(context.Background(), dir, []string{"sh", "-c", "exit 7"}, os.Environ(), logPath, true, 0)
	require.Error(t, err)
	assert.Equal(t, 7, res.ExitCode)
}

func TestRunSubprocessTimesOut(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "synth.log")

	res, err := RunSubprocess(context.Background(), dir, []string{"sleep", "5"}, os.Environ(), logPath, true, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, res.TimedOut)
}

func TestRunSubprocessRejectsEmptyArgv(t *testing.T) {
	_, err := RunSubprocess(context.Background(), t.TempDir(), nil, nil, filepath.Join(t.TempDir(), "x.log"), true, 0)
	assert.Error(t, err)
}

func TestStreamVersionReturnsFirstLine(t *testing.T) {
	out, err := StreamVersion(context.Background(), t.TempDir(), "echo", []string{"2.4.1\nextra"})
	require.NoError(t, err)
	assert.Equal(t, "2.4.1", out)
}
