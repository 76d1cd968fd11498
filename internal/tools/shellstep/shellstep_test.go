package shellstep

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/sc/internal/schema"
)

func TestMetadataIsWellFormed(t *testing.T) {
	a := New()
	meta := a.Metadata()
	assert.Equal(t, "shell", meta.Name)
	require.NoError(t, meta.Validate())
}

func TestSetupDeclaresEdaNamespace(t *testing.T) {
	a := New()
	s := schema.New(nil)
	require.NoError(t, a.Setup(context.Background(), s, "synth", "0"))

	require.NoError(t, s.Set([]string{"eda", "shell", "synth", "0", "exe"}, "yosys", "value", true))
	v, err := s.Get([]string{"eda", "shell", "synth", "0", "exe"}, "value")
	require.NoError(t, err)
	assert.Equal(t, "yosys", v)
}

func TestParseVersionExtractsFirstToken(t *testing.T) {
	a := New()
	v, err := a.ParseVersion("yosys 0.32 (git sha1 abc)")
	require.NoError(t, err)
	assert.Equal(t, "0.32", v)
}

func TestParseVersionErrorsWithoutToken(t *testing.T) {
	a := New()
	_, err := a.ParseVersion("no version info here")
	assert.Error(t, err)
}

func TestRuntimeOptionsReadsDeclaredList(t *testing.T) {
	a := New()
	s := schema.New(nil)
	require.NoError(t, a.Setup(context.Background(), s, "synth", "0"))
	require.NoError(t, s.Set([]string{"eda", "shell", "synth", "0", "option"}, []string{"-q", "-s", "script.ys"}, "value", true))

	opts, err := a.RuntimeOptions(context.Background(), s, "synth", "0")
	require.NoError(t, err)
	assert.Equal(t, []string{"-q", "-s", "script.ys"}, opts)
}

func TestRuntimeOptionsEmptyWhenUnset(t *testing.T) {
	a := New()
	s := schema.New(nil)
	require.NoError(t, a.Setup(context.Background(), s, "synth", "0"))

	opts, err := a.RuntimeOptions(context.Background(), s, "synth", "0")
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestInputOutputFilesAreIntentionallyNil(t *testing.T) {
	a := New()
	assert.Nil(t, a.InputFiles("synth", "0"))
	assert.Nil(t, a.OutputFiles("synth", "0"))
}
