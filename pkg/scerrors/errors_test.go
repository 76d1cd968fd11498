package scerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaErrorWrapsAndFormats(t *testing.T) {
	root := errors.New("keypath does not exist")
	err := NewSchemaError("metric,synth,0,real", "value", root)

	assert.Contains(t, err.Error(), "metric,synth,0,real")
	assert.Contains(t, err.Error(), "keypath does not exist")

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Same(t, root, errors.Unwrap(se))
}

func TestSchemaErrorOmitsRedundantValueField(t *testing.T) {
	err := NewSchemaError("design", "value", errors.New("boom"))
	assert.NotContains(t, err.Error(), "].value:")
}

func TestPathErrorWrapsAndFormats(t *testing.T) {
	root := errors.New("no such file")
	err := NewPathError("/build/top/job0/inputs/design.v", root)

	assert.Contains(t, err.Error(), "/build/top/job0/inputs/design.v")

	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Same(t, root, errors.Unwrap(pe))
}

func TestFlowgraphErrorFormatsWithAndWithoutStep(t *testing.T) {
	withStep := NewFlowgraphError("default", "synth0", errors.New("cycle"))
	assert.Contains(t, withStep.Error(), "default/synth0")

	withoutStep := NewFlowgraphError("default", "", errors.New("empty flow"))
	assert.Contains(t, withoutStep.Error(), "[default]")
}

func TestTaskErrorWrapsAndFormats(t *testing.T) {
	root := errors.New("exit status 1")
	err := NewTaskError("synth", "0", root)

	assert.Contains(t, err.Error(), "synth0")

	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Same(t, root, errors.Unwrap(te))
}

func TestHaltErrorCarriesUpstreamIdentityWithNoUnwrap(t *testing.T) {
	err := NewHaltError("place", "0", "synth0")

	var he *HaltError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "synth0", he.UpstreamOf)
	assert.Contains(t, err.Error(), "synth0")

	assert.Nil(t, errors.Unwrap(err))
}

func TestRemoteErrorWrapsAndFormats(t *testing.T) {
	root := errors.New("no cluster configured")
	err := NewRemoteError("synth", root)

	assert.Contains(t, err.Error(), "synth")

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Same(t, root, errors.Unwrap(re))
}
