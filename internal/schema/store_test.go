package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclareRunDefaultsEnablesAdHocTaskKeypaths(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.DeclareRunDefaults())

	require.NoError(t, s.Set([]string{"flowstatus", "synth", "0", "error"}, false, "value", true))
	require.NoError(t, s.Set([]string{"metric", "synth", "0", "exetime", "real"}, 1.5, "value", true))
	require.NoError(t, s.Set([]string{"record", "synth", "0", "runid"}, "abc123", "value", true))

	v, err := s.Get([]string{"metric", "synth", "0", "exetime", "real"}, "value")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	// A second instance under a different step/index must be independent.
	require.NoError(t, s.Set([]string{"flowstatus", "place", "0", "error"}, true, "value", true))
	synthErr, err := s.Get([]string{"flowstatus", "synth", "0", "error"}, "value")
	require.NoError(t, err)
	assert.Equal(t, false, synthErr)
}

func TestDeclareRunDefaultsIsIdempotent(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.DeclareRunDefaults())
	require.NoError(t, s.DeclareRunDefaults())
}

func TestDeclareAndGetSet(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"design"}, Param{Type: TypeStr}))

	require.NoError(t, s.Set([]string{"design"}, "top", "value", true))

	v, err := s.Get([]string{"design"}, "value")
	require.NoError(t, err)
	assert.Equal(t, "top", v)
}

func TestSetScalarRejectsList(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"design"}, Param{Type: TypeStr}))

	err := s.Set([]string{"design"}, []string{"a", "b"}, "value", true)
	assert.Error(t, err)
	assert.True(t, s.Error())
}

func TestSetListAutoWrapsScalar(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"option"}, Param{Type: TypeStr, IsList: true}))

	require.NoError(t, s.Set([]string{"option"}, "-v", "value", true))
	v, err := s.Get([]string{"option"}, "value")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"-v"}, v)
}

func TestSetNoClobberSkipsNonEmpty(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"design"}, Param{Type: TypeStr}))
	require.NoError(t, s.Set([]string{"design"}, "top", "value", true))

	require.NoError(t, s.Set([]string{"design"}, "other", "value", false))

	v, err := s.Get([]string{"design"}, "value")
	require.NoError(t, err)
	assert.Equal(t, "top", v)
}

func TestDefaultTemplateInstantiation(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"metric", "default", "default"}, Param{Type: TypeFloat}))

	require.NoError(t, s.Set([]string{"metric", "place", "0"}, 1.5, "value", true))

	v, err := s.Get([]string{"metric", "place", "0"}, "value")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 0.0001)

	// a second wildcard instance is independent of the first
	require.NoError(t, s.Set([]string{"metric", "synth", "0"}, 2.5, "value", true))
	v2, err := s.Get([]string{"metric", "synth", "0"}, "value")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, v2, 0.0001)

	v, err = s.Get([]string{"metric", "place", "0"}, "value")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 0.0001)
}

func TestGetMissingKeypathFailsAndLatchesError(t *testing.T) {
	s := New(nil)
	_, err := s.Get([]string{"nope"}, "value")
	assert.Error(t, err)
	assert.True(t, s.Error())

	s.ClearError()
	assert.False(t, s.Error())
}

func TestAddAppendsToListParameter(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"record", "default", "default", "filehash"}, Param{Type: TypeStr, IsList: true}))

	require.NoError(t, s.Add([]string{"record", "synth", "0", "filehash"}, "abc123", "filehash"))
	require.NoError(t, s.Add([]string{"record", "synth", "0", "filehash"}, "def456", "filehash"))

	node, err := s.GetDict("record", "synth", "0", "filehash")
	require.NoError(t, err)
	require.NotNil(t, node.Param)
	assert.Equal(t, []string{"abc123", "def456"}, node.Param.FileHash)
}

func TestLockPreventsWrites(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"design"}, Param{Type: TypeStr}))
	require.NoError(t, s.Set([]string{"design"}, true, "lock", true))

	require.NoError(t, s.Set([]string{"design"}, "ignored", "value", true))

	v, err := s.Get([]string{"design"}, "value")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCloneIsIndependent(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"design"}, Param{Type: TypeStr}))
	require.NoError(t, s.Set([]string{"design"}, "top", "value", true))

	clone := s.Clone()
	require.NoError(t, clone.Set([]string{"design"}, "changed", "value", true))

	original, err := s.Get([]string{"design"}, "value")
	require.NoError(t, err)
	assert.Equal(t, "top", original)

	cloned, err := clone.Get([]string{"design"}, "value")
	require.NoError(t, err)
	assert.Equal(t, "changed", cloned)
}

func TestGetKeysExcludesDefault(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"metric", "default", "default"}, Param{Type: TypeFloat}))
	require.NoError(t, s.Set([]string{"metric", "place", "0"}, 1.0, "value", true))

	keys, err := s.GetKeys("metric")
	require.NoError(t, err)
	assert.Equal(t, []string{"place"}, keys)
}

func TestValidHonoursDefaultTemplate(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"metric", "default", "default"}, Param{Type: TypeFloat}))

	assert.True(t, s.Valid([]string{"metric", "place", "0"}, true))
	assert.False(t, s.Valid([]string{"metric", "place", "0"}, false))
	assert.False(t, s.Valid([]string{"nonexistent"}, true))
}
