package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"design"}, Param{Type: TypeStr}))
	require.NoError(t, s.Set([]string{"design"}, "top", "value", true))
	require.NoError(t, s.Declare([]string{"input", "rtl"}, Param{Type: TypeFile, IsList: true}))
	require.NoError(t, s.Set([]string{"input", "rtl"}, []string{"a.v", "b.v"}, "value", true))

	data, err := EncodeJSON(s.Root())
	require.NoError(t, err)

	decoded, err := DecodeJSON(data)
	require.NoError(t, err)

	restored := FromNode(decoded, nil)

	design, err := restored.Get([]string{"design"}, "value")
	require.NoError(t, err)
	assert.Equal(t, "top", design)

	rtl, err := restored.Get([]string{"input", "rtl"}, "value")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a.v", "b.v"}, rtl)
}

func TestValidateManifestAcceptsEncodedStore(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Declare([]string{"design"}, Param{Type: TypeStr}))
	require.NoError(t, s.Set([]string{"design"}, "top", "value", true))

	assert.NoError(t, ValidateManifest(ToMap(s.Root())))
}

func TestFromNodeDefaultsToEmptyBranch(t *testing.T) {
	restored := FromNode(nil, nil)
	keys, err := restored.GetKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}
