package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrAdapterNotFound(t *testing.T) {
	err := ErrAdapterNotFound{Name: "synth"}
	assert.Contains(t, err.Error(), "synth")
	assert.Contains(t, err.Error(), "not found")
}

func TestErrCircularDependency(t *testing.T) {
	t.Run("with cycle", func(t *testing.T) {
		err := ErrCircularDependency{Cycle: []string{"a", "b", "c"}}
		assert.Equal(t, "circular tool adapter dependency: a -> b -> c -> a", err.Error())
	})

	t.Run("empty cycle", func(t *testing.T) {
		err := ErrCircularDependency{}
		assert.Equal(t, "circular tool adapter dependency detected", err.Error())
	})
}

func TestErrMissingDependency(t *testing.T) {
	err := ErrMissingDependency{Adapter: "pnr", Dependency: "synth"}
	assert.Contains(t, err.Error(), "pnr")
	assert.Contains(t, err.Error(), "synth")
}
