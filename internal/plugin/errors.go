package plugin

import (
	"fmt"
	"strings"
)

// ErrAdapterNotFound is returned when the requested tool adapter is not
// registered in the compiled-in registry.
type ErrAdapterNotFound struct {
	Name string
}

func (e ErrAdapterNotFound) Error() string {
	return fmt.Sprintf("tool adapter %q not found in registry; ensure its package is imported for its init() to run", e.Name)
}

// ErrCircularDependency is returned when a tool adapter dependency cycle
// is detected (e.g. adapter A declares a Dependency on B, which declares
// one back on A).
type ErrCircularDependency struct {
	Cycle []string
}

func (e ErrCircularDependency) Error() string {
	if len(e.Cycle) == 0 {
		return "circular tool adapter dependency detected"
	}
	sequence := append(append([]string{}, e.Cycle...), e.Cycle[0])
	return fmt.Sprintf("circular tool adapter dependency: %s", strings.Join(sequence, " -> "))
}

// ErrMissingDependency is returned when a declared dependency has not
// been registered.
type ErrMissingDependency struct {
	Adapter    string
	Dependency string
}

func (e ErrMissingDependency) Error() string {
	return fmt.Sprintf("tool adapter %q declares dependency %q which is not registered", e.Adapter, e.Dependency)
}
