package plugin

import (
	"fmt"
	"regexp"
	"strings"
)

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Validate ensures adapter metadata is well-formed before it is accepted
// into the registry. APIVersion is parsed with ParseVersionConstraint (the
// same "N.x" grammar the teacher's plugin system used for cross-plugin
// compatibility pinning), so a malformed APIVersion fails here rather than
// later at first Satisfies() check.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("tool adapter metadata requires a non-empty Name")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("tool adapter '%s' metadata requires Version", m.Name)
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("tool adapter '%s' has invalid Version '%s' (expected format: X.Y.Z)", m.Name, m.Version)
	}
	if strings.TrimSpace(m.APIVersion) == "" {
		return fmt.Errorf("tool adapter '%s' metadata requires APIVersion", m.Name)
	}
	if _, err := ParseVersionConstraint(m.APIVersion); err != nil {
		return fmt.Errorf("tool adapter '%s' has invalid APIVersion: %w", m.Name, err)
	}

	seenDeps := map[string]struct{}{}
	for _, dep := range m.Dependencies {
		if strings.TrimSpace(dep.Name) == "" {
			return fmt.Errorf("tool adapter '%s' declares dependency with empty name", m.Name)
		}
		if dep.Name == m.Name {
			return fmt.Errorf("tool adapter '%s' cannot depend on itself", m.Name)
		}
		if _, exists := seenDeps[dep.Name]; exists {
			return fmt.Errorf("tool adapter '%s' lists dependency '%s' more than once", m.Name, dep.Name)
		}
		seenDeps[dep.Name] = struct{}{}
	}

	return nil
}
