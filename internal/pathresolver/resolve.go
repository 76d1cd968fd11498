// Package pathresolver implements path resolution and import staging (C2):
// environment-variable expansion, search-path lookup across the
// installation root, the working directory, and an scpath schema
// parameter/SCPATH environment variable, plus the collect operation that
// stages external files into a run's local cache.
package pathresolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver resolves a raw path string (possibly containing $VARS and a
// leading ~) against a configured search path.
type Resolver struct {
	// Root is the package installation root, checked last.
	Root string
	// WorkDir is the current run's working directory, checked first.
	WorkDir string
	// Extra holds additional directories from the 'scpath' schema
	// parameter and the SCPATH environment variable, in that precedence
	// order, checked between WorkDir and Root.
	Extra []string
}

// New builds a Resolver from the process environment and an optional
// scpath schema parameter, following spec.md §4.2 precedence: workdir,
// scpath parameter entries, SCPATH env entries (colon-separated, POSIX
// list-separator convention), then the installation root.
func New(root, workdir string, scpathParam []string) *Resolver {
	var extra []string
	extra = append(extra, scpathParam...)
	if env := os.Getenv("SCPATH"); env != "" {
		extra = append(extra, strings.Split(env, string(os.PathListSeparator))...)
	}
	return &Resolver{Root: root, WorkDir: workdir, Extra: extra}
}

// ExpandEnv expands $VAR/${VAR} references and a leading ~ in path, the
// same substitution the teacher's config loader applies to string fields
// pulled from YAML before they reach disk I/O.
func ExpandEnv(path string) string {
	expanded := os.Expand(path, os.Getenv)
	if strings.HasPrefix(expanded, "~"+string(os.PathSeparator)) || expanded == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	return expanded
}

// Resolve locates path on the search path and returns its absolute form.
// When missingOK is false and no candidate exists, an error is returned;
// when true, the first candidate (workdir-relative) is returned even if it
// does not exist, so callers can still use it as an output destination.
func (r *Resolver) Resolve(path string, missingOK bool) (string, error) {
	expanded := ExpandEnv(path)
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}

	candidates := make([]string, 0, len(r.Extra)+2)
	if r.WorkDir != "" {
		candidates = append(candidates, filepath.Join(r.WorkDir, expanded))
	}
	for _, dir := range r.Extra {
		candidates = append(candidates, filepath.Join(ExpandEnv(dir), expanded))
	}
	if r.Root != "" {
		candidates = append(candidates, filepath.Join(r.Root, expanded))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	if missingOK {
		if len(candidates) > 0 {
			return candidates[0], nil
		}
		return expanded, nil
	}
	return "", fmt.Errorf("path %q not found on search path (checked %d candidates)", path, len(candidates))
}

// StagedName computes the collision-resistant local filename used when an
// external file is staged into a run's import cache: the basename with a
// hash of its original absolute path spliced in before the extension,
// e.g. "rtl_3f2a9c1d.v" (spec.md §4.2 "import staging").
func StagedName(origPath string) string {
	abs, err := filepath.Abs(origPath)
	if err != nil {
		abs = origPath
	}
	ext := filepath.Ext(origPath)
	base := strings.TrimSuffix(filepath.Base(origPath), ext)
	return fmt.Sprintf("%s_%s%s", base, shortHash(abs), ext)
}
