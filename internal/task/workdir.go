// Package task implements the per-(step,index) task runner (C4): the 27
// step workflow in spec.md §4.4, from the upstream wait through manifest
// emission.
package task

import (
	"os"
	"path/filepath"
)

// WorkDir is the isolated scratch directory for one (step,index), laid
// out per spec.md §6 "On-disk layout".
type WorkDir struct {
	Root    string
	Inputs  string
	Outputs string
	Reports string
}

// NewWorkDir computes the canonical path <builddir>/<design>/<jobname>/<step>/<index>.
func NewWorkDir(buildDir, design, jobname, step, index string) WorkDir {
	root := filepath.Join(buildDir, design, jobname, step, index)
	return WorkDir{
		Root:    root,
		Inputs:  filepath.Join(root, "inputs"),
		Outputs: filepath.Join(root, "outputs"),
		Reports: filepath.Join(root, "reports"),
	}
}

// Prepare removes any stale directory and recreates the inputs/outputs/
// reports layout (spec.md §4.4 step 4).
func (w WorkDir) Prepare() error {
	if err := os.RemoveAll(w.Root); err != nil {
		return err
	}
	for _, dir := range []string{w.Inputs, w.Outputs, w.Reports} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// UpstreamDir returns the outputs/ directory of an upstream (step,index)
// under the same jobname, the path every upstream read happens under
// (spec.md §5 "Resource discipline").
func UpstreamDir(buildDir, design, jobname, step, index string) string {
	return filepath.Join(NewWorkDir(buildDir, design, jobname, step, index).Outputs)
}
