//go:build !unix

package task

// kernelVersion has no portable syscall on this platform (SPEC_FULL.md
// §3.6: "else empty").
func kernelVersion() string { return "" }
