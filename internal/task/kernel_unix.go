//go:build unix

package task

import "golang.org/x/sys/unix"

// kernelVersion returns the uname -r equivalent kernel release string
// (SPEC_FULL.md §3.6), empty if the syscall fails.
func kernelVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return utsnameToString(uts.Release[:])
}

func utsnameToString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
