//go:build darwin

package paraprof

import "golang.org/x/sys/unix"

// systemMemory returns the physical memory size in bytes, or 0 if unknown.
func systemMemory() uint64 {
	n, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	return n
}
