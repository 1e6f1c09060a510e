//go:build linux

package paraprof

import "golang.org/x/sys/unix"

// systemMemory returns the physical memory size in bytes, or 0 if unknown.
func systemMemory() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
