//go:build !linux && !darwin

package paraprof

// systemMemory reports 0 (unknown) so no limit is enforced.
func systemMemory() uint64 {
	return 0
}
