package paraprof

import (
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// CPUFeatures tracks the SIMD extensions of the cores backing the devices.
type CPUFeatures struct {
	HasSSE4    bool
	HasAVX     bool
	HasAVX2    bool
	HasFMA     bool
	HasAVX512F bool
	HasNEON    bool
	HasFP16    bool
	HasSVE     bool
}

var cpuFeatures = detectCPUFeatures()

func detectCPUFeatures() CPUFeatures {
	return CPUFeatures{
		HasSSE4:    cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:     cpu.X86.HasAVX,
		HasAVX2:    cpu.X86.HasAVX2,
		HasFMA:     cpu.X86.HasFMA,
		HasAVX512F: cpu.X86.HasAVX512F,
		// ASIMD is NEON
		HasNEON: cpu.ARM64.HasASIMD,
		HasFP16: cpu.ARM64.HasFPHP && cpu.ARM64.HasASIMDHP,
		HasSVE:  cpu.ARM64.HasSVE,
	}
}

// GetCPUFeatures returns the detected CPU features.
func GetCPUFeatures() CPUFeatures {
	return cpuFeatures
}

// SIMDLevel returns the widest vector extension available, e.g. "AVX2".
func SIMDLevel() string {
	f := cpuFeatures
	switch {
	case f.HasAVX512F:
		return "AVX512"
	case f.HasAVX2 && f.HasFMA:
		return "AVX2"
	case f.HasAVX:
		return "AVX"
	case f.HasSSE4:
		return "SSE4"
	case f.HasSVE:
		return "SVE"
	case f.HasNEON:
		return "NEON"
	}
	return "scalar"
}

// GetCPUInfo returns a string describing available CPU features
func GetCPUInfo() string {
	var features []string
	add := func(ok bool, name string) {
		if ok {
			features = append(features, name)
		}
	}
	f := cpuFeatures
	add(f.HasSSE4, "SSE4")
	add(f.HasAVX, "AVX")
	add(f.HasAVX2, "AVX2")
	add(f.HasFMA, "FMA")
	add(f.HasAVX512F, "AVX512F")
	add(f.HasNEON, "NEON")
	add(f.HasFP16, "FP16")
	add(f.HasSVE, "SVE")

	if len(features) == 0 {
		return runtime.GOARCH + ": no SIMD extensions detected"
	}
	return runtime.GOARCH + ": " + strings.Join(features, ", ")
}
