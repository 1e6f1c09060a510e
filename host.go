package paraprof

import (
	"fmt"
	"math"
)

// hostLimit is the largest single host allocation in bytes; 0 means
// unlimited. Guarded by stateMu.
var hostLimit uint64

// HostMemoryLimit returns the host allocation limit in bytes (0 if unlimited).
func HostMemoryLimit() uint64 {
	ensureInit()
	stateMu.Lock()
	defer stateMu.Unlock()
	return hostLimit
}

// SetHostMemoryLimit overrides the host allocation limit. It returns the
// previous value so tests can restore it.
func SetHostMemoryLimit(limit uint64) uint64 {
	ensureInit()
	stateMu.Lock()
	defer stateMu.Unlock()
	old := hostLimit
	hostLimit = limit
	return old
}

// AllocFloat64 allocates a zeroed host buffer of n float64s. A request larger
// than the host memory limit returns a Memory error instead of crashing the
// process.
func AllocFloat64(n int) ([]float64, error) {
	if err := checkHost("AllocFloat64", n, Float64Size); err != nil {
		return nil, err
	}
	return makeHost[float64](n)
}

// AllocFloat32 allocates a zeroed host buffer of n float32s.
func AllocFloat32(n int) ([]float32, error) {
	if err := checkHost("AllocFloat32", n, Float32Size); err != nil {
		return nil, err
	}
	return makeHost[float32](n)
}

func checkHost(op string, n, elem int) error {
	if n < 0 {
		return NewInvalidArgError(op, fmt.Sprintf("negative length %d", n))
	}
	if uint64(n) > math.MaxInt64/uint64(elem) {
		return NewMemoryError(op, fmt.Sprintf("%d elements overflow the address space", n), nil)
	}
	bytes := uint64(n) * uint64(elem)
	if limit := HostMemoryLimit(); limit > 0 && bytes > limit {
		return NewMemoryError(op,
			fmt.Sprintf("cannot allocate %d bytes: host limit is %d bytes", bytes, limit), nil)
	}
	return nil
}

func makeHost[T float32 | float64](n int) (buf []T, err error) {
	defer func() {
		// makeslice panics on lengths the runtime cannot represent.
		if r := recover(); r != nil {
			buf, err = nil, NewMemoryError("Alloc", fmt.Sprintf("%v", r), nil)
		}
	}()
	return make([]T, n), nil
}
