// Tolerance-based verification for floating-point results
package paraprof

import (
	"fmt"
	"math"
)

// ToleranceConfig defines tolerance parameters for floating-point comparison.
// Two values are near-equal when any of the absolute, relative or ULP checks
// passes.
type ToleranceConfig struct {
	// AbsTol is the absolute tolerance for values near zero
	AbsTol float64

	// RelTol is the relative tolerance as a fraction of the larger value
	RelTol float64

	// ULPTol is the maximum allowed difference in ULPs (Units in Last Place)
	ULPTol int

	// CheckNaN determines if NaN values should be considered equal
	CheckNaN bool
}

// DefaultTolerance returns default tolerance configuration
func DefaultTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol:   1e-7,
		RelTol:   1e-5,
		ULPTol:   4,
		CheckNaN: true,
	}
}

// StrictTolerance returns strict tolerance configuration for high precision
func StrictTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol:   1e-12,
		RelTol:   1e-12,
		ULPTol:   1,
		CheckNaN: true,
	}
}

// RelaxedTolerance returns relaxed tolerance for long accumulations whose
// summation order differs between implementations.
func RelaxedTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol:   1e-5,
		RelTol:   1e-9,
		ULPTol:   16,
		CheckNaN: true,
	}
}

// SampleTolerance is the absolute-only check used for spot samples of
// float32 device results.
func SampleTolerance() ToleranceConfig {
	return ToleranceConfig{AbsTol: 1e-3}
}

// Float64NearEqual checks if two float64 values are equal within tolerance.
func Float64NearEqual(a, b float64, tol ToleranceConfig) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return tol.CheckNaN && math.IsNaN(a) && math.IsNaN(b)
	}
	// Exact equality also covers ±0 and same-signed infinities.
	if a == b {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}

	diff := math.Abs(a - b)
	if diff <= tol.AbsTol {
		return true
	}
	if diff <= math.Max(math.Abs(a), math.Abs(b))*tol.RelTol {
		return true
	}
	return tol.ULPTol > 0 && Float64ULPDiff(a, b) <= uint64(tol.ULPTol)
}

// Float32NearEqual checks if two float32 values are equal within tolerance.
func Float32NearEqual(a, b float32, tol ToleranceConfig) bool {
	if tol.ULPTol > 0 && !math.IsNaN(float64(a)) && !math.IsNaN(float64(b)) &&
		Float32ULPDiff(a, b) <= tol.ULPTol {
		return true
	}
	return Float64NearEqual(float64(a), float64(b), ToleranceConfig{
		AbsTol:   tol.AbsTol,
		RelTol:   tol.RelTol,
		CheckNaN: tol.CheckNaN,
	})
}

// Float32ULPDiff computes the difference in ULPs between two float32 values.
// Values of different sign report math.MaxInt32.
func Float32ULPDiff(a, b float32) int {
	aBits := math.Float32bits(a)
	bBits := math.Float32bits(b)

	if (aBits^bBits)&0x80000000 != 0 {
		if a == b { // +0 and -0
			return 0
		}
		return math.MaxInt32
	}
	if aBits > bBits {
		return int(aBits - bBits)
	}
	return int(bBits - aBits)
}

// Float64ULPDiff computes the difference in ULPs between two float64 values.
// Values of different sign report math.MaxUint64.
func Float64ULPDiff(a, b float64) uint64 {
	aBits := math.Float64bits(a)
	bBits := math.Float64bits(b)

	if (aBits^bBits)&(1<<63) != 0 {
		if a == b {
			return 0
		}
		return math.MaxUint64
	}
	if aBits > bBits {
		return aBits - bBits
	}
	return bBits - aBits
}

// VerificationResult summarizes an element-wise comparison.
type VerificationResult struct {
	MaxAbsError float64
	NumErrors   int
	TotalItems  int
	FirstError  int // Index of first error, -1 if none
}

// OK reports whether every compared value was within tolerance.
func (r VerificationResult) OK() bool {
	return r.NumErrors == 0
}

// String formats the verification result for display
func (r VerificationResult) String() string {
	if r.NumErrors == 0 {
		return "PASS: All values match within tolerance"
	}
	return fmt.Sprintf("FAIL: %d/%d values differ, max absolute error %e, first at index %d",
		r.NumErrors, r.TotalItems, r.MaxAbsError, r.FirstError)
}

// VerifyFloat64Array compares two float64 arrays element by element.
func VerifyFloat64Array(expected, actual []float64, tol ToleranceConfig) VerificationResult {
	result := VerificationResult{TotalItems: len(expected), FirstError: -1}
	if len(expected) != len(actual) {
		result.NumErrors = max(len(expected), len(actual))
		result.FirstError = min(len(expected), len(actual))
		return result
	}
	for i := range expected {
		result.record(i, expected[i], actual[i], Float64NearEqual(expected[i], actual[i], tol))
	}
	return result
}

// VerifyFloat32Array compares two float32 arrays element by element.
func VerifyFloat32Array(expected, actual []float32, tol ToleranceConfig) VerificationResult {
	result := VerificationResult{TotalItems: len(expected), FirstError: -1}
	if len(expected) != len(actual) {
		result.NumErrors = max(len(expected), len(actual))
		result.FirstError = min(len(expected), len(actual))
		return result
	}
	for i := range expected {
		ok := Float32NearEqual(expected[i], actual[i], tol)
		result.record(i, float64(expected[i]), float64(actual[i]), ok)
	}
	return result
}

func (r *VerificationResult) record(i int, want, got float64, ok bool) {
	if ok {
		return
	}
	r.NumErrors++
	if r.FirstError == -1 {
		r.FirstError = i
	}
	if d := math.Abs(want - got); d > r.MaxAbsError || math.IsNaN(d) {
		r.MaxAbsError = d
	}
}

// SampleIndices returns up to k evenly spaced indices in [0, n), always
// including the first and last element.
func SampleIndices(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	if k >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if k == 1 {
		return []int{0}
	}
	idx := make([]int, 0, k)
	for s := 0; s < k; s++ {
		i := int(int64(s) * int64(n-1) / int64(k-1))
		if len(idx) == 0 || idx[len(idx)-1] != i {
			idx = append(idx, i)
		}
	}
	return idx
}
