package kernels

import (
	"context"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/parallel"
)

// RowsPerStrip is the number of rows a thread takes from the work queue at a
// time in MatMulThreads.
const RowsPerStrip = 64

// Operand values of MatMulThreads.
const (
	StripA = 1.0
	StripB = 3.0
)

// MatMulThreads computes C = A×B for dense n×n matrices A = 1 and B = 3
// with team. Threads take strips of rows from a dynamic work queue; within a
// strip the i-k-j loop order streams rows of B and C.
func MatMulThreads(ctx context.Context, team *parallel.Team, n int) ([]float64, error) {
	nn, err := MatrixLen("MatMulThreads", n)
	if err != nil {
		return nil, err
	}
	a, err := paraprof.AllocFloat64(nn)
	if err != nil {
		return nil, err
	}
	b, err := paraprof.AllocFloat64(nn)
	if err != nil {
		return nil, err
	}
	c, err := paraprof.AllocFloat64(nn)
	if err != nil {
		return nil, err
	}
	for i := range a {
		a[i] = StripA
		b[i] = StripB
	}

	err = team.For(ctx, n, parallel.DynamicSchedule(RowsPerStrip), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			cRow := c[i*n : (i+1)*n]
			for k := 0; k < n; k++ {
				aik := a[i*n+k]
				bRow := b[k*n : (k+1)*n]
				for j, bkj := range bRow {
					cRow[j] += aik * bkj
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MatMulThreadsExpected is the value of every entry of MatMulThreads' result.
func MatMulThreadsExpected(n int) float64 {
	return StripA * StripB * float64(n)
}
