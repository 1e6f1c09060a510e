package kernels

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/mpi"
)

// RingResult reports a ring matmul. All fields are identical on every rank.
type RingResult struct {
	N      int
	Ranks  int
	Time   time.Duration // slowest rank
	GFlops float64       // 2N³ / Time
	MaxErr float64       // max |C - N| over all ranks
}

// RingMatMul multiplies N×N matrices A = B = 1 with the ring-panel
// algorithm. A and C are split into row blocks; B is split into row panels
// that travel around the ring, one Sendrecv per step, so after Size steps
// every rank has multiplied its A block with all of B. Every entry of C must
// equal N.
func RingMatMul(ctx context.Context, comm *mpi.Comm, n int) (RingResult, error) {
	if n < 1 {
		return RingResult{}, paraprof.NewInvalidArgError("RingMatMul", "N must be a positive integer")
	}
	rank, size := comm.Rank(), comm.Size()
	counts, offs := mpi.SplitSizes(n, size)
	rows := counts[rank]

	aData, err := paraprof.AllocFloat64(rows * n)
	if err != nil {
		return RingResult{}, err
	}
	panel, err := paraprof.AllocFloat64(rows * n)
	if err != nil {
		return RingResult{}, err
	}
	cData, err := paraprof.AllocFloat64(rows * n)
	if err != nil {
		return RingResult{}, err
	}
	for i := range aData {
		aData[i] = 1
		panel[i] = 1
	}
	a := blas64.General{Rows: rows, Cols: n, Stride: n, Data: aData}
	c := blas64.General{Rows: rows, Cols: n, Stride: n, Data: cData}

	left := (rank - 1 + size) % size
	right := (rank + 1) % size
	owner := rank

	if err := comm.Barrier(ctx); err != nil {
		return RingResult{}, err
	}
	t0 := time.Now()

	for step := 0; step < size; step++ {
		ks, kc := offs[owner], counts[owner]
		if rows > 0 && kc > 0 {
			// C += A[:, ks:ks+kc] × panel
			aSub := blas64.General{Rows: rows, Cols: kc, Stride: n, Data: a.Data[ks:]}
			b := blas64.General{Rows: kc, Cols: n, Stride: n, Data: panel}
			blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, aSub, b, 1, c)
		}
		if size > 1 {
			panel, err = comm.Sendrecv(ctx, panel, right, left)
			if err != nil {
				return RingResult{}, err
			}
			owner = (owner - 1 + size) % size
		}
	}

	if err := comm.Barrier(ctx); err != nil {
		return RingResult{}, err
	}
	dt := time.Since(t0)

	var localErr float64
	for _, v := range c.Data {
		localErr = math.Max(localErr, math.Abs(v-float64(n)))
	}
	maxes, err := comm.Allreduce(ctx, []float64{localErr, dt.Seconds()}, mpi.OpMax)
	if err != nil {
		return RingResult{}, err
	}

	res := RingResult{
		N:      n,
		Ranks:  size,
		Time:   time.Duration(maxes[1] * float64(time.Second)),
		MaxErr: maxes[0],
		GFlops: math.Inf(1),
	}
	if maxes[1] > 0 {
		res.GFlops = 2 * float64(n) * float64(n) * float64(n) / (maxes[1] * 1e9)
	}
	return res, nil
}
