package kernels

import (
	"context"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/mpi"
)

// AxpyDot runs one AXPY and a dot product over a vector of n elements split
// across the ranks of comm: on each block x = 1 and y = rank+1, then
// y = 2x + y and the local x·y are summed over all ranks with Allreduce.
// Every rank returns the global dot product.
//
// With a non-nil dctx the AXPY and the local dot run on that device;
// otherwise they run on the host.
func AxpyDot(ctx context.Context, comm *mpi.Comm, dctx *paraprof.Context, n int) (float64, error) {
	_, count := mpi.Partition(n, comm.Size(), comm.Rank())

	x, err := paraprof.AllocFloat64(count)
	if err != nil {
		return 0, err
	}
	y, err := paraprof.AllocFloat64(count)
	if err != nil {
		return 0, err
	}
	for i := range x {
		x[i] = 1
		y[i] = float64(comm.Rank() + 1)
	}

	var local float64
	switch {
	case count == 0:
	case dctx != nil:
		local, err = axpyDotDevice(dctx, 2, x, y)
	default:
		for i := range y {
			y[i] = 2*x[i] + y[i]
		}
		for i := range x {
			local += x[i] * y[i]
		}
	}
	if err != nil {
		return 0, err
	}
	return comm.AllreduceFloat64(ctx, local, mpi.OpSum)
}

func axpyDotDevice(dctx *paraprof.Context, alpha float64, x, y []float64) (float64, error) {
	n := len(x)
	bytes := n * paraprof.Float64Size

	d_x, err := dctx.Malloc(bytes)
	if err != nil {
		return 0, err
	}
	defer dctx.Free(d_x)
	d_y, err := dctx.Malloc(bytes)
	if err != nil {
		return 0, err
	}
	defer dctx.Free(d_y)
	if err := dctx.Memcpy(d_x, x, bytes, paraprof.MemcpyHostToDevice); err != nil {
		return 0, err
	}
	if err := dctx.Memcpy(d_y, y, bytes, paraprof.MemcpyHostToDevice); err != nil {
		return 0, err
	}

	dx, dy := d_x.Float64(), d_y.Float64()
	const tpb = paraprof.DefaultBlockSize
	err = dctx.LaunchFunc(func(tid paraprof.ThreadID, _ ...any) {
		if i := tid.Global(); i < n {
			dy[i] = alpha*dx[i] + dy[i]
		}
	}, paraprof.Dim3{X: (n + tpb - 1) / tpb, Y: 1, Z: 1}, paraprof.Dim3{X: tpb, Y: 1, Z: 1})
	if err != nil {
		return 0, err
	}
	// ReduceSum launches on the same stream, after the AXPY.
	return dctx.ReduceSum(n, func(i int) float64 { return dx[i] * dy[i] })
}

// AxpyDotExpected returns Σ_r count_r·(3+r) for n elements over size ranks.
func AxpyDotExpected(n, size int) float64 {
	var sum float64
	for r := 0; r < size; r++ {
		_, count := mpi.Partition(n, size, r)
		sum += float64(count) * float64(3+r)
	}
	return sum
}
