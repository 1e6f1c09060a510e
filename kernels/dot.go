package kernels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/mpi"
	"github.com/paraprof/paraprof/parallel"
)

// FillDot fills the dot product operands for global indices [start,
// start+len(a)): a[i] = g and b[i] = 1/(g+1) with g = start+i.
func FillDot(ctx context.Context, team *parallel.Team, a, b []float64, start int) error {
	if len(a) != len(b) {
		return paraprof.NewInvalidArgError("FillDot", "operands differ in length")
	}
	return team.For(ctx, len(a), parallel.StaticSchedule(), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			g := float64(start + i)
			a[i] = g
			b[i] = 1 / (g + 1)
		}
	})
}

// fillDotSerial is FillDot on the calling goroutine, as a host
// initialisation before an offload.
func fillDotSerial(a, b []float64) {
	for i := range a {
		g := float64(i)
		a[i] = g
		b[i] = 1 / (g + 1)
	}
}

// DotThreads returns Σ a[i]*b[i] computed by team with a static schedule.
func DotThreads(ctx context.Context, team *parallel.Team, a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, paraprof.NewInvalidArgError("DotThreads", "operands differ in length")
	}
	return team.ReduceSum(ctx, len(a), parallel.StaticSchedule(), func(lo, hi int) float64 {
		var s float64
		for i := lo; i < hi; i++ {
			s += a[i] * b[i]
		}
		return s
	})
}

// Dot allocates and fills the operands of length n and returns their dot
// product computed by team.
func Dot(ctx context.Context, team *parallel.Team, n int) (float64, error) {
	a, err := paraprof.AllocFloat64(n)
	if err != nil {
		return 0, err
	}
	b, err := paraprof.AllocFloat64(n)
	if err != nil {
		return 0, err
	}
	if err := FillDot(ctx, team, a, b, 0); err != nil {
		return 0, err
	}
	return DotThreads(ctx, team, a, b)
}

// DotDistributed computes the dot product of length n across the ranks of
// comm. Each rank fills and reduces its block of [0, n) with team, then the
// partial sums are reduced onto rank 0. The sum is only meaningful on rank 0.
func DotDistributed(ctx context.Context, comm *mpi.Comm, team *parallel.Team, n int) (float64, error) {
	start, count := mpi.Partition(n, comm.Size(), comm.Rank())
	slog.Debug("dot block", "rank", comm.Rank(), "start", start, "n", count)

	a, err := paraprof.AllocFloat64(count)
	if err != nil {
		return 0, err
	}
	b, err := paraprof.AllocFloat64(count)
	if err != nil {
		return 0, err
	}
	if err := FillDot(ctx, team, a, b, start); err != nil {
		return 0, err
	}
	local, err := DotThreads(ctx, team, a, b)
	if err != nil {
		return 0, err
	}
	return comm.ReduceFloat64(ctx, local, mpi.OpSum, 0)
}

// DotOffload computes the dot product of length n on the device of dctx:
// the operands are initialised on the host, copied in, reduced on the
// device, and only the scalar comes back.
func DotOffload(dctx *paraprof.Context, n int) (float64, error) {
	if n <= 0 {
		return 0, paraprof.NewInvalidArgError("DotOffload", fmt.Sprintf("n must be positive, got %d", n))
	}
	a, err := paraprof.AllocFloat64(n)
	if err != nil {
		return 0, err
	}
	b, err := paraprof.AllocFloat64(n)
	if err != nil {
		return 0, err
	}
	fillDotSerial(a, b)

	bytes := n * paraprof.Float64Size
	bufA, err := dctx.Malloc(bytes)
	if err != nil {
		return 0, err
	}
	defer dctx.Free(bufA)
	bufB, err := dctx.Malloc(bytes)
	if err != nil {
		return 0, err
	}
	defer dctx.Free(bufB)

	if err := dctx.Memcpy(bufA, a, bytes, paraprof.MemcpyHostToDevice); err != nil {
		return 0, err
	}
	if err := dctx.Memcpy(bufB, b, bytes, paraprof.MemcpyHostToDevice); err != nil {
		return 0, err
	}

	da, db := bufA.Float64(), bufB.Float64()
	return dctx.ReduceSum(n, func(i int) float64 { return da[i] * db[i] })
}

// DotExpected returns Σ_{i<n} i/(i+1) = n - H(n), where H is the harmonic
// number. The sum approaches n only asymptotically.
func DotExpected(n int) float64 {
	var h float64
	for k := n; k >= 1; k-- {
		h += 1 / float64(k)
	}
	return float64(n) - h
}
