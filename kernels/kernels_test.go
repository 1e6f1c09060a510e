package kernels

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/mpi"
	"github.com/paraprof/paraprof/parallel"
)

func newDevice(t *testing.T) *paraprof.Context {
	t.Helper()
	dctx, err := paraprof.NewContext(0)
	require.NoError(t, err)
	t.Cleanup(dctx.Destroy)
	return dctx
}

func TestPow10(t *testing.T) {
	for _, threads := range []int{1, 4} {
		team := parallel.NewTeam(threads)
		a := make([]float64, 1000)
		require.NoError(t, Fill(context.Background(), team, a, 1.0001))
		require.NoError(t, Pow10(context.Background(), team, a, 3))

		want := Pow10Expected(1.0001)
		for i, v := range a {
			require.Equal(t, want, v, "element %d", i)
		}
		assert.InEpsilon(t, Pow10Closed(1.0001), want, 1e-12)
	}
}

func TestPow10Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Pow10(ctx, parallel.NewTeam(2), make([]float64, 10), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDotThreads(t *testing.T) {
	for _, n := range []int{1, 7, 1000, 100003} {
		for _, threads := range []int{1, 3, 8} {
			t.Run(fmt.Sprintf("n=%d/threads=%d", n, threads), func(t *testing.T) {
				team := parallel.NewTeam(threads)
				a := make([]float64, n)
				b := make([]float64, n)
				require.NoError(t, FillDot(context.Background(), team, a, b, 0))

				got, err := DotThreads(context.Background(), team, a, b)
				require.NoError(t, err)
				tol := 1e-12 * float64(n)
				assert.InDelta(t, floats.Dot(a, b), got, tol)
				assert.InDelta(t, DotExpected(n), got, tol)

				again, err := DotThreads(context.Background(), team, a, b)
				require.NoError(t, err)
				assert.Equal(t, got, again, "reduction must be deterministic")
			})
		}
	}
}

func TestDotLengthMismatch(t *testing.T) {
	_, err := DotThreads(context.Background(), parallel.NewTeam(2), make([]float64, 3), make([]float64, 4))
	assert.True(t, paraprof.IsInvalidArgError(err))
	err = FillDot(context.Background(), parallel.NewTeam(2), make([]float64, 3), make([]float64, 4), 0)
	assert.True(t, paraprof.IsInvalidArgError(err))
}

func TestDotExpected(t *testing.T) {
	assert.Equal(t, 0.0, DotExpected(1))
	assert.InDelta(t, 2-1.5, DotExpected(2), 1e-15)
	// n - H(n) approaches n - ln n - γ.
	n := 1_000_000
	assert.InDelta(t, float64(n)-math.Log(float64(n))-0.5772156649, DotExpected(n), 1e-6)
}

func TestDotDistributed(t *testing.T) {
	for _, tc := range []struct{ n, ranks int }{
		{10, 1}, {10, 3}, {1001, 4}, {2, 4},
	} {
		t.Run(fmt.Sprintf("n=%d/ranks=%d", tc.n, tc.ranks), func(t *testing.T) {
			var sum float64
			err := mpi.Run(context.Background(), tc.ranks, func(ctx context.Context, c *mpi.Comm) error {
				s, err := DotDistributed(ctx, c, parallel.NewTeam(2), tc.n)
				if c.Rank() == 0 {
					sum = s
				}
				return err
			})
			require.NoError(t, err)
			assert.InDelta(t, DotExpected(tc.n), sum, 1e-12*float64(tc.n))
		})
	}
}

func TestDot(t *testing.T) {
	got, err := Dot(context.Background(), parallel.NewTeam(4), 5000)
	require.NoError(t, err)
	assert.InDelta(t, DotExpected(5000), got, 1e-8)
}

func TestDotOffload(t *testing.T) {
	dctx := newDevice(t)
	for _, n := range []int{1, 255, 256, 257, 100000} {
		got, err := DotOffload(dctx, n)
		require.NoError(t, err, "n=%d", n)
		assert.InDelta(t, DotExpected(n), got, 1e-12*float64(n), "n=%d", n)
	}
	allocated, _ := dctx.MemoryStats()
	assert.Zero(t, allocated, "device buffers must be released")

	_, err := DotOffload(dctx, 0)
	assert.True(t, paraprof.IsInvalidArgError(err))
}

func TestMatMulTiled(t *testing.T) {
	dctx := newDevice(t)
	for _, tc := range []struct{ n, tile int }{
		{1, 0}, {5, 0}, {33, 0}, {64, 0}, {37, 8}, {16, 16},
	} {
		t.Run(fmt.Sprintf("n=%d/tile=%d", tc.n, tc.tile), func(t *testing.T) {
			n := tc.n
			a := make([]float64, n*n)
			b := make([]float64, n*n)
			FillMatMul(a, b, n)

			c, err := MatMulTiled(dctx, a, b, n, tc.tile)
			require.NoError(t, err)

			var want mat.Dense
			want.Mul(mat.NewDense(n, n, a), mat.NewDense(n, n, b))
			assert.Equal(t, want.RawMatrix().Data, c)

			c11, cnn := MatMulTiledExpected(n)
			assert.Equal(t, c11, c[0])
			assert.Equal(t, cnn, c[n*n-1])
		})
	}
}

func TestMatMulTiledErrors(t *testing.T) {
	dctx := newDevice(t)
	_, err := MatMulTiled(dctx, nil, nil, 0, 0)
	assert.True(t, paraprof.IsInvalidArgError(err))
	_, err = MatMulTiled(dctx, make([]float64, 3), make([]float64, 4), 2, 0)
	assert.True(t, paraprof.IsInvalidArgError(err))
	_, err = MatMulTiled(dctx, make([]float64, 4), make([]float64, 4), 2, 33)
	assert.True(t, paraprof.IsInvalidArgError(err))
	_, err = MatMulTiled(dctx, nil, nil, math.MaxInt/2, 0)
	assert.True(t, paraprof.IsMemoryError(err))
}

func TestMatMulTiledExpected(t *testing.T) {
	c11, cnn := MatMulTiledExpected(512)
	assert.Equal(t, 44869888.0, c11)
	assert.Equal(t, -89347328.0, cnn)
}

func TestVecAddDistributed(t *testing.T) {
	for _, tc := range []struct{ n, ranks int }{
		{1000, 1}, {1000, 3}, {2, 5}, {4099, 4},
	} {
		t.Run(fmt.Sprintf("n=%d/ranks=%d", tc.n, tc.ranks), func(t *testing.T) {
			var res VecAddResult
			err := mpi.Run(context.Background(), tc.ranks, func(ctx context.Context, c *mpi.Comm) error {
				dctx, err := RankContext(c)
				if err != nil {
					return err
				}
				defer dctx.Destroy()
				r, err := VecAddDistributed(ctx, c, dctx, tc.n)
				if c.Rank() == 0 {
					res = r
				}
				return err
			})
			require.NoError(t, err)
			assert.True(t, res.OK)
			require.Len(t, res.C, tc.n)
			for g, v := range res.C {
				require.Equal(t, 3*float32(g), v, "index %d", g)
			}
			assert.LessOrEqual(t, len(res.Checked), VecAddSamples)
			assert.Equal(t, 0, res.Checked[0])
			assert.Equal(t, tc.n-1, res.Checked[len(res.Checked)-1])
		})
	}
}

func TestAxpyDot(t *testing.T) {
	for _, device := range []bool{false, true} {
		for _, tc := range []struct{ n, ranks int }{
			{10, 1}, {10, 3}, {1000, 4}, {2, 3},
		} {
			t.Run(fmt.Sprintf("device=%v/n=%d/ranks=%d", device, tc.n, tc.ranks), func(t *testing.T) {
				sums := make([]float64, tc.ranks)
				err := mpi.Run(context.Background(), tc.ranks, func(ctx context.Context, c *mpi.Comm) error {
					var dctx *paraprof.Context
					if device {
						var err error
						if dctx, err = RankContext(c); err != nil {
							return err
						}
						defer dctx.Destroy()
					}
					s, err := AxpyDot(ctx, c, dctx, tc.n)
					sums[c.Rank()] = s
					return err
				})
				require.NoError(t, err)
				want := AxpyDotExpected(tc.n, tc.ranks)
				for r, s := range sums {
					assert.Equal(t, want, s, "rank %d", r)
				}
			})
		}
	}
}

func TestAxpyDotExpected(t *testing.T) {
	// 10 over 3 ranks: 4·3 + 3·4 + 3·5
	assert.Equal(t, 39.0, AxpyDotExpected(10, 3))
	assert.Equal(t, 30.0, AxpyDotExpected(10, 1))
}

func TestRingMatMul(t *testing.T) {
	for _, tc := range []struct{ n, ranks int }{
		{7, 1}, {7, 3}, {16, 4}, {2, 3},
	} {
		t.Run(fmt.Sprintf("n=%d/ranks=%d", tc.n, tc.ranks), func(t *testing.T) {
			results := make([]RingResult, tc.ranks)
			err := mpi.Run(context.Background(), tc.ranks, func(ctx context.Context, c *mpi.Comm) error {
				r, err := RingMatMul(ctx, c, tc.n)
				results[c.Rank()] = r
				return err
			})
			require.NoError(t, err)
			for r, res := range results {
				assert.Equal(t, 0.0, res.MaxErr, "rank %d", r)
				assert.Equal(t, tc.n, res.N)
				assert.Equal(t, tc.ranks, res.Ranks)
				assert.Equal(t, results[0].Time, res.Time, "all ranks report the slowest time")
				assert.Positive(t, res.GFlops)
			}
		})
	}
}

func TestRingMatMulInvalid(t *testing.T) {
	err := mpi.Run(context.Background(), 2, func(ctx context.Context, c *mpi.Comm) error {
		_, err := RingMatMul(ctx, c, 0)
		return err
	})
	assert.True(t, paraprof.IsInvalidArgError(err))
}

func TestMatMulThreads(t *testing.T) {
	for _, n := range []int{1, 63, 130} {
		c, err := MatMulThreads(context.Background(), parallel.NewTeam(3), n)
		require.NoError(t, err)
		require.Len(t, c, n*n)
		want := MatMulThreadsExpected(n)
		for i, v := range c {
			require.Equal(t, want, v, "n=%d element %d", n, i)
		}
	}
}

func TestHostLimitFailsAllocation(t *testing.T) {
	old := paraprof.SetHostMemoryLimit(1024)
	t.Cleanup(func() { paraprof.SetHostMemoryLimit(old) })

	_, err := Dot(context.Background(), parallel.NewTeam(1), 1<<20)
	assert.True(t, paraprof.IsMemoryError(err))
}
