// Package tutorials defines the tutorial programs. Each cmd/ main runs one
// of them through program.Main.
package tutorials

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/kernels"
	"github.com/paraprof/paraprof/mpi"
	"github.com/paraprof/paraprof/parallel"
)

// EnvAxpyDevice runs mpi-axpy-dot on the device runtime when true.
const EnvAxpyDevice = "PARAPROF_AXPY_DEVICE"

// All lists the programs by name.
var All = []program.Program{
	OMPPow10,
	OMPDot,
	MPIOMPDot,
	ACCDot,
	CUDAMatMul,
	MPICUDAVAdd,
	MPIAxpyDot,
	MPIRingMatMul,
	OMPMatMul,
}

// Lookup returns the program called name.
func Lookup(name string) (program.Program, bool) {
	for _, p := range All {
		if p.Name == name {
			return p, true
		}
	}
	return program.Program{}, false
}

// OMPPow10 squares an array ten times with a dynamic schedule.
var OMPPow10 = program.Program{
	Name:     "omp-pow10",
	DefaultN: 1 << 22,
	Run: func(ctx context.Context, env *program.Env) error {
		a, err := paraprof.AllocFloat64(env.N)
		if err != nil {
			return err
		}
		team := parallel.NewTeam(env.Config.Threads)
		env.Log.Debug("array init", "n", env.N, "value", env.Config.Pow10Init)
		if err := kernels.Fill(ctx, team, a, env.Config.Pow10Init); err != nil {
			return err
		}
		env.Log.Debug("pow10", "threads", team.Size(), "chunk", env.Config.ChunkSize)
		if err := kernels.Pow10(ctx, team, a, env.Config.ChunkSize); err != nil {
			return err
		}
		env.Printf("Array value is: %f\n", a[0])
		return nil
	},
}

// OMPDot is the dot product on a thread team.
var OMPDot = program.Program{
	Name: "omp-dot",
	Run: func(ctx context.Context, env *program.Env) error {
		team := parallel.NewTeam(env.Config.Threads)
		t0 := time.Now()
		sum, err := kernels.Dot(ctx, team, env.N)
		if err != nil {
			return err
		}
		env.Printf("[OpenMP] n=%d threads=%d  sum=%.12f  time=%.3f s\n",
			env.N, team.Size(), sum, time.Since(t0).Seconds())
		return nil
	},
}

// MPIOMPDot is the dot product over the ranks of an mpi world, each rank
// using a thread team.
var MPIOMPDot = program.Program{
	Name: "mpi-omp-dot",
	Run: func(ctx context.Context, env *program.Env) error {
		return program.Launch(ctx, func(ctx context.Context, comm *mpi.Comm) error {
			team := parallel.NewTeam(env.Config.Threads)
			t0 := time.Now()
			sum, err := kernels.DotDistributed(ctx, comm, team, env.N)
			if err != nil {
				return err
			}
			if comm.Rank() == 0 {
				env.Printf("[MPI+OpenMP] n=%d ranks=%d threads/rank=%d  sum=%.12f  time=%.3f s\n",
					env.N, comm.Size(), team.Size(), sum, time.Since(t0).Seconds())
			}
			return nil
		})
	},
}

// ACCDot is the dot product offloaded to device 0.
var ACCDot = program.Program{
	Name: "acc-dot",
	Run: func(ctx context.Context, env *program.Env) error {
		dctx, err := paraprof.NewContext(0)
		if err != nil {
			return err
		}
		defer dctx.Destroy()
		t0 := time.Now()
		sum, err := kernels.DotOffload(dctx, env.N)
		if err != nil {
			return err
		}
		env.Printf("[OpenACC] n=%d  sum=%.12f  time=%.3f s\n", env.N, sum, time.Since(t0).Seconds())
		return nil
	},
}

// CUDAMatMul is the tiled matmul on device 0.
var CUDAMatMul = program.Program{
	Name:     "cuda-matmul",
	DefaultN: 512,
	Run: func(ctx context.Context, env *program.Env) error {
		n := env.N
		env.Log.Info("using", "N", n, "tile", env.Config.TileSize)
		nn, err := kernels.MatrixLen("cuda-matmul", n)
		if err != nil {
			return err
		}
		a, err := paraprof.AllocFloat64(nn)
		if err != nil {
			return err
		}
		b, err := paraprof.AllocFloat64(nn)
		if err != nil {
			return err
		}
		kernels.FillMatMul(a, b, n)

		dctx, err := paraprof.NewContext(0)
		if err != nil {
			return err
		}
		defer dctx.Destroy()
		c, err := kernels.MatMulTiled(dctx, a, b, n, env.Config.TileSize)
		if err != nil {
			return err
		}
		env.Printf("C(1,1)=%.6f  C(n,n)=%.6f\n", c[0], c[(n-1)*n+(n-1)])
		return nil
	},
}

// MPICUDAVAdd is the vector addition over the ranks of an mpi world, each
// rank driving one device.
var MPICUDAVAdd = program.Program{
	Name:     "mpi-cuda-vadd",
	DefaultN: 1 << 22,
	Run: func(ctx context.Context, env *program.Env) error {
		return program.Launch(ctx, func(ctx context.Context, comm *mpi.Comm) error {
			dctx, err := kernels.RankContext(comm)
			if err != nil {
				return err
			}
			defer dctx.Destroy()
			res, err := kernels.VecAddDistributed(ctx, comm, dctx, env.N)
			if err != nil {
				return err
			}
			if comm.Rank() == 0 {
				status := "OK"
				if !res.OK {
					status = "FAILED"
				}
				env.Printf("vadd %s (world_size=%d)\n", status, comm.Size())
			}
			return nil
		})
	},
}

// MPIAxpyDot runs one AXPY and a global dot product over an mpi world.
var MPIAxpyDot = program.Program{
	Name: "mpi-axpy-dot",
	Run: func(ctx context.Context, env *program.Env) error {
		onDevice, _ := strconv.ParseBool(os.Getenv(EnvAxpyDevice))
		return program.Launch(ctx, func(ctx context.Context, comm *mpi.Comm) error {
			var dctx *paraprof.Context
			if onDevice {
				var err error
				if dctx, err = kernels.RankContext(comm); err != nil {
					return err
				}
				defer dctx.Destroy()
			}
			dot, err := kernels.AxpyDot(ctx, comm, dctx, env.N)
			if err != nil {
				return err
			}
			if comm.Rank() == 0 {
				env.Printf("Global size = %d, Final dot product = %.6e\n", env.N, dot)
			}
			return nil
		})
	},
}

// MPIRingMatMul is the ring-panel matmul over an mpi world.
var MPIRingMatMul = program.Program{
	Name: "mpi-ring-matmul",
	Run: func(ctx context.Context, env *program.Env) error {
		return program.Launch(ctx, func(ctx context.Context, comm *mpi.Comm) error {
			res, err := kernels.RingMatMul(ctx, comm, env.N)
			if err != nil {
				return err
			}
			if comm.Rank() == 0 {
				env.Printf("RESULT algo=ring_mm N=%d P=%d time=%.6fs gflops=%.3f max_err=%.3e\n",
					res.N, res.Ranks, res.Time.Seconds(), res.GFlops, res.MaxErr)
			}
			return nil
		})
	},
}

// OMPMatMul is the dense matmul on a thread team.
var OMPMatMul = program.Program{
	Name: "omp-matmul",
	Run: func(ctx context.Context, env *program.Env) error {
		team := parallel.NewTeam(env.Config.Threads)
		t0 := time.Now()
		c, err := kernels.MatMulThreads(ctx, team, env.N)
		if err != nil {
			return err
		}
		env.Printf("[OpenMP] matmul n=%d threads=%d  C(1,1)=%.1f  time=%.3f s\n",
			env.N, team.Size(), c[0], time.Since(t0).Seconds())
		return nil
	},
}
