package mpi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/paraprof/paraprof"
)

// Environment of a rank started by Mpirun.
const (
	EnvRank          = "PARAPROF_RANK"
	EnvSize          = "PARAPROF_SIZE"
	EnvLocalRank     = "PARAPROF_LOCAL_RANK"
	EnvCoordinator   = "PARAPROF_COORDINATOR"
	EnvCoordinatorFD = "PARAPROF_COORDINATOR_FD"
	// EnvNP sets the size of the in-process world Launch starts when the
	// program runs outside Mpirun.
	EnvNP = "PARAPROF_NP"
)

// abortLinger keeps rank 0's coordinator up after an abort so ranks with a
// collective in flight learn about it.
const abortLinger = 500 * time.Millisecond

// procEnv is the identity of one rank process.
type procEnv struct {
	rank      int
	size      int
	localRank int
	addr      string
	lis       net.Listener // rank 0 only, may be nil
}

// Launch runs body as one rank of a world. Under Mpirun the world spans
// processes and rank 0 hosts the coordinator; otherwise Launch starts an
// in-process world of PARAPROF_NP ranks (default 1).
func Launch(ctx context.Context, body Body, opts ...Option) error {
	env, ok, err := processEnv(os.Getenv)
	if err != nil {
		return err
	}
	if ok {
		return runProcess(ctx, env, body, opts...)
	}

	np := 1
	if v := os.Getenv(EnvNP); v != "" {
		np, err = strconv.Atoi(v)
		if err != nil || np < 1 {
			return paraprof.NewInvalidArgError("Launch", fmt.Sprintf("%s=%q is not a positive integer", EnvNP, v))
		}
	}
	return Run(ctx, np, body, opts...)
}

// processEnv reads the rank identity set by Mpirun. ok is false when the
// process was not started by a launcher.
func processEnv(getenv func(string) string) (env procEnv, ok bool, err error) {
	if getenv(EnvRank) == "" && getenv(EnvSize) == "" {
		return env, false, nil
	}
	bad := func(name string) error {
		return paraprof.NewInvalidArgError("Launch", fmt.Sprintf("invalid %s=%q", name, getenv(name)))
	}

	if env.rank, err = strconv.Atoi(getenv(EnvRank)); err != nil || env.rank < 0 {
		return env, false, bad(EnvRank)
	}
	if env.size, err = strconv.Atoi(getenv(EnvSize)); err != nil || env.size < 1 || env.rank >= env.size {
		return env, false, bad(EnvSize)
	}
	env.localRank = env.rank
	if v := getenv(EnvLocalRank); v != "" {
		if env.localRank, err = strconv.Atoi(v); err != nil || env.localRank < 0 {
			return env, false, bad(EnvLocalRank)
		}
	}
	env.addr = getenv(EnvCoordinator)
	if env.rank == 0 {
		if v := getenv(EnvCoordinatorFD); v != "" {
			fd, err := strconv.Atoi(v)
			if err != nil {
				return env, false, bad(EnvCoordinatorFD)
			}
			f := os.NewFile(uintptr(fd), "coordinator")
			lis, err := net.FileListener(f)
			f.Close()
			if err != nil {
				return env, false, paraprof.NewCommunicationError("Launch", "inherited coordinator socket", err)
			}
			env.lis = lis
		}
	}
	if env.size > 1 && env.addr == "" && env.lis == nil {
		return env, false, bad(EnvCoordinator)
	}
	return env, true, nil
}

// runProcess runs body as rank env.rank of a multi-process world.
func runProcess(ctx context.Context, env procEnv, body Body, opts ...Option) error {
	o := buildOptions(opts)
	log := slog.With("rank", env.rank, "size", env.size)

	var (
		t     transport
		coord *coordinator
	)
	if env.rank == 0 {
		lis := env.lis
		if lis == nil {
			var err error
			lis, err = net.Listen("tcp", env.addr)
			if err != nil {
				return paraprof.NewCommunicationError("Launch", "coordinator listen on "+env.addr, err)
			}
		}
		srv, c := serveCoordinator(lis, env.size)
		coord = c
		t = localTransport{c}
		log.Debug("coordinator listening", "addr", lis.Addr().String())
		defer func() {
			if coord.cause() != nil {
				time.Sleep(abortLinger)
				srv.Stop()
				return
			}
			srv.GracefulStop()
		}()
	} else {
		gt, err := dialCoordinator(env.addr)
		if err != nil {
			return err
		}
		defer gt.Close()
		t = gt
	}

	comm := newComm(env.rank, env.size, env.localRank, t)
	err := protect(env.rank, func() error { return body(ctx, comm) })
	if err == nil {
		// Finalize: nobody leaves while another rank may still need the
		// coordinator.
		err = comm.Barrier(ctx)
	}
	if err != nil {
		var ae *AbortError
		if errors.As(err, &ae) {
			return err
		}
		log.Debug("rank failed, aborting world", "error", err)
		return comm.Abort(o.abortCode(err), err)
	}
	return nil
}
