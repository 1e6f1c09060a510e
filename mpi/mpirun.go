package mpi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/paraprof/paraprof"
)

// MpirunConfig configures Mpirun.
type MpirunConfig struct {
	NP     int       // number of ranks
	Argv   []string  // program and arguments
	Env    []string  // extra environment for every rank
	Stdout io.Writer // defaults to os.Stdout
	Stderr io.Writer // defaults to os.Stderr
}

// Mpirun starts cfg.NP copies of cfg.Argv as the ranks of one world and
// waits for them. It returns the exit code of the job: 0 if every rank
// succeeded, otherwise the code of the first rank that failed. The remaining
// ranks are killed as soon as one fails.
func Mpirun(ctx context.Context, cfg MpirunConfig) (int, error) {
	if cfg.NP < 1 {
		return 1, paraprof.NewInvalidArgError("Mpirun", fmt.Sprintf("np must be positive, got %d", cfg.NP))
	}
	if len(cfg.Argv) == 0 {
		return 1, paraprof.NewInvalidArgError("Mpirun", "no program given")
	}
	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	stdout, stderr = lockedWriter(stdout), lockedWriter(stderr)

	// Rank 0 inherits the coordinator socket, so the port is reserved
	// before any rank starts.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 1, paraprof.NewCommunicationError("Mpirun", "reserve coordinator port", err)
	}
	lisFile, err := lis.(*net.TCPListener).File()
	lis.Close()
	if err != nil {
		return 1, paraprof.NewCommunicationError("Mpirun", "coordinator socket", err)
	}
	defer lisFile.Close()
	addr := lis.Addr().String()

	jobCtx, kill := context.WithCancel(ctx)
	defer kill()

	var (
		mu       sync.Mutex
		exitCode int
		failed   bool
		wg       sync.WaitGroup
	)
	fail := func(rank, code int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if failed {
			return
		}
		failed = true
		exitCode = code
		slog.Debug("mpirun: rank failed, killing job", "rank", rank, "code", code, "error", err)
		kill()
	}

	for rank := 0; rank < cfg.NP; rank++ {
		cmd := exec.CommandContext(jobCtx, cfg.Argv[0], cfg.Argv[1:]...)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.Env = append(os.Environ(), cfg.Env...)
		cmd.Env = append(cmd.Env,
			EnvRank+"="+strconv.Itoa(rank),
			EnvSize+"="+strconv.Itoa(cfg.NP),
			EnvLocalRank+"="+strconv.Itoa(rank),
			EnvCoordinator+"="+addr,
		)
		if rank == 0 {
			// ExtraFiles[0] is fd 3 in the child.
			cmd.ExtraFiles = []*os.File{lisFile}
			cmd.Env = append(cmd.Env, EnvCoordinatorFD+"=3")
		}
		if err := cmd.Start(); err != nil {
			fail(rank, 1, err)
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cmd.Wait()
			if err == nil {
				return
			}
			var ee *exec.ExitError
			code := 1
			if errors.As(err, &ee) && ee.ExitCode() > 0 {
				code = ee.ExitCode()
			}
			fail(rank, code, err)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return 1, ctx.Err()
	}
	mu.Lock()
	defer mu.Unlock()
	return exitCode, nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// lockedWriter serializes writes from the copy goroutines of several ranks.
// Files are passed to the children directly and need no lock.
func lockedWriter(w io.Writer) io.Writer {
	if _, ok := w.(*os.File); ok {
		return w
	}
	return &syncWriter{w: w}
}
