package scaling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	envHelper     = "SCALING_TEST_HELPER"
	envHelperExit = "SCALING_TEST_EXIT"
)

// TestMain lets the test binary stand in for an mpiexec launcher: it prints
// the arguments after "--" and the thread count it was given.
func TestMain(m *testing.M) {
	if os.Getenv(envHelper) != "" {
		args := os.Args
		for i, a := range args {
			if a == "--" {
				args = args[i+1:]
				break
			}
		}
		fmt.Printf("argv=%s threads=%s\n", strings.Join(args, " "), os.Getenv("OMP_NUM_THREADS"))
		code, _ := strconv.Atoi(os.Getenv(envHelperExit))
		os.Exit(code)
	}
	os.Exit(m.Run())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerStoresTags(t *testing.T) {
	ctx := context.Background()
	st := createTestStore(t)

	var ran []Job
	r := &Runner{
		Store:   st,
		MPIExec: []string{"mpiexec"},
		Log:     quietLogger(),
		Exec: func(_ context.Context, job Job) error {
			ran = append(ran, job)
			return nil
		},
	}
	s := DefaultSweep(Strong)
	s.NTasks = []int{1, 2}
	s.ProblemSizes = []int{10, 20}
	s.Program = "omp-dot"

	saved, err := r.Run(ctx, s)
	require.NoError(t, err)
	require.Len(t, ran, 4)
	require.Len(t, saved, 2)
	assert.Equal(t, "mpi-2-10", saved[0].Tag)
	assert.Equal(t, "mpi-2-20", saved[1].Tag)

	got, err := st.Results(ctx, Strong)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, tr := range got {
		require.Len(t, tr.Measurements, 2)
		assert.Equal(t, 1, tr.Measurements[0].Workers)
		assert.Equal(t, 2, tr.Measurements[1].Workers)
		assert.GreaterOrEqual(t, tr.Measurements[0].Seconds, 0.0)
	}
}

func TestRunnerStopsOnFailure(t *testing.T) {
	ctx := context.Background()
	st := createTestStore(t)
	boom := errors.New("boom")
	r := &Runner{
		Store: st,
		Log:   quietLogger(),
		Exec: func(_ context.Context, job Job) error {
			if job.Size == 20 && job.Workers == 2 {
				return boom
			}
			return nil
		},
	}
	s := DefaultSweep(Strong)
	s.NTasks = []int{1, 2}
	s.ProblemSizes = []int{10, 20}
	s.Program = "p"

	saved, err := r.Run(ctx, s)
	require.ErrorIs(t, err, boom)
	require.Len(t, saved, 1)

	got, err := st.Results(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mpi-2-10", got[0].Tag)
}

func TestRunnerRejectsInvalidSweep(t *testing.T) {
	r := &Runner{Store: createTestStore(t), Log: quietLogger()}
	_, err := r.Run(context.Background(), DefaultSweep(Strong))
	assert.Error(t, err)
}

func TestRunnerLaunchesProcesses(t *testing.T) {
	t.Setenv(envHelper, "1")
	ctx := context.Background()
	var stdout bytes.Buffer
	r := &Runner{
		Store:   createTestStore(t),
		MPIExec: []string{os.Args[0], "-test.run=^$", "--"},
		Stdout:  &stdout,
		Stderr:  io.Discard,
		Log:     quietLogger(),
	}
	s := DefaultSweep(Strong)
	s.Mode = ModeOpenMP
	s.NTasks = []int{3}
	s.NThreads = []int{1, 4}
	s.ProblemSizes = []int{50}
	s.Program = "omp-dot"

	saved, err := r.Run(ctx, s)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "openmp-3-50", saved[0].Tag)
	assert.Equal(t,
		"argv=-n 3 omp-dot 50 threads=1\nargv=-n 3 omp-dot 50 threads=4\n",
		stdout.String())
}

func TestRunnerReportsExitCode(t *testing.T) {
	t.Setenv(envHelper, "1")
	t.Setenv(envHelperExit, "3")
	r := &Runner{
		Store:   createTestStore(t),
		MPIExec: []string{os.Args[0], "-test.run=^$", "--"},
		Stdout:  io.Discard,
		Stderr:  io.Discard,
		Log:     quietLogger(),
	}
	s := DefaultSweep(Strong)
	s.Program = "omp-dot"

	_, err := r.Run(context.Background(), s)
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, 3, jobErr.ExitCode)
	assert.Contains(t, err.Error(), "exited with code 3")
}
