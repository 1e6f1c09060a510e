package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/scaling"
)

// ScalingOptions holds the flags of the strong-scaling and weak-scaling
// commands. Flags that were set override the sweep file.
type ScalingOptions struct {
	*RootOptions
	Type   scaling.Type
	File   string
	Sweep  scaling.Sweep
	Mode   string
	DryRun bool
}

// NewScalingCommand creates the sweep command for t.
func NewScalingCommand(root *RootOptions, t scaling.Type) *cobra.Command {
	opts := &ScalingOptions{RootOptions: root, Type: t}
	def := scaling.DefaultSweep(t)

	what := "fixed"
	if t == scaling.Weak {
		what = "growing with the worker count"
	}
	cmd := &cobra.Command{
		Use:   string(t) + " [flags] [-- program args]",
		Short: fmt.Sprintf("Time a program over worker counts with the problem size %s", what),
		Example: fmt.Sprintf("  paraprof %s --ntasks 1,2,4 --nthreads 2 --problem-sizes 1000000 --program ./mpi-omp-dot\n"+
			"  paraprof %s --mode openmp --nthreads 1,2,4,8 --problem-sizes 100000 --program ./omp-dot", t, t),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScaling(cmd, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.File, "config", "c", "", "YAML sweep file")
	f.StringVar(&opts.Mode, "mode", string(def.Mode), "worker count to vary (mpi|openmp)")
	f.IntSliceVar(&opts.Sweep.NTasks, "ntasks", def.NTasks, "MPI task counts")
	f.IntSliceVar(&opts.Sweep.NThreads, "nthreads", def.NThreads, "OpenMP threads per task")
	f.IntSliceVar(&opts.Sweep.ProblemSizes, "problem-sizes", nil, "problem sizes")
	f.StringVar(&opts.Sweep.Program, "program", "", "program command line")
	f.StringVar(&opts.Sweep.MPIExec, "mpiexec", "", `launcher command line (default "<paraprof> mpirun")`)
	f.BoolVar(&opts.DryRun, "dry-run", false, "print the commands without running them")
	return cmd
}

// sweep merges the sweep file and the flags that were set.
func (o *ScalingOptions) sweep(cmd *cobra.Command, args []string) (scaling.Sweep, error) {
	s := scaling.DefaultSweep(o.Type)
	if o.File != "" {
		var err error
		if s, err = scaling.LoadSweep(o.File, s); err != nil {
			return s, program.UsageError("%v", err)
		}
		if s.Type != o.Type {
			return s, program.UsageError("%s: sweep type %s does not match command %s", o.File, s.Type, o.Type)
		}
	}
	f := cmd.Flags()
	if f.Changed("mode") || o.File == "" {
		s.Mode = scaling.Mode(o.Mode)
	}
	if f.Changed("ntasks") || o.File == "" {
		s.NTasks = o.Sweep.NTasks
	}
	if f.Changed("nthreads") || o.File == "" {
		s.NThreads = o.Sweep.NThreads
	}
	if f.Changed("problem-sizes") {
		s.ProblemSizes = o.Sweep.ProblemSizes
	}
	if f.Changed("program") {
		s.Program = o.Sweep.Program
	}
	if f.Changed("mpiexec") {
		s.MPIExec = o.Sweep.MPIExec
	}
	if len(args) > 0 {
		s.Args = args
	}
	if err := s.Validate(); err != nil {
		return s, program.UsageError("%v", err)
	}
	return s, nil
}

func runScaling(cmd *cobra.Command, opts *ScalingOptions, args []string) error {
	s, err := opts.sweep(cmd, args)
	if err != nil {
		return err
	}
	mpiexec, err := defaultMPIExec()
	if err != nil {
		return runtimeError("locate paraprof executable", err)
	}

	out := cmd.OutOrStdout()
	if opts.DryRun {
		jobs, err := s.Plan(mpiexec)
		if err != nil {
			return program.UsageError("%v", err)
		}
		for _, job := range jobs {
			fmt.Fprintf(out, "%s OMP_NUM_THREADS=%d %s\n", job.Tag, job.Threads, strings.Join(job.Argv, " "))
		}
		return nil
	}

	st, err := scaling.OpenStore(opts.DB)
	if err != nil {
		return runtimeError("open results", err)
	}
	defer st.Close()

	r := &scaling.Runner{
		Store:   st,
		MPIExec: mpiexec,
		Stdout:  cmd.ErrOrStderr(),
		Stderr:  cmd.ErrOrStderr(),
		Log:     opts.Logger(),
	}
	saved, err := r.Run(cmd.Context(), s)
	if err != nil {
		return runtimeError(string(s.Type), err)
	}
	return scaling.Render(out, opts.Format, scaling.Tables(saved))
}

// defaultMPIExec launches ranks through this binary's mpirun command.
func defaultMPIExec() ([]string, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return []string{self, "mpirun"}, nil
}
