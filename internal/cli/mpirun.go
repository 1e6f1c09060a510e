package cli

import (
	"github.com/spf13/cobra"

	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/mpi"
)

// NewMpirunCommand creates the mpirun command, the default launcher of the
// scaling sweeps.
func NewMpirunCommand(root *RootOptions) *cobra.Command {
	var np int
	cmd := &cobra.Command{
		Use:   "mpirun -n N program [args...]",
		Short: "Run N copies of a program as the ranks of one MPI world",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if np < 1 {
				return program.UsageError("-n must be positive, got %d", np)
			}
			root.Logger().Debug("mpirun", "np", np, "argv", args)
			code, err := mpi.Mpirun(cmd.Context(), mpi.MpirunConfig{
				NP:     np,
				Argv:   args,
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
			if err != nil {
				return &program.ExitError{Code: max(code, program.ExitUsage), Message: "mpirun", Err: err}
			}
			if code != 0 {
				return exitWith(code)
			}
			return nil
		},
	}
	// Flags after the program name belong to the program.
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().IntVarP(&np, "np", "n", 1, "number of ranks")
	return cmd
}
