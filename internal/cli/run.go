package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/internal/tutorials"
)

// NewRunCommand creates the run command, which runs a tutorial program
// inside the paraprof binary.
func NewRunCommand(root *RootOptions) *cobra.Command {
	names := make([]string, len(tutorials.All))
	for i, p := range tutorials.All {
		names[i] = p.Name
	}
	cmd := &cobra.Command{
		Use:       "run program [n]",
		Short:     "Run a tutorial program",
		Long:      fmt.Sprintf("Run a tutorial program. Programs: %s.", strings.Join(names, ", ")),
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := tutorials.Lookup(args[0])
			if !ok {
				return program.UsageError("unknown program %q: must be one of %s", args[0], strings.Join(names, ", "))
			}
			if code := p.Execute(cmd.Context(), args[1:], cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return exitWith(code)
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}
