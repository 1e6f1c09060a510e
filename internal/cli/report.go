package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/scaling"
)

// NewReportCommand creates the report command.
func NewReportCommand(root *RootOptions) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show stored timings with speedup and efficiency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := scaling.Type(typ)
			if t != "" && t != scaling.Strong && t != scaling.Weak {
				return program.UsageError("invalid type %q: must be %s or %s", typ, scaling.Strong, scaling.Weak)
			}
			if _, err := os.Stat(root.DB); errors.Is(err, fs.ErrNotExist) {
				return program.UsageError("results database %s not found", root.DB)
			}
			st, err := scaling.OpenStore(root.DB)
			if err != nil {
				return runtimeError("open results", err)
			}
			defer st.Close()

			results, err := st.Results(cmd.Context(), t)
			if err != nil {
				return runtimeError("read results", err)
			}
			root.Logger().Debug("report", "db", root.DB, "tags", len(results))
			return scaling.Render(cmd.OutOrStdout(), root.Format, scaling.Tables(results))
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "", "only show strong-scaling or weak-scaling results")
	return cmd
}
