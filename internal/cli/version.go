package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/scaling"
)

func versionString() string {
	v, _ := paraprof.Version()
	if v == "" || v == "(devel)" {
		return "devel"
	}
	return v
}

// NewVersionCommand creates the version command.
func NewVersionCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the paraprof version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := versionString()
			if root.Format == scaling.FormatJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": v})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "paraprof %s\n", v)
			return err
		},
	}
}
