// Package cli implements the paraprof command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/scaling"
)

// DefaultDB is the results database used when --db is not given.
const DefaultDB = "paraprof.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "csv"
	DB      string

	log *slog.Logger
}

// Logger returns the logger configured by the global flags.
func (o *RootOptions) Logger() *slog.Logger {
	if o.log == nil {
		return slog.Default()
	}
	return o.log
}

// NewRootCommand creates the root command for the paraprof CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "paraprof",
		Short: "paraprof - scaling profiler for parallel programs",
		Long: "Runs strong- and weak-scaling sweeps of MPI and OpenMP style programs,\n" +
			"stores their timings and reports speedup and efficiency.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(scaling.Formats, opts.Format) {
				return program.UsageError("invalid format %q: must be one of %v", opts.Format, scaling.Formats)
			}
			opts.log = program.NewLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", scaling.FormatText, "output format (text|json|csv)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", DefaultDB, "results database")

	cmd.AddCommand(NewScalingCommand(opts, scaling.Strong))
	cmd.AddCommand(NewScalingCommand(opts, scaling.Weak))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewMpirunCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	if err == nil {
		return program.ExitSuccess
	}
	code := GetExitCode(err)
	if msg := err.Error(); msg != "" {
		fmt.Fprintf(stderr, "paraprof: %s\n", msg)
	}
	return code
}
