// Package program is the shared main of the tutorial programs: it parses the
// optional problem size, sets up logging and the runtime from the
// environment, runs the program and maps its error to an exit code.
package program

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/internal/config"
	"github.com/paraprof/paraprof/mpi"
)

// Exit codes of the tutorial programs.
const (
	ExitSuccess = 0 // result printed
	ExitUsage   = 1 // bad arguments or configuration
	ExitAlloc   = 2 // host or device allocation failed
	ExitRuntime = 3 // any other failure: device, communication, execution
)

// ExitError carries the exit code a program should end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// UsageError returns an ExitError with ExitUsage.
func UsageError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps err to a process exit code. An mpi abort keeps the code the
// aborting rank asked for.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var ae *mpi.AbortError
	if errors.As(err, &ae) && ae.Code != 0 {
		return ae.Code
	}
	if paraprof.IsMemoryError(err) {
		return ExitAlloc
	}
	return ExitRuntime
}

// Env is what a program body gets to work with.
type Env struct {
	N      int           // problem size
	Config config.Config // runtime knobs
	Stdout io.Writer     // result line goes here
	Log    *slog.Logger
}

// Printf writes the result line.
func (e *Env) Printf(format string, args ...any) {
	fmt.Fprintf(e.Stdout, format, args...)
}

// Program describes one tutorial program.
type Program struct {
	Name     string
	DefaultN int // used when n is omitted; 0 makes n required
	Run      func(ctx context.Context, env *Env) error
}

// Main runs p with the process arguments and exits.
func Main(p Program) {
	os.Exit(p.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// Execute runs p with args and returns the exit code. Diagnostics go to
// stderr.
func (p Program) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, cfgErr := config.Load()
	log := NewLogger(stderr, cfg.Verbose)
	slog.SetDefault(log)

	if cfgErr != nil {
		log.Error("invalid configuration", "error", cfgErr)
		return ExitUsage
	}
	n, err := ParseN(args, p.DefaultN)
	if err != nil {
		fmt.Fprintf(stderr, "%s\nusage: %s %s\n", err, p.Name, p.usage())
		return ExitUsage
	}
	if err := paraprof.Configure(cfg); err != nil {
		log.Error("invalid configuration", "error", err)
		return ExitUsage
	}

	env := &Env{N: n, Config: cfg, Stdout: stdout, Log: log.With("program", p.Name)}
	env.Log.Debug("starting", "n", n, "threads", cfg.Threads, "devices", cfg.Devices)
	err = p.Run(ctx, env)
	code := ExitCode(err)
	if err != nil {
		var ae *mpi.AbortError
		// The rank that aborted already reported the cause.
		if !errors.As(err, &ae) || rankOf(ae) {
			env.Log.Error("failed", "error", err, "exit", code)
		}
	}
	return code
}

// rankOf reports whether the abort was raised by this process.
func rankOf(ae *mpi.AbortError) bool {
	v := os.Getenv(mpi.EnvRank)
	return v == "" || v == strconv.Itoa(ae.Rank)
}

func (p Program) usage() string {
	if p.DefaultN > 0 {
		return fmt.Sprintf("[n]  (default %d)", p.DefaultN)
	}
	return "n"
}

// ParseN parses the optional positional problem size. def is used when args
// is empty; def 0 makes the argument required.
func ParseN(args []string, def int) (int, error) {
	switch {
	case len(args) > 1:
		return 0, UsageError("too many arguments")
	case len(args) == 0 && def > 0:
		return def, nil
	case len(args) == 0:
		return 0, UsageError("missing problem size n")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, UsageError("n must be an integer, got %q", args[0])
	}
	if n <= 0 {
		return 0, UsageError("n must be > 0, got %d", n)
	}
	return n, nil
}

// NewLogger returns the text logger the programs and the CLI log through.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Launch runs body as a rank of the mpi world the program was started in.
// A failing rank aborts the world with the exit code of its error.
func Launch(ctx context.Context, body mpi.Body) error {
	return mpi.Launch(ctx, body, mpi.WithAbortCode(ExitCode))
}
