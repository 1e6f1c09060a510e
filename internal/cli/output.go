package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/paraprof/paraprof/internal/program"
)

// GetExitCode extracts the exit code from an error returned by a command.
// Errors that carry no code are flag or argument errors from cobra and map
// to program.ExitUsage.
func GetExitCode(err error) int {
	if err == nil {
		return program.ExitSuccess
	}
	var exitErr *program.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return program.ExitUsage
}

// runtimeError wraps a failure of the work a command does.
func runtimeError(message string, err error) *program.ExitError {
	return &program.ExitError{Code: program.ExitRuntime, Message: message, Err: err}
}

// exitWith ends a command with code and no message of its own.
func exitWith(code int) *program.ExitError {
	return &program.ExitError{Code: code}
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeFields writes label/value pairs as aligned text lines.
func writeFields(w io.Writer, fields [][2]string) {
	width := 0
	for _, f := range fields {
		width = max(width, len(f[0]))
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%-*s  %s\n", width+1, f[0]+":", f[1])
	}
}
