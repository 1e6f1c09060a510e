// Command paraprof runs and reports scaling sweeps of parallel programs.
package main

import (
	"os"

	"github.com/paraprof/paraprof/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
