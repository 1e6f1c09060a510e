// Command omp-pow10 fills an array and squares it ten times on a thread team.
package main

import (
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/internal/tutorials"
)

func main() {
	program.Main(tutorials.OMPPow10)
}
