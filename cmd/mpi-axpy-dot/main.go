// Command mpi-axpy-dot runs an AXPY and a global dot product across MPI ranks.
package main

import (
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/internal/tutorials"
)

func main() {
	program.Main(tutorials.MPIAxpyDot)
}
