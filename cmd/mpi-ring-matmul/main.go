// Command mpi-ring-matmul multiplies matrices with the ring-panel algorithm across MPI ranks.
package main

import (
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/internal/tutorials"
)

func main() {
	program.Main(tutorials.MPIRingMatMul)
}
