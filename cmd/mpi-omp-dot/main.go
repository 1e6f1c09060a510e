// Command mpi-omp-dot computes a dot product across MPI ranks, each using a thread team.
//
// Start it with "paraprof mpirun -n P", or set PARAPROF_NP to run P ranks in
// one process.
package main

import (
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/internal/tutorials"
)

func main() {
	program.Main(tutorials.MPIOMPDot)
}
