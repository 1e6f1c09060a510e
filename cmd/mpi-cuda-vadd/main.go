// Command mpi-cuda-vadd adds two vectors split across MPI ranks, one device per rank.
package main

import (
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/internal/tutorials"
)

func main() {
	program.Main(tutorials.MPICUDAVAdd)
}
