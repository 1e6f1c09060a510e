// Command omp-matmul multiplies two dense matrices on a thread team.
package main

import (
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/internal/tutorials"
)

func main() {
	program.Main(tutorials.OMPMatMul)
}
