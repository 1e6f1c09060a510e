// Command cuda-matmul multiplies two N×N matrices with a tiled kernel on device 0.
package main

import (
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/internal/tutorials"
)

func main() {
	program.Main(tutorials.CUDAMatMul)
}
