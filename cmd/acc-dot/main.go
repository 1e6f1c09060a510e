// Command acc-dot computes a dot product offloaded to device 0.
package main

import (
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/internal/tutorials"
)

func main() {
	program.Main(tutorials.ACCDot)
}
