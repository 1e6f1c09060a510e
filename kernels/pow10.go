// Package kernels holds the computations of the tutorial programs: loop
// kernels run by a parallel.Team, distributed kernels run by every rank of an
// mpi world, and device kernels launched on a paraprof.Context.
//
// Every kernel has a closed-form expectation next to it so programs and
// tests can check their results.
package kernels

import (
	"context"
	"math"

	"github.com/paraprof/paraprof/parallel"
)

// Pow10Passes is the number of squaring passes Pow10 makes; the result is
// a[i]^(2^Pow10Passes).
const Pow10Passes = 10

// Fill sets every element of a to v.
func Fill(ctx context.Context, team *parallel.Team, a []float64, v float64) error {
	return team.For(ctx, len(a), parallel.StaticSchedule(), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			a[i] = v
		}
	})
}

// Pow10 squares every element of a in place ten times. Each pass is a
// separate parallel loop with a dynamic schedule of chunk iterations.
func Pow10(ctx context.Context, team *parallel.Team, a []float64, chunk int) error {
	sched := parallel.DynamicSchedule(chunk)
	for t := 0; t < Pow10Passes; t++ {
		err := team.For(ctx, len(a), sched, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				a[i] = a[i] * a[i]
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Pow10Expected returns v squared ten times, computed the same way as
// Pow10 so the two agree bit for bit.
func Pow10Expected(v float64) float64 {
	for t := 0; t < Pow10Passes; t++ {
		v *= v
	}
	return v
}

// Pow10Closed is v^1024.
func Pow10Closed(v float64) float64 {
	return math.Pow(v, 1<<Pow10Passes)
}
