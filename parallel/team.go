// Package parallel is a fork-join thread team in the style of OpenMP
// worksharing loops.
//
// A Team runs loop bodies over index ranges. Iterations are handed out in
// chunks according to a Schedule: static schedules fix the chunk-to-thread
// mapping in advance, dynamic schedules let idle threads take the next chunk
// from a shared counter. Reductions keep one partial per chunk and combine
// them in chunk order, so for a given n, team size and schedule the result is
// the same on every run.
package parallel

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/paraprof/paraprof/internal/config"
)

// Kind selects how loop chunks are assigned to threads.
type Kind int

const (
	// Static assigns chunks round-robin before the loop starts. With Chunk 0
	// every thread gets one contiguous block.
	Static Kind = iota
	// Dynamic lets threads grab the next chunk as they become idle.
	Dynamic
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Schedule mirrors OpenMP's schedule(kind, chunk) clause.
type Schedule struct {
	Kind  Kind
	Chunk int
}

// StaticSchedule is schedule(static): one contiguous block per thread.
func StaticSchedule() Schedule { return Schedule{Kind: Static} }

// DynamicSchedule is schedule(dynamic, chunk). A chunk below 1 means 1.
func DynamicSchedule(chunk int) Schedule { return Schedule{Kind: Dynamic, Chunk: chunk} }

func (s Schedule) String() string {
	if s.Chunk > 0 {
		return fmt.Sprintf("%s,%d", s.Kind, s.Chunk)
	}
	return s.Kind.String()
}

// maxReduceChunksPerThread bounds the partial slots a reduction keeps.
const maxReduceChunksPerThread = 1024

// MaxThreads returns the default team size: PARAPROF_NUM_THREADS, then
// OMP_NUM_THREADS, then GOMAXPROCS. Programs pass the thread count of their
// loaded config to NewTeam instead.
func MaxThreads() int {
	if n, err := config.ThreadsFromEnv(os.Getenv); err == nil && n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// Team is a fixed-size group of worker goroutines. A Team holds no
// goroutines between calls and is safe for concurrent use.
type Team struct {
	size int
}

// NewTeam returns a team of size threads; size <= 0 selects MaxThreads().
func NewTeam(size int) *Team {
	if size <= 0 {
		size = MaxThreads()
	}
	return &Team{size: size}
}

// Size returns the number of threads in the team.
func (t *Team) Size() int {
	return t.size
}

// Parallel runs body once on every thread of the team (an OpenMP parallel
// region) and returns the first error. The context passed to body is
// cancelled as soon as one thread fails.
func (t *Team) Parallel(ctx context.Context, body func(ctx context.Context, tid int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for tid := 0; tid < t.size; tid++ {
		g.Go(func() error { return body(gctx, tid) })
	}
	return g.Wait()
}

// For runs body over [0, n) split into half-open ranges [lo, hi) according
// to sched. Every index is visited exactly once. n <= 0 is a no-op.
func (t *Team) For(ctx context.Context, n int, sched Schedule, body func(lo, hi int)) error {
	if n <= 0 {
		return ctx.Err()
	}
	plan := t.plan(n, sched, false)
	return t.run(ctx, plan, func(_, lo, hi int) { body(lo, hi) })
}

// ReduceSum runs body over [0, n) like For and returns the sum of the values
// it returns. Partials are kept per chunk and added in chunk order. Dynamic
// schedules with very small chunks are coarsened so at most 1024 chunks per
// thread are created.
func (t *Team) ReduceSum(ctx context.Context, n int, sched Schedule, body func(lo, hi int) float64) (float64, error) {
	if n <= 0 {
		return 0, ctx.Err()
	}
	plan := t.plan(n, sched, true)
	partial := make([]float64, plan.chunks)
	err := t.run(ctx, plan, func(k, lo, hi int) { partial[k] = body(lo, hi) })
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, p := range partial {
		sum += p
	}
	return sum, nil
}

// loopPlan describes how [0, n) is cut into chunks.
type loopPlan struct {
	n       int
	kind    Kind
	chunk   int // 0: one block per thread
	chunks  int
	threads int
}

func (t *Team) plan(n int, sched Schedule, reducing bool) loopPlan {
	p := loopPlan{n: n, kind: sched.Kind, chunk: max(sched.Chunk, 0), threads: t.size}
	if p.kind == Dynamic && p.chunk == 0 {
		p.chunk = 1
	}
	if reducing && p.kind == Dynamic {
		limit := p.threads * maxReduceChunksPerThread
		p.chunk = max(p.chunk, (n+limit-1)/limit)
	}
	if p.chunk == 0 {
		p.chunks = min(p.threads, n)
	} else {
		p.chunks = (n + p.chunk - 1) / p.chunk
	}
	return p
}

// bounds returns the index range of chunk k.
func (p loopPlan) bounds(k int) (lo, hi int) {
	if p.chunk == 0 {
		base, rem := p.n/p.chunks, p.n%p.chunks
		lo = k*base + min(k, rem)
		hi = lo + base
		if k < rem {
			hi++
		}
		return lo, hi
	}
	lo = k * p.chunk
	return lo, min(lo+p.chunk, p.n)
}

func (t *Team) run(ctx context.Context, p loopPlan, do func(k, lo, hi int)) error {
	var next atomic.Int64
	workers := min(p.threads, p.chunks)

	g, gctx := errgroup.WithContext(ctx)
	for tid := 0; tid < workers; tid++ {
		g.Go(func() error {
			if p.kind == Dynamic {
				for {
					if err := gctx.Err(); err != nil {
						return err
					}
					k := int(next.Add(1) - 1)
					if k >= p.chunks {
						return nil
					}
					lo, hi := p.bounds(k)
					do(k, lo, hi)
				}
			}
			for k := tid; k < p.chunks; k += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				lo, hi := p.bounds(k)
				do(k, lo, hi)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
