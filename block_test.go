package paraprof

import (
	"sync/atomic"
	"testing"
)

// Each block stages its slice in shared memory, then every thread reads a
// neighbour's slot. Without the barrier between the phases the reads would
// see stale values.
func TestLaunchBlocksSharedBarrier(t *testing.T) {
	const n, threads = 1000, 128
	ctx := newTestContext(t)

	in := make([]float64, n)
	out := make([]float64, n)
	for i := range in {
		in[i] = float64(i)
	}

	blocks := (n + threads - 1) / threads
	err := ctx.LaunchBlocks(func(b *Block) {
		sh := b.SharedFloat64()
		b.Threads(func(tid ThreadID) {
			if g := tid.Global(); g < n {
				sh[tid.ThreadIdx.X] = in[g]
			}
		})
		b.Threads(func(tid ThreadID) {
			g := tid.Global()
			if g >= n {
				return
			}
			// Reverse within the block.
			last := min(threads, n-b.Idx.X*threads) - 1
			out[g] = sh[last-tid.ThreadIdx.X]
		})
	}, Dim3{X: blocks, Y: 1, Z: 1}, Dim3{X: threads, Y: 1, Z: 1}, threads*Float64Size)
	if err != nil {
		t.Fatal(err)
	}
	SynchronizeOrFail(t, ctx)

	for blk := 0; blk < blocks; blk++ {
		lo := blk * threads
		hi := min(lo+threads, n)
		for i := lo; i < hi; i++ {
			if want := float64(lo + hi - 1 - i); out[i] != want {
				t.Fatalf("out[%d] = %v, want %v", i, out[i], want)
			}
		}
	}
}

func TestLaunchBlocksVisitsEveryBlock(t *testing.T) {
	ctx := newTestContext(t)
	grid := Dim3{X: 5, Y: 3, Z: 2}
	seen := make([]int32, grid.Size())

	err := ctx.LaunchBlocks(func(b *Block) {
		id := (b.Idx.Z*b.Grid.Y+b.Idx.Y)*b.Grid.X + b.Idx.X
		atomic.AddInt32(&seen[id], 1)
		if b.Shared().Size() != 0 {
			panic("unexpected shared memory")
		}
	}, grid, Dim3{X: 1, Y: 1, Z: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	SynchronizeOrFail(t, ctx)

	for i, c := range seen {
		if c != 1 {
			t.Errorf("block %d ran %d times", i, c)
		}
	}
}

func TestLaunchBlocksErrors(t *testing.T) {
	ctx := newTestContext(t)
	noop := func(*Block) {}
	one := Dim3{X: 1, Y: 1, Z: 1}

	if err := ctx.LaunchBlocks(noop, one, one, MaxSharedMemoryPerBlock+1); !IsInvalidArgError(err) {
		t.Errorf("oversized shared memory: got %v", err)
	}
	if err := ctx.LaunchBlocks(noop, one, Dim3{X: 32, Y: 32, Z: 2}, 0); !IsInvalidArgError(err) {
		t.Errorf("2048-thread block: got %v", err)
	}

	err := ctx.LaunchBlocks(func(b *Block) {
		b.SharedFloat32()[100] = 1 // out of range
	}, one, one, 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.Synchronize(); !IsExecutionError(err) {
		t.Errorf("out-of-range shared access: got %v, want execution error", err)
	}
}
