package paraprof

import (
	"fmt"
	"runtime/debug"
	"sync"
	"unsafe"
)

// BlockFunc is a kernel written per block. It runs once for every block of the
// grid and drives the block's threads phase by phase through Block.Threads.
type BlockFunc func(b *Block)

// Block is the execution state of one thread block.
type Block struct {
	Idx  Dim3 // blockIdx
	Dim  Dim3 // blockDim
	Grid Dim3 // gridDim

	shared []byte
}

// Threads runs phase for every thread of the block and returns once all of
// them have finished, so consecutive calls are separated by a block-wide
// barrier (__syncthreads).
func (b *Block) Threads(phase func(tid ThreadID)) {
	n := b.Dim.Size()
	for t := 0; t < n; t++ {
		phase(ThreadID{
			BlockIdx:  b.Idx,
			ThreadIdx: linearTo3D(t, b.Dim),
			BlockDim:  b.Dim,
			GridDim:   b.Grid,
		})
	}
}

// Shared returns the block's shared-memory scratch. Its contents are
// undefined at block start.
func (b *Block) Shared() DevicePtr {
	if len(b.shared) == 0 {
		return DevicePtr{}
	}
	return DevicePtr{ptr: unsafe.Pointer(&b.shared[0]), size: len(b.shared)}
}

// SharedFloat64 returns the shared scratch viewed as float64s.
func (b *Block) SharedFloat64() []float64 {
	return b.Shared().Float64()
}

// SharedFloat32 returns the shared scratch viewed as float32s.
func (b *Block) SharedFloat32() []float32 {
	return b.Shared().Float32()
}

// LaunchBlocks executes fn for every block of grid on the default stream.
// Each block gets sharedBytes of private scratch memory.
func (ctx *Context) LaunchBlocks(fn BlockFunc, grid, block Dim3, sharedBytes int) error {
	return ctx.LaunchBlocksStream(fn, grid, block, sharedBytes, ctx.defaultStream)
}

// LaunchBlocksStream executes fn for every block of grid on stream.
func (ctx *Context) LaunchBlocksStream(fn BlockFunc, grid, block Dim3, sharedBytes int, stream *Stream) error {
	if sharedBytes < 0 || sharedBytes > MaxSharedMemoryPerBlock {
		return NewInvalidArgError("LaunchBlocks",
			fmt.Sprintf("shared memory request %d outside [0, %d]", sharedBytes, MaxSharedMemoryPerBlock))
	}
	return ctx.dispatch("LaunchBlocks", grid, block, stream, func(blockID int, shared []byte) {
		fn(&Block{
			Idx:    linearTo3D(blockID, grid),
			Dim:    block,
			Grid:   grid,
			shared: shared,
		})
	}, sharedBytes)
}

// launchInternal implements the per-thread kernel execution
func (ctx *Context) launchInternal(
	kernelFunc func(ThreadID, ...any),
	grid, block Dim3,
	stream *Stream,
	args ...any,
) error {
	return ctx.dispatch("Launch", grid, block, stream, func(blockID int, _ []byte) {
		blockIdx := linearTo3D(blockID, grid)
		// Threads of a block run sequentially on one worker to keep the
		// block's data in that core's cache.
		blockSize := block.Size()
		for threadID := 0; threadID < blockSize; threadID++ {
			kernelFunc(ThreadID{
				BlockIdx:  blockIdx,
				ThreadIdx: linearTo3D(threadID, block),
				BlockDim:  block,
				GridDim:   grid,
			}, args...)
		}
	}, 0)
}

// dispatch validates the launch geometry and submits a task that spreads the
// grid's blocks over the device's workers.
func (ctx *Context) dispatch(op string, grid, block Dim3, stream *Stream, runBlock func(blockID int, shared []byte), sharedBytes int) error {
	if ctx.isDestroyed() {
		return ErrContextDestroyed
	}
	if err := validateGeometry(op, grid, block); err != nil {
		return err
	}

	gridSize := grid.Size()
	if gridSize == 0 || block.Size() == 0 {
		// Keep stream ordering even for empty launches.
		stream.Submit(func() error { return nil })
		return nil
	}

	numWorkers := min(ctx.device.NumCores, gridSize)

	stream.Submit(func() error {
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			firstErr error
		)
		// Blocks are dealt in contiguous ranges so neighbouring blocks share
		// a worker.
		blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers
		for w := 0; w < numWorkers; w++ {
			start := w * blocksPerWorker
			end := min(start+blocksPerWorker, gridSize)
			if start >= end {
				break
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						mu.Lock()
						if firstErr == nil {
							firstErr = NewExecutionError(op,
								fmt.Sprintf("kernel panicked: %v", r),
								fmt.Errorf("%s", debug.Stack()))
						}
						mu.Unlock()
					}
				}()
				var shared []byte
				if sharedBytes > 0 {
					shared = make([]byte, sharedBytes)
				}
				for blockID := start; blockID < end; blockID++ {
					runBlock(blockID, shared)
				}
			}()
		}
		wg.Wait()
		return firstErr
	})

	return nil
}

func validateGeometry(op string, grid, block Dim3) error {
	for _, d := range []Dim3{grid, block} {
		if d.X < 0 || d.Y < 0 || d.Z < 0 {
			return NewInvalidArgError(op, fmt.Sprintf("negative launch dimension %+v", d))
		}
	}
	if block.Size() > MaxThreadsPerBlock {
		return NewInvalidArgError(op,
			fmt.Sprintf("block of %d threads exceeds %d", block.Size(), MaxThreadsPerBlock))
	}
	return nil
}

// linearTo3D converts a linear index to 3D coordinates
func linearTo3D(linear int, dim Dim3) Dim3 {
	z := linear / (dim.X * dim.Y)
	y := (linear % (dim.X * dim.Y)) / dim.X
	x := linear % dim.X
	return Dim3{X: x, Y: y, Z: z}
}
