package kernels

import (
	"fmt"
	"math"

	"github.com/paraprof/paraprof"
)

// MatrixLen returns n*n, or an error if n is not positive or the product
// does not fit in an int.
func MatrixLen(op string, n int) (int, error) {
	if n <= 0 {
		return 0, paraprof.NewInvalidArgError(op, fmt.Sprintf("matrix order must be positive, got %d", n))
	}
	if n > math.MaxInt/n {
		return 0, paraprof.NewMemoryError(op, fmt.Sprintf("%d×%d matrix overflows the address space", n, n), nil)
	}
	return n * n, nil
}

// FillMatMul fills the row-major n×n operands of the tiled matmul with
// A(i,j) = i+j and B(i,j) = i-j for 1-based i and j.
func FillMatMul(a, b []float64, n int) {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a[i*n+j] = float64((i + 1) + (j + 1))
			b[i*n+j] = float64((i + 1) - (j + 1))
		}
	}
}

// MatMulTiledExpected returns the corners C(1,1) and C(n,n) of the product
// of the FillMatMul operands:
//
//	C(1,1) = Σk (1+k)(k-1) = n(n+1)(2n+1)/6 - n
//	C(n,n) = Σk (n+k)(k-n) = n(n+1)(2n+1)/6 - n³
func MatMulTiledExpected(n int) (c11, cnn float64) {
	f := float64(n)
	squares := f * (f + 1) * (2*f + 1) / 6
	return squares - f, squares - f*f*f
}

// MatMulTiled computes the row-major product c = a×b of n×n matrices on the
// device of dctx. Each block of tile×tile threads computes one tile of c,
// staging tiles of a and b through shared memory and meeting at a barrier
// before and after each multiply-accumulate step. A tile of 0 selects
// paraprof.DefaultTileSize.
func MatMulTiled(dctx *paraprof.Context, a, b []float64, n, tile int) ([]float64, error) {
	nn, err := MatrixLen("MatMulTiled", n)
	if err != nil {
		return nil, err
	}
	if len(a) < nn || len(b) < nn {
		return nil, paraprof.NewInvalidArgError("MatMulTiled",
			fmt.Sprintf("operands of %d and %d elements for n=%d", len(a), len(b), n))
	}
	if tile == 0 {
		tile = paraprof.DefaultTileSize
	}
	if tile < 1 || tile*tile > paraprof.MaxThreadsPerBlock {
		return nil, paraprof.NewInvalidArgError("MatMulTiled", fmt.Sprintf("invalid tile %d", tile))
	}

	c, err := paraprof.AllocFloat64(nn)
	if err != nil {
		return nil, err
	}

	bytes := nn * paraprof.Float64Size
	d_A, err := dctx.Malloc(bytes)
	if err != nil {
		return nil, err
	}
	defer dctx.Free(d_A)
	d_B, err := dctx.Malloc(bytes)
	if err != nil {
		return nil, err
	}
	defer dctx.Free(d_B)
	d_C, err := dctx.Malloc(bytes)
	if err != nil {
		return nil, err
	}
	defer dctx.Free(d_C)

	if err := dctx.Memcpy(d_A, a, bytes, paraprof.MemcpyHostToDevice); err != nil {
		return nil, err
	}
	if err := dctx.Memcpy(d_B, b, bytes, paraprof.MemcpyHostToDevice); err != nil {
		return nil, err
	}

	tiles := (n + tile - 1) / tile
	block := paraprof.Dim3{X: tile, Y: tile, Z: 1}
	grid := paraprof.Dim3{X: tiles, Y: tiles, Z: 1}
	// As, Bs and the per-thread accumulators.
	tt := tile * tile
	shared := 3 * tt * paraprof.Float64Size

	A, B, C := d_A.Float64(), d_B.Float64(), d_C.Float64()
	err = dctx.LaunchBlocks(func(blk *paraprof.Block) {
		sh := blk.SharedFloat64()
		as, bs, acc := sh[:tt], sh[tt:2*tt], sh[2*tt:3*tt]

		blk.Threads(func(tid paraprof.ThreadID) {
			acc[tid.ThreadIdx.Y*tile+tid.ThreadIdx.X] = 0
		})
		for t := 0; t < tiles; t++ {
			blk.Threads(func(tid paraprof.ThreadID) {
				tx, ty := tid.ThreadIdx.X, tid.ThreadIdx.Y
				row := blk.Idx.Y*tile + ty
				col := blk.Idx.X*tile + tx
				aCol := t*tile + tx
				bRow := t*tile + ty
				if row < n && aCol < n {
					as[ty*tile+tx] = A[row*n+aCol]
				} else {
					as[ty*tile+tx] = 0
				}
				if bRow < n && col < n {
					bs[ty*tile+tx] = B[bRow*n+col]
				} else {
					bs[ty*tile+tx] = 0
				}
			})
			blk.Threads(func(tid paraprof.ThreadID) {
				tx, ty := tid.ThreadIdx.X, tid.ThreadIdx.Y
				sum := acc[ty*tile+tx]
				for k := 0; k < tile; k++ {
					sum += as[ty*tile+k] * bs[k*tile+tx]
				}
				acc[ty*tile+tx] = sum
			})
		}
		blk.Threads(func(tid paraprof.ThreadID) {
			tx, ty := tid.ThreadIdx.X, tid.ThreadIdx.Y
			row := blk.Idx.Y*tile + ty
			col := blk.Idx.X*tile + tx
			if row < n && col < n {
				C[row*n+col] = acc[ty*tile+tx]
			}
		})
	}, grid, block, shared)
	if err != nil {
		return nil, err
	}
	if err := dctx.Synchronize(); err != nil {
		return nil, err
	}
	if err := dctx.Memcpy(c, d_C, bytes, paraprof.MemcpyDeviceToHost); err != nil {
		return nil, err
	}
	return c, nil
}
