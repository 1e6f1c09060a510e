// Package paraprof configuration constants
package paraprof

// Thread and block dimensions
const (
	// Default block size for kernels
	DefaultBlockSize = 256

	// Maximum threads per block (CUDA compatibility)
	MaxThreadsPerBlock = 1024

	// Default grid size multiplier for grid-stride kernels
	DefaultGridMultiplier = 4

	// Tile edge for shared-memory matrix kernels
	DefaultTileSize = 32
)

// Memory pool parameters
const (
	// Memory alignment for allocations
	MemoryAlignment = 64

	// Upper bound on a single shared-memory request per block
	MaxSharedMemoryPerBlock = 48 * 1024
)

// Element sizes in bytes
const (
	Float32Size = 4
	Float64Size = 8
)
