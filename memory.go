package paraprof

import (
	"fmt"
	"sync"
	"unsafe"
)

// MemcpyKind specifies the direction of memory transfer.
// All memory is host memory here, so the kinds are kept for CUDA-style call
// sites and logging; every kind performs the same copy.
type MemcpyKind int

const (
	MemcpyHostToHost     MemcpyKind = iota // Host to host transfer
	MemcpyHostToDevice                     // Host to device transfer
	MemcpyDeviceToHost                     // Device to host transfer
	MemcpyDeviceToDevice                   // Device to device transfer
	MemcpyDefault                          // Default transfer (infer direction)
)

func (k MemcpyKind) String() string {
	switch k {
	case MemcpyHostToHost:
		return "HostToHost"
	case MemcpyHostToDevice:
		return "HostToDevice"
	case MemcpyDeviceToHost:
		return "DeviceToHost"
	case MemcpyDeviceToDevice:
		return "DeviceToDevice"
	default:
		return "Default"
	}
}

// MemoryPool manages device memory allocation with efficient reuse.
// It maintains a free list of previously allocated blocks and enforces the
// device's capacity: live bytes never exceed the pool limit.
type MemoryPool struct {
	mu         sync.Mutex
	limit      int64
	allocated  map[uintptr]*allocation
	freeList   []*allocation
	totalAlloc int64 // live bytes
	cached     int64 // bytes held by freeList
	peakAlloc  int64
}

type allocation struct {
	buf  []byte
	size int
	used bool
}

// NewMemoryPool creates a memory pool holding at most limit live bytes.
// A limit <= 0 means unlimited.
func NewMemoryPool(limit int64) *MemoryPool {
	return &MemoryPool{
		limit:     limit,
		allocated: make(map[uintptr]*allocation),
	}
}

// DevicePtr represents a pointer to device memory. Use the typed views
// (Float32, Float64, ...) to access the data and Offset for pointer arithmetic.
type DevicePtr struct {
	ptr    unsafe.Pointer
	size   int
	offset int
}

// Allocate allocates memory from the pool
func (mp *MemoryPool) Allocate(size int) (DevicePtr, error) {
	if size <= 0 {
		return DevicePtr{}, ErrInvalidSize
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	alignedSize := (size + MemoryAlignment - 1) &^ (MemoryAlignment - 1)

	// Reuse the smallest free block that fits.
	best := -1
	for i, alloc := range mp.freeList {
		if alloc.size >= alignedSize && (best < 0 || alloc.size < mp.freeList[best].size) {
			best = i
		}
	}
	if best >= 0 {
		alloc := mp.freeList[best]
		mp.freeList = append(mp.freeList[:best], mp.freeList[best+1:]...)
		alloc.used = true
		mp.cached -= int64(alloc.size)
		mp.track(int64(alloc.size))
		return DevicePtr{ptr: unsafe.Pointer(&alloc.buf[0]), size: size}, nil
	}

	if mp.limit > 0 && mp.totalAlloc+mp.cached+int64(alignedSize) > mp.limit {
		// Cached blocks still count against the device; drop them and retry.
		mp.releaseFree()
		if mp.totalAlloc+int64(alignedSize) > mp.limit {
			return DevicePtr{}, NewMemoryError("Malloc",
				fmt.Sprintf("cannot allocate %d bytes: %d of %d bytes in use", size, mp.totalAlloc, mp.limit),
				nil)
		}
	}

	buf := make([]byte, alignedSize)
	alloc := &allocation{buf: buf, size: alignedSize, used: true}
	mp.allocated[uintptr(unsafe.Pointer(&buf[0]))] = alloc
	mp.track(int64(alignedSize))

	return DevicePtr{ptr: unsafe.Pointer(&buf[0]), size: size}, nil
}

// track must be called with mp.mu held.
func (mp *MemoryPool) track(n int64) {
	mp.totalAlloc += n
	if mp.totalAlloc > mp.peakAlloc {
		mp.peakAlloc = mp.totalAlloc
	}
}

// releaseFree forgets cached free blocks so the GC can reclaim them.
// Must be called with mp.mu held.
func (mp *MemoryPool) releaseFree() {
	for _, alloc := range mp.freeList {
		delete(mp.allocated, uintptr(unsafe.Pointer(&alloc.buf[0])))
	}
	mp.freeList = nil
	mp.cached = 0
}

// Free returns memory to the pool. Freeing a zero DevicePtr is a no-op.
func (mp *MemoryPool) Free(ptr DevicePtr) error {
	if ptr.ptr == nil {
		return nil
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	alloc, ok := mp.allocated[uintptr(ptr.ptr)]
	if !ok {
		return NewMemoryError("Free", "pointer not found in allocation pool", nil)
	}
	if !alloc.used {
		return ErrDoubleFree
	}

	alloc.used = false
	mp.freeList = append(mp.freeList, alloc)
	mp.totalAlloc -= int64(alloc.size)
	mp.cached += int64(alloc.size)
	return nil
}

// GetStats returns memory pool statistics
func (mp *MemoryPool) GetStats() (allocated, peak int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.totalAlloc, mp.peakAlloc
}

// Limit returns the pool capacity in bytes (0 for unlimited).
func (mp *MemoryPool) Limit() int64 {
	if mp.limit < 0 {
		return 0
	}
	return mp.limit
}

// DevicePtr methods for convenience

// Float32 returns a float32 slice view of the device memory.
//
// Example:
//
//	d_data, _ := paraprof.Malloc(1024 * 4) // Allocate for 1024 float32s
//	data := d_data.Float32()
//	data[0] = 3.14 // Direct access
func (d DevicePtr) Float32() []float32 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*float32)(d.ptr), d.size/Float32Size)
}

// Float64 returns a float64 slice view of the device memory.
func (d DevicePtr) Float64() []float64 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*float64)(d.ptr), d.size/Float64Size)
}

// Int32 returns an int32 slice view of the device memory.
func (d DevicePtr) Int32() []int32 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*int32)(d.ptr), d.size/4)
}

// Byte returns a byte slice view of the device memory.
func (d DevicePtr) Byte() []byte {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(d.ptr), d.size)
}

// Offset returns a new DevicePtr offset by the given number of bytes.
// The returned DevicePtr shares the same underlying memory.
//
// Example:
//
//	d_array, _ := paraprof.Malloc(1024 * 4) // 1024 float32s
//	d_second_half := d_array.Offset(512 * 4) // Start at element 512
func (d DevicePtr) Offset(bytes int) DevicePtr {
	if bytes < 0 || bytes > d.size {
		panic(fmt.Sprintf("paraprof: offset %d out of range [0, %d]", bytes, d.size))
	}
	return DevicePtr{
		ptr:    unsafe.Add(d.ptr, bytes),
		size:   d.size - bytes,
		offset: d.offset + bytes,
	}
}

// Size returns the size in bytes of the memory region
func (d DevicePtr) Size() int {
	return d.size
}

// IsNil reports whether the pointer refers to no memory.
func (d DevicePtr) IsNil() bool {
	return d.ptr == nil
}

// rawBytes resolves a Memcpy operand to its base pointer and byte length.
func rawBytes(v any) (unsafe.Pointer, int, error) {
	switch x := v.(type) {
	case DevicePtr:
		return x.ptr, x.size, nil
	case []byte:
		if len(x) == 0 {
			return nil, 0, nil
		}
		return unsafe.Pointer(&x[0]), len(x), nil
	case []float32:
		if len(x) == 0 {
			return nil, 0, nil
		}
		return unsafe.Pointer(&x[0]), len(x) * Float32Size, nil
	case []float64:
		if len(x) == 0 {
			return nil, 0, nil
		}
		return unsafe.Pointer(&x[0]), len(x) * Float64Size, nil
	case []int32:
		if len(x) == 0 {
			return nil, 0, nil
		}
		return unsafe.Pointer(&x[0]), len(x) * 4, nil
	default:
		return nil, 0, fmt.Errorf("unsupported operand type %T", v)
	}
}
