package paraprof

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/paraprof/paraprof/internal/config"
)

// Device represents a compute device. Each virtual device owns an equal share
// of the CPU cores and of the configured device memory.
type Device struct {
	ID         int    // Unique device identifier
	Name       string // Human-readable device name
	TotalMem   uint64 // Total available memory in bytes
	NumCores   int    // Number of CPU cores backing the device
	MaxThreads int    // Maximum concurrent threads

	pool *MemoryPool
}

// Context represents an execution context bound to one device.
// It manages streams and allocations on that device. A Context must be
// destroyed when no longer needed.
type Context struct {
	device        *Device
	memory        *MemoryPool
	mu            sync.Mutex
	streams       map[int]*Stream
	streamID      int32
	defaultStream *Stream
	destroyed     bool
}

// Stream represents an ordered sequence of operations that execute
// asynchronously. Operations within a stream execute in order, but
// operations in different streams may execute concurrently.
type Stream struct {
	id    int
	tasks chan func() error
	done  chan struct{}
	wg    sync.WaitGroup

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// Dim3 represents 3D dimensions for grid and block configurations.
type Dim3 struct {
	X, Y, Z int
}

// ThreadID identifies a thread's position within the execution hierarchy,
// with the semantics of blockIdx, threadIdx, blockDim and gridDim.
type ThreadID struct {
	BlockIdx  Dim3 // Block index within the grid
	ThreadIdx Dim3 // Thread index within the block
	BlockDim  Dim3 // Dimensions of the block
	GridDim   Dim3 // Dimensions of the grid
}

// Kernel represents a compute kernel that can be executed in parallel.
// Execute is called concurrently from multiple goroutines.
type Kernel interface {
	Execute(tid ThreadID, args ...any)
}

// KernelFunc is a function that can be launched as a kernel.
type KernelFunc func(tid ThreadID, args ...any)

// Global runtime state
var (
	stateMu        sync.Mutex
	devices        []*Device
	currentContext *Context
	initOnce       sync.Once
)

func ensureInit() {
	initOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			slog.Warn("paraprof: invalid configuration, using defaults", "error", err)
			cfg = config.Default()
		}
		stateMu.Lock()
		defer stateMu.Unlock()
		configureLocked(cfg)
	})
}

// Configure rebuilds the device table from cfg and makes device 0 current.
// Contexts created before the call keep working on their old devices.
func Configure(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return NewInvalidArgError("Configure", err.Error())
	}
	initOnce.Do(func() {})
	stateMu.Lock()
	defer stateMu.Unlock()
	if currentContext != nil {
		currentContext.Destroy()
	}
	configureLocked(cfg)
	return nil
}

func configureLocked(cfg config.Config) {
	devices = buildDevices(cfg)
	currentContext = newContext(devices[0])
	hostLimit = cfg.HostMemory
	if hostLimit == 0 {
		hostLimit = systemMemory()
	}
}

func buildDevices(cfg config.Config) []*Device {
	n := max(cfg.Devices, 1)
	cores := max(runtime.NumCPU()/n, 1)

	mem := cfg.DeviceMemory
	if mem == 0 {
		mem = systemMemory() / uint64(n)
	}

	devs := make([]*Device, n)
	for i := range devs {
		devs[i] = &Device{
			ID:         i,
			Name:       fmt.Sprintf("CPU device %d (%s)", i, SIMDLevel()),
			TotalMem:   mem,
			NumCores:   cores,
			MaxThreads: cores * 2,
			pool:       NewMemoryPool(int64(mem)),
		}
	}
	return devs
}

func current() *Context {
	ensureInit()
	stateMu.Lock()
	defer stateMu.Unlock()
	return currentContext
}

// Malloc allocates memory of the specified size in bytes on the current device.
//
// Example:
//
//	d_data, err := paraprof.Malloc(1024 * 4) // Allocate 1024 float32s
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer paraprof.Free(d_data)
func Malloc(size int) (DevicePtr, error) {
	return current().Malloc(size)
}

// Free releases device memory allocated by Malloc.
// It is safe to call Free with a zero-value DevicePtr.
func Free(ptr DevicePtr) error {
	return current().Free(ptr)
}

// Memcpy copies memory between host and device on the current device.
// Supports DevicePtr, []float32, []float64, []int32 and []byte operands.
func Memcpy(dst, src any, size int, kind MemcpyKind) error {
	return current().Memcpy(dst, src, size, kind)
}

// Launch executes a kernel on the current device's default stream.
func Launch(kernel Kernel, grid, block Dim3, args ...any) error {
	return current().Launch(kernel, grid, block, args...)
}

// LaunchFunc executes a kernel function
func LaunchFunc(fn KernelFunc, grid, block Dim3, args ...any) error {
	return current().LaunchFunc(fn, grid, block, args...)
}

// Synchronize waits for all operations on the current device to complete and
// returns the first kernel failure, if any.
func Synchronize() error {
	return current().Synchronize()
}

// GetDevice returns the current device information.
func GetDevice() *Device {
	return current().device
}

// SetDevice makes device id current for the package-level functions.
func SetDevice(id int) error {
	ensureInit()
	stateMu.Lock()
	defer stateMu.Unlock()
	if id < 0 || id >= len(devices) {
		return ErrInvalidDevice
	}
	if currentContext != nil && currentContext.device.ID == id {
		return nil
	}
	if currentContext != nil {
		currentContext.Destroy()
	}
	currentContext = newContext(devices[id])
	return nil
}

// GetDeviceCount returns the number of available devices.
func GetDeviceCount() int {
	ensureInit()
	stateMu.Lock()
	defer stateMu.Unlock()
	return len(devices)
}

// GetDeviceProperties returns device properties
func GetDeviceProperties(id int) (*Device, error) {
	ensureInit()
	stateMu.Lock()
	defer stateMu.Unlock()
	if id < 0 || id >= len(devices) {
		return nil, NewInvalidArgError("GetDeviceProperties", fmt.Sprintf("invalid device ID: %d", id))
	}
	return devices[id], nil
}

// NewContext creates an execution context on device id. Several contexts may
// share a device; they then share its memory budget.
func NewContext(id int) (*Context, error) {
	d, err := GetDeviceProperties(id)
	if err != nil {
		return nil, err
	}
	return newContext(d), nil
}

func newContext(d *Device) *Context {
	ctx := &Context{
		device:  d,
		memory:  d.pool,
		streams: make(map[int]*Stream),
	}
	ctx.defaultStream = ctx.CreateStream()
	return ctx
}

// Context methods

// Device returns the device the context is bound to.
func (ctx *Context) Device() *Device {
	return ctx.device
}

// CreateStream creates a new execution stream
func (ctx *Context) CreateStream() *Stream {
	id := int(atomic.AddInt32(&ctx.streamID, 1))
	stream := &Stream{
		id:    id,
		tasks: make(chan func() error, 1000),
		done:  make(chan struct{}),
	}

	go stream.worker()

	ctx.mu.Lock()
	ctx.streams[id] = stream
	ctx.mu.Unlock()
	return stream
}

// Launch executes a kernel on the default stream
func (ctx *Context) Launch(kernel Kernel, grid, block Dim3, args ...any) error {
	return ctx.LaunchStream(kernel, grid, block, ctx.defaultStream, args...)
}

// LaunchFunc executes a kernel function on the default stream
func (ctx *Context) LaunchFunc(fn KernelFunc, grid, block Dim3, args ...any) error {
	return ctx.LaunchFuncStream(fn, grid, block, ctx.defaultStream, args...)
}

// LaunchStream executes a kernel on a specific stream
func (ctx *Context) LaunchStream(kernel Kernel, grid, block Dim3, stream *Stream, args ...any) error {
	return ctx.launchInternal(kernel.Execute, grid, block, stream, args...)
}

// LaunchFuncStream executes a kernel function on a specific stream
func (ctx *Context) LaunchFuncStream(fn KernelFunc, grid, block Dim3, stream *Stream, args ...any) error {
	return ctx.launchInternal(fn, grid, block, stream, args...)
}

// Malloc allocates device memory of the specified size in bytes.
func (ctx *Context) Malloc(size int) (DevicePtr, error) {
	if ctx.isDestroyed() {
		return DevicePtr{}, ErrContextDestroyed
	}
	return ctx.memory.Allocate(size)
}

// Free releases device memory allocated by Malloc.
func (ctx *Context) Free(ptr DevicePtr) error {
	return ctx.memory.Free(ptr)
}

// Memcpy copies size bytes from src to dst. Both operands must hold at least
// size bytes.
func (ctx *Context) Memcpy(dst, src any, size int, kind MemcpyKind) error {
	if size < 0 {
		return NewInvalidArgError("Memcpy", fmt.Sprintf("negative size %d", size))
	}
	dstPtr, dstLen, err := rawBytes(dst)
	if err != nil {
		return NewInvalidArgError("Memcpy", "dst: "+err.Error())
	}
	srcPtr, srcLen, err := rawBytes(src)
	if err != nil {
		return NewInvalidArgError("Memcpy", "src: "+err.Error())
	}
	if size > dstLen || size > srcLen {
		return NewInvalidArgError("Memcpy",
			fmt.Sprintf("%s copy of %d bytes exceeds operand sizes (dst %d, src %d)", kind, size, dstLen, srcLen))
	}
	if size == 0 {
		return nil
	}
	copy(unsafe.Slice((*byte)(dstPtr), size), unsafe.Slice((*byte)(srcPtr), size))
	return nil
}

// MemoryStats reports live and peak bytes on the context's device.
func (ctx *Context) MemoryStats() (allocated, peak int64) {
	return ctx.memory.GetStats()
}

// Synchronize waits for all streams to complete and returns the first error
// raised by a kernel since the previous Synchronize.
func (ctx *Context) Synchronize() error {
	ctx.mu.Lock()
	streams := make([]*Stream, 0, len(ctx.streams))
	for _, s := range ctx.streams {
		streams = append(streams, s)
	}
	ctx.mu.Unlock()

	var first error
	for _, s := range streams {
		if err := s.Synchronize(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Destroy waits for pending work and stops the context's streams.
func (ctx *Context) Destroy() {
	ctx.mu.Lock()
	if ctx.destroyed {
		ctx.mu.Unlock()
		return
	}
	ctx.destroyed = true
	streams := ctx.streams
	ctx.streams = map[int]*Stream{}
	ctx.mu.Unlock()

	for _, s := range streams {
		s.Synchronize()
		s.close()
	}
}

func (ctx *Context) isDestroyed() bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.destroyed
}

// Stream methods

// worker processes tasks for a stream
func (s *Stream) worker() {
	for task := range s.tasks {
		if err := task(); err != nil {
			s.mu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
		}
		s.wg.Done()
	}
	close(s.done)
}

// Synchronize waits for all tasks in the stream to complete and returns the
// first task error, clearing it.
func (s *Stream) Synchronize() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

// Submit adds a task to the stream
func (s *Stream) Submit(task func() error) {
	s.wg.Add(1)
	s.tasks <- task
}

func (s *Stream) close() {
	s.closeOnce.Do(func() {
		close(s.tasks)
		<-s.done
	})
}

// Helper functions

// Global returns the global thread index
func (tid ThreadID) Global() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// GlobalX returns the global X index
func (tid ThreadID) GlobalX() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// GlobalY returns the global Y index
func (tid ThreadID) GlobalY() int {
	return tid.BlockIdx.Y*tid.BlockDim.Y + tid.ThreadIdx.Y
}

// GlobalZ returns the global Z index
func (tid ThreadID) GlobalZ() int {
	return tid.BlockIdx.Z*tid.BlockDim.Z + tid.ThreadIdx.Z
}

// Linear returns the thread's linear index within its block.
func (tid ThreadID) Linear() int {
	return (tid.ThreadIdx.Z*tid.BlockDim.Y+tid.ThreadIdx.Y)*tid.BlockDim.X + tid.ThreadIdx.X
}

// Size returns the total number of elements
func (d Dim3) Size() int {
	return d.X * d.Y * d.Z
}

// Execute implements Kernel for KernelFunc.
func (fn KernelFunc) Execute(tid ThreadID, args ...any) {
	fn(tid, args...)
}
