package paraprof

import (
	"testing"

	"github.com/paraprof/paraprof/internal/config"
)

// MallocOrFail allocates device memory and fails the test if unsuccessful
func MallocOrFail(t testing.TB, ctx *Context, size int) DevicePtr {
	t.Helper()
	ptr, err := ctx.Malloc(size)
	if err != nil {
		t.Fatalf("Failed to allocate %d bytes: %v", size, err)
	}
	return ptr
}

// MemcpyOrFail copies data and fails the test if unsuccessful
func MemcpyOrFail(t testing.TB, ctx *Context, dst, src any, size int, kind MemcpyKind) {
	t.Helper()
	if err := ctx.Memcpy(dst, src, size, kind); err != nil {
		t.Fatalf("Memcpy failed: %v", err)
	}
}

// LaunchOrFail launches a kernel and fails the test if unsuccessful
func LaunchOrFail(t testing.TB, ctx *Context, kernel KernelFunc, grid, block Dim3, args ...any) {
	t.Helper()
	if err := ctx.LaunchFunc(kernel, grid, block, args...); err != nil {
		t.Fatalf("Kernel launch failed: %v", err)
	}
}

// SynchronizeOrFail synchronizes and fails the test if unsuccessful
func SynchronizeOrFail(t testing.TB, ctx *Context) {
	t.Helper()
	if err := ctx.Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}
}

// newTestContext returns a context on device 0 that is destroyed when the
// test ends.
func newTestContext(t testing.TB) *Context {
	t.Helper()
	ctx, err := NewContext(0)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(ctx.Destroy)
	return ctx
}

// withConfig installs cfg for the duration of the test and restores the
// defaults afterwards. Tests using it must not run in parallel.
func withConfig(t testing.TB, cfg config.Config) {
	t.Helper()
	if err := Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	t.Cleanup(func() {
		if err := Configure(config.Default()); err != nil {
			t.Errorf("restore config: %v", err)
		}
	})
}
