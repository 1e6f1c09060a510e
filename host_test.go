package paraprof

import "testing"

func TestAllocHost(t *testing.T) {
	a, err := AllocFloat64(1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 1000 {
		t.Errorf("len = %d, want 1000", len(a))
	}
	b, err := AllocFloat32(0)
	if err != nil || len(b) != 0 {
		t.Errorf("AllocFloat32(0) = %d elements, %v", len(b), err)
	}
	if _, err := AllocFloat64(-1); !IsInvalidArgError(err) {
		t.Errorf("negative length: got %v", err)
	}
}

func TestAllocHostLimit(t *testing.T) {
	old := SetHostMemoryLimit(1 << 20)
	t.Cleanup(func() { SetHostMemoryLimit(old) })

	if _, err := AllocFloat64(1 << 17); err != nil {
		t.Errorf("allocation at the limit: %v", err)
	}
	if _, err := AllocFloat64(1<<17 + 1); !IsMemoryError(err) {
		t.Errorf("allocation over the limit: got %v, want memory error", err)
	}
	if _, err := AllocFloat32(1<<18 + 1); !IsMemoryError(err) {
		t.Errorf("float32 allocation over the limit: got %v, want memory error", err)
	}

	SetHostMemoryLimit(0)
	if _, err := AllocFloat64(int(^uint(0) >> 1)); !IsMemoryError(err) {
		t.Errorf("overflowing request: got %v, want memory error", err)
	}
}
