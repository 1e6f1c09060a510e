package tutorials

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paraprof/paraprof/internal/config"
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/kernels"
	"github.com/paraprof/paraprof/mpi"
)

func run(t *testing.T, p program.Program, args ...string) (int, string) {
	t.Helper()
	t.Setenv(config.EnvThreads, "2")
	var stdout, stderr bytes.Buffer
	code := p.Execute(context.Background(), args, &stdout, &stderr)
	t.Logf("%s stderr:\n%s", p.Name, stderr.String())
	return code, stdout.String()
}

// sumOf extracts the sum= field of a dot product result line.
func sumOf(t *testing.T, re *regexp.Regexp, line string) float64 {
	t.Helper()
	m := re.FindStringSubmatch(line)
	require.NotNil(t, m, "unexpected output %q", line)
	v, err := strconv.ParseFloat(m[1], 64)
	require.NoError(t, err)
	return v
}

func TestOMPPow10(t *testing.T) {
	code, out := run(t, OMPPow10, "1000")
	require.Equal(t, program.ExitSuccess, code)
	assert.Equal(t, fmt.Sprintf("Array value is: %f\n", kernels.Pow10Expected(1.0001)), out)
	assert.Equal(t, "Array value is: 1.107821\n", out)
}

func TestOMPDot(t *testing.T) {
	code, out := run(t, OMPDot, "1000")
	require.Equal(t, program.ExitSuccess, code)
	re := regexp.MustCompile(`^\[OpenMP\] n=1000 threads=2  sum=(\S+)  time=\d+\.\d{3} s\n$`)
	assert.InDelta(t, kernels.DotExpected(1000), sumOf(t, re, out), 1e-9)
}

func TestMPIOMPDot(t *testing.T) {
	t.Setenv(mpi.EnvNP, "3")
	code, out := run(t, MPIOMPDot, "1000")
	require.Equal(t, program.ExitSuccess, code)
	re := regexp.MustCompile(`^\[MPI\+OpenMP\] n=1000 ranks=3 threads/rank=2  sum=(\S+)  time=\d+\.\d{3} s\n$`)
	assert.InDelta(t, kernels.DotExpected(1000), sumOf(t, re, out), 1e-9)
}

func TestACCDot(t *testing.T) {
	code, out := run(t, ACCDot, "1000")
	require.Equal(t, program.ExitSuccess, code)
	re := regexp.MustCompile(`^\[OpenACC\] n=1000  sum=(\S+)  time=\d+\.\d{3} s\n$`)
	assert.InDelta(t, kernels.DotExpected(1000), sumOf(t, re, out), 1e-9)
}

func TestCUDAMatMul(t *testing.T) {
	code, out := run(t, CUDAMatMul, "40")
	require.Equal(t, program.ExitSuccess, code)
	c11, cnn := kernels.MatMulTiledExpected(40)
	assert.Equal(t, fmt.Sprintf("C(1,1)=%.6f  C(n,n)=%.6f\n", c11, cnn), out)
}

func TestCUDAMatMulTileFromConfig(t *testing.T) {
	t.Setenv(config.EnvTileSize, "8")
	code, out := run(t, CUDAMatMul, "20")
	require.Equal(t, program.ExitSuccess, code)
	c11, cnn := kernels.MatMulTiledExpected(20)
	assert.Equal(t, fmt.Sprintf("C(1,1)=%.6f  C(n,n)=%.6f\n", c11, cnn), out)
}

func TestMPICUDAVAdd(t *testing.T) {
	for _, np := range []string{"1", "3"} {
		t.Setenv(mpi.EnvNP, np)
		code, out := run(t, MPICUDAVAdd, "1000")
		require.Equal(t, program.ExitSuccess, code)
		assert.Equal(t, "vadd OK (world_size="+np+")\n", out)
	}
}

func TestMPICUDAVAddMoreRanksThanElements(t *testing.T) {
	t.Setenv(mpi.EnvNP, "4")
	t.Setenv(config.EnvDevices, "2")
	code, out := run(t, MPICUDAVAdd, "3")
	require.Equal(t, program.ExitSuccess, code)
	assert.Equal(t, "vadd OK (world_size=4)\n", out)
}

func TestMPIAxpyDot(t *testing.T) {
	for _, device := range []string{"0", "1"} {
		t.Setenv(EnvAxpyDevice, device)
		t.Setenv(mpi.EnvNP, "3")
		code, out := run(t, MPIAxpyDot, "10")
		require.Equal(t, program.ExitSuccess, code)
		assert.Equal(t, "Global size = 10, Final dot product = 3.900000e+01\n", out, "device=%s", device)
	}
}

func TestMPIRingMatMul(t *testing.T) {
	t.Setenv(mpi.EnvNP, "2")
	code, out := run(t, MPIRingMatMul, "8")
	require.Equal(t, program.ExitSuccess, code)
	assert.Regexp(t, `^RESULT algo=ring_mm N=8 P=2 time=\d+\.\d{6}s gflops=\S+ max_err=0\.000e\+00\n$`, out)
}

func TestOMPMatMul(t *testing.T) {
	code, out := run(t, OMPMatMul, "10")
	require.Equal(t, program.ExitSuccess, code)
	assert.Regexp(t, `^\[OpenMP\] matmul n=10 threads=2  C\(1,1\)=30\.0  time=\d+\.\d{3} s\n$`, out)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		p    program.Program
		args []string
	}{
		{OMPDot, nil},
		{ACCDot, []string{"0"}},
		{CUDAMatMul, []string{"abc"}},
		{MPIOMPDot, []string{"-5"}},
		{MPIRingMatMul, []string{"1", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.p.Name, func(t *testing.T) {
			code, out := run(t, tt.p, tt.args...)
			assert.Equal(t, program.ExitUsage, code)
			assert.Empty(t, out)
		})
	}
}

func TestAllocationFailure(t *testing.T) {
	t.Setenv(config.EnvHostMem, "1K")
	code, out := run(t, OMPDot, "1000000")
	assert.Equal(t, program.ExitAlloc, code)
	assert.Empty(t, out)

	t.Setenv(mpi.EnvNP, "2")
	code, out = run(t, MPIOMPDot, "1000000")
	assert.Equal(t, program.ExitAlloc, code)
	assert.Empty(t, out)
}

func TestDeviceAllocationFailure(t *testing.T) {
	t.Setenv(config.EnvDeviceMem, "4K")
	code, out := run(t, ACCDot, "100000")
	assert.Equal(t, program.ExitAlloc, code)
	assert.Empty(t, out)
}

func TestLookup(t *testing.T) {
	for _, p := range All {
		got, ok := Lookup(p.Name)
		require.True(t, ok, p.Name)
		assert.Equal(t, p.Name, got.Name)
	}
	_, ok := Lookup("nope")
	assert.False(t, ok)
}
