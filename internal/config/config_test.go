package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadEnv(envMap(nil))
	require.NoError(t, err)
	want := Default()
	want.Threads = runtime.GOMAXPROCS(0)
	assert.Equal(t, want, cfg)
}

func TestThreadsFromEnv(t *testing.T) {
	n, err := ThreadsFromEnv(envMap(nil))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = ThreadsFromEnv(envMap(map[string]string{EnvOMPThreads: "3", EnvThreads: "5"}))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = ThreadsFromEnv(envMap(map[string]string{EnvOMPThreads: "many"}))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := LoadEnv(envMap(map[string]string{
		EnvOMPThreads: "3",
		EnvDevices:    "2",
		EnvDeviceMem:  "64M",
		EnvHostMem:    "1G",
		EnvChunkSize:  "8",
		EnvPow10Init:  "1.5",
		EnvTileSize:   "16",
		EnvVerbose:    "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Threads)
	assert.Equal(t, 2, cfg.Devices)
	assert.Equal(t, uint64(64<<20), cfg.DeviceMemory)
	assert.Equal(t, uint64(1<<30), cfg.HostMemory)
	assert.Equal(t, 8, cfg.ChunkSize)
	assert.Equal(t, 1.5, cfg.Pow10Init)
	assert.Equal(t, 16, cfg.TileSize)
	assert.True(t, cfg.Verbose)
}

func TestThreadsPreferParaprofName(t *testing.T) {
	cfg, err := LoadEnv(envMap(map[string]string{
		EnvOMPThreads: "3",
		EnvThreads:    "5",
	}))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Threads)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paraprof.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threads: 4\ndevices: 3\ntile_size: 8\n"), 0o644))

	cfg, err := LoadEnv(envMap(map[string]string{
		EnvConfig:  path,
		EnvDevices: "2",
	}))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, 2, cfg.Devices, "env overrides the file")
	assert.Equal(t, 8, cfg.TileSize)
	assert.Equal(t, 64, cfg.ChunkSize, "unset keys keep defaults")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero threads", map[string]string{EnvThreads: "0"}},
		{"bad devices", map[string]string{EnvDevices: "many"}},
		{"tile too large", map[string]string{EnvTileSize: "33"}},
		{"bad memory", map[string]string{EnvDeviceMem: "12Q"}},
		{"missing file", map[string]string{EnvConfig: "/does/not/exist.yaml"}},
		{"bad verbose", map[string]string{EnvVerbose: "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEnv(envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"4k", 4 << 10},
		{"2M", 2 << 20},
		{"3GB", 3 << 30},
		{"1T", 1 << 40},
	}
	for _, tt := range tests {
		got, err := ParseBytes(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseBytes("")
	assert.Error(t, err)
	_, err = ParseBytes("99999999999999T")
	assert.Error(t, err)
}
