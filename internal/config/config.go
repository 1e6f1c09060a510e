// Package config loads the runtime knobs shared by the tutorial programs.
//
// Values come from an optional YAML file named by PARAPROF_CONFIG and are then
// overridden by individual environment variables, so a job script can pin a
// single knob without editing the file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables understood by Load.
const (
	EnvConfig     = "PARAPROF_CONFIG"
	EnvThreads    = "PARAPROF_NUM_THREADS"
	EnvOMPThreads = "OMP_NUM_THREADS"
	EnvDevices    = "PARAPROF_DEVICES"
	EnvDeviceMem  = "PARAPROF_DEVICE_MEM"
	EnvHostMem    = "PARAPROF_HOST_MEM"
	EnvChunkSize  = "PARAPROF_CHUNK_SIZE"
	EnvPow10Init  = "PARAPROF_POW10_INIT"
	EnvTileSize   = "PARAPROF_TILE"
	EnvVerbose    = "PARAPROF_VERBOSE"
)

// MaxTileSize keeps a square tile within the 1024 threads a block may hold.
const MaxTileSize = 32

// Config holds the runtime knobs. Zero values mean "pick a default at use site"
// for DeviceMemory and HostMemory. Load resolves an unset Threads to
// GOMAXPROCS.
type Config struct {
	Threads      int     `yaml:"threads"`
	Devices      int     `yaml:"devices"`
	DeviceMemory uint64  `yaml:"device_memory"`
	HostMemory   uint64  `yaml:"host_memory"`
	ChunkSize    int     `yaml:"chunk_size"`
	Pow10Init    float64 `yaml:"pow10_init"`
	TileSize     int     `yaml:"tile_size"`
	Verbose      bool    `yaml:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Devices:   1,
		ChunkSize: 64,
		Pow10Init: 1.0001,
		TileSize:  MaxTileSize,
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadEnv(os.Getenv)
}

// LoadEnv reads the configuration using getenv for lookups.
func LoadEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv(EnvConfig); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Threads == 0 {
		cfg.Threads = runtime.GOMAXPROCS(0)
	}
	return cfg, nil
}

// ThreadsFromEnv returns the thread count set by PARAPROF_NUM_THREADS or
// OMP_NUM_THREADS, or 0 if neither is set.
func ThreadsFromEnv(getenv func(string) string) (int, error) {
	// OMP_NUM_THREADS is honoured so job scripts written for the C
	// programs keep working; the paraprof-specific name wins.
	threads := 0
	for _, name := range []string{EnvOMPThreads, EnvThreads} {
		if v := getenv(name); v != "" {
			n, err := parseCount(name, v)
			if err != nil {
				return 0, err
			}
			threads = n
		}
	}
	return threads, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	threads, err := ThreadsFromEnv(getenv)
	if err != nil {
		return err
	}
	if threads > 0 {
		cfg.Threads = threads
	}
	if v := getenv(EnvDevices); v != "" {
		n, err := parseCount(EnvDevices, v)
		if err != nil {
			return err
		}
		cfg.Devices = n
	}
	if v := getenv(EnvDeviceMem); v != "" {
		n, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDeviceMem, err)
		}
		cfg.DeviceMemory = n
	}
	if v := getenv(EnvHostMem); v != "" {
		n, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHostMem, err)
		}
		cfg.HostMemory = n
	}
	if v := getenv(EnvChunkSize); v != "" {
		n, err := parseCount(EnvChunkSize, v)
		if err != nil {
			return err
		}
		cfg.ChunkSize = n
	}
	if v := getenv(EnvPow10Init); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPow10Init, err)
		}
		cfg.Pow10Init = f
	}
	if v := getenv(EnvTileSize); v != "" {
		n, err := parseCount(EnvTileSize, v)
		if err != nil {
			return err
		}
		cfg.TileSize = n
	}
	if v := getenv(EnvVerbose); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		cfg.Verbose = b
	}
	return nil
}

// Validate checks the ranges of all knobs.
func (c Config) Validate() error {
	switch {
	case c.Threads < 0:
		return fmt.Errorf("threads must be >= 0, got %d", c.Threads)
	case c.Devices < 1:
		return fmt.Errorf("devices must be >= 1, got %d", c.Devices)
	case c.ChunkSize < 1:
		return fmt.Errorf("chunk size must be >= 1, got %d", c.ChunkSize)
	case c.TileSize < 1 || c.TileSize > MaxTileSize:
		return fmt.Errorf("tile size must be in [1, %d], got %d", MaxTileSize, c.TileSize)
	}
	return nil
}

func parseCount(name, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be positive, got %d", name, n)
	}
	return n, nil
}

// ParseBytes parses a byte count with an optional K, M, G or T suffix
// (powers of 1024), e.g. "512M".
func ParseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimSuffix(s, "B")
	if s == "" {
		return 0, fmt.Errorf("empty byte count")
	}
	shift := 0
	switch s[len(s)-1] {
	case 'K':
		shift = 10
	case 'M':
		shift = 20
	case 'G':
		shift = 30
	case 'T':
		shift = 40
	}
	if shift > 0 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte count %q: %w", s, err)
	}
	if shift > 0 && n > (^uint64(0))>>shift {
		return 0, fmt.Errorf("byte count %q overflows", s)
	}
	return n << shift, nil
}
