package cli

import (
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/paraprof/paraprof"
	"github.com/paraprof/paraprof/internal/config"
	"github.com/paraprof/paraprof/internal/program"
	"github.com/paraprof/paraprof/scaling"
)

// DeviceInfo describes one virtual device.
type DeviceInfo struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Memory  uint64 `json:"memory_bytes"`
	Cores   int    `json:"cores"`
	Threads int    `json:"max_threads"`
}

// Info is the output of the info command.
type Info struct {
	Version    string       `json:"version"`
	GOOS       string       `json:"goos"`
	GOARCH     string       `json:"goarch"`
	CPUs       int          `json:"cpus"`
	CPU        string       `json:"cpu"`
	SIMD       string       `json:"simd"`
	Threads    int          `json:"threads"`
	HostMemory uint64       `json:"host_memory_bytes"`
	Devices    []DeviceInfo `json:"devices"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the CPU, the thread count and the devices programs will use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return program.UsageError("invalid configuration: %v", err)
			}
			if err := paraprof.Configure(cfg); err != nil {
				return program.UsageError("invalid configuration: %v", err)
			}
			info, err := collectInfo(cfg)
			if err != nil {
				return runtimeError("device query", err)
			}

			out := cmd.OutOrStdout()
			if root.Format == scaling.FormatJSON {
				return writeJSON(out, info)
			}
			p := message.NewPrinter(language.English)
			fields := [][2]string{
				{"version", info.Version},
				{"platform", info.GOOS + "/" + info.GOARCH},
				{"cpus", strconv.Itoa(info.CPUs)},
				{"cpu", info.CPU},
				{"simd", info.SIMD},
				{"threads", strconv.Itoa(info.Threads)},
				{"host memory", p.Sprintf("%d bytes", info.HostMemory)},
			}
			for _, d := range info.Devices {
				fields = append(fields, [2]string{
					"device " + strconv.Itoa(d.ID),
					p.Sprintf("%s, %d cores, %d bytes", d.Name, d.Cores, d.Memory),
				})
			}
			writeFields(out, fields)
			return nil
		},
	}
}

func collectInfo(cfg config.Config) (Info, error) {
	info := Info{
		Version:    versionString(),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		CPUs:       runtime.NumCPU(),
		CPU:        paraprof.GetCPUInfo(),
		SIMD:       paraprof.SIMDLevel(),
		Threads:    cfg.Threads,
		HostMemory: paraprof.HostMemoryLimit(),
	}
	for id := 0; id < paraprof.GetDeviceCount(); id++ {
		d, err := paraprof.GetDeviceProperties(id)
		if err != nil {
			return info, err
		}
		info.Devices = append(info.Devices, DeviceInfo{
			ID:      d.ID,
			Name:    d.Name,
			Memory:  d.TotalMem,
			Cores:   d.NumCores,
			Threads: d.MaxThreads,
		})
	}
	return info, nil
}
