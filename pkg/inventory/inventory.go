//go:build linux

// Package inventory describes the host the profiler runs on: CPU model,
// memory, disks, GPUs and cgroup setup.
package inventory

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ja7ad/ecotrace/pkg/system/cgroup"
	"github.com/ja7ad/ecotrace/pkg/system/command"
	"github.com/ja7ad/ecotrace/pkg/types"
)

const (
	defaultNvidiaSMI = "nvidia-smi"
	probeTimeout     = 5 * time.Second
)

type Info struct {
	Hostname      string      `json:"hostname"`
	OS            string      `json:"os"`
	Platform      string      `json:"platform"`
	KernelVersion string      `json:"kernel_version"`
	Uptime        uint64      `json:"uptime_sec"`
	CPU           CPU         `json:"cpu"`
	Memory        Memory      `json:"memory"`
	Disks         []Disk      `json:"disks"`
	GPUs          []GPU       `json:"gpus"`
	Cgroup        cgroup.Info `json:"cgroup"`
	CgroupDetail  string      `json:"cgroup_detail"`
}

type CPU struct {
	Model         string  `json:"model"`
	PhysicalCores int     `json:"physical_cores"`
	LogicalCores  int     `json:"logical_cores"`
	MHz           float64 `json:"mhz"`
}

type Memory struct {
	Total     types.Bytes `json:"total_bytes"`
	Available types.Bytes `json:"available_bytes"`
	TotalGB   float64     `json:"total_gb"`
}

type Disk struct {
	Device     string      `json:"device"`
	Mountpoint string      `json:"mountpoint"`
	FSType     string      `json:"fstype"`
	Total      types.Bytes `json:"total_bytes"`
	Used       types.Bytes `json:"used_bytes"`
}

type GPU struct {
	Name          string      `json:"name"`
	Memory        types.Bytes `json:"memory_bytes"`
	DriverVersion string      `json:"driver_version,omitempty"`
}

// Collector gathers Info. The zero value is not usable; use New.
type Collector struct {
	nvidiaSMI string
	log       *zap.Logger
}

func New(log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{nvidiaSMI: defaultNvidiaSMI, log: log}
}

// Collect returns as much as it could gather. The error aggregates the
// probes that failed; GPU absence is not an error.
func (c *Collector) Collect(ctx context.Context) (Info, error) {
	var (
		info = Info{Disks: []Disk{}, GPUs: []GPU{}}
		errs error
	)

	if h, err := host.InfoWithContext(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("host: %w", err))
	} else {
		info.Hostname = h.Hostname
		info.OS = h.OS
		info.Platform = strings.TrimSpace(h.Platform + " " + h.PlatformVersion)
		info.KernelVersion = h.KernelVersion
		info.Uptime = h.Uptime
	}

	info.CPU.LogicalCores = runtime.NumCPU()
	if cs, err := cpu.InfoWithContext(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cpu: %w", err))
	} else if len(cs) > 0 {
		info.CPU.Model = strings.TrimSpace(cs[0].ModelName)
		info.CPU.MHz = cs[0].Mhz
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.CPU.PhysicalCores = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("memory: %w", err))
	} else {
		info.Memory = Memory{
			Total:     types.Bytes(vm.Total),
			Available: types.Bytes(vm.Available),
			TotalGB:   round2(types.Bytes(vm.Total).GB()),
		}
	}

	if parts, err := disk.PartitionsWithContext(ctx, false); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("disks: %w", err))
	} else {
		for _, p := range parts {
			d := Disk{Device: p.Device, Mountpoint: p.Mountpoint, FSType: p.Fstype}
			if u, err := disk.UsageWithContext(ctx, p.Mountpoint); err == nil {
				d.Total = types.Bytes(u.Total)
				d.Used = types.Bytes(u.Used)
			}
			info.Disks = append(info.Disks, d)
		}
	}

	info.GPUs = c.gpus(ctx)

	if cg, err := cgroup.Detect(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cgroup: %w", err))
	} else {
		info.Cgroup = cg
		info.CgroupDetail = cg.Detail()
	}

	if errs != nil {
		c.log.Debug("inventory incomplete", zap.Error(errs))
	}
	return info, errs
}

func (c *Collector) gpus(ctx context.Context) []GPU {
	res, err := command.Run(ctx, command.Spec{
		Path:    c.nvidiaSMI,
		Args:    []string{"--query-gpu=name,memory.total,driver_version", "--format=csv,noheader,nounits"},
		Timeout: probeTimeout,
	})
	if err != nil || !res.Completed() || res.ExitCode != 0 {
		return []GPU{}
	}
	return parseNvidiaSMI(string(res.Stdout))
}

// parseNvidiaSMI decodes "name, memory MiB, driver" CSV rows.
func parseNvidiaSMI(out string) []GPU {
	gpus := []GPU{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cols := strings.Split(line, ",")
		g := GPU{Name: strings.TrimSpace(cols[0])}
		if g.Name == "" {
			continue
		}
		if len(cols) > 1 {
			if mib, err := strconv.ParseUint(strings.TrimSpace(cols[1]), 10, 64); err == nil {
				g.Memory = types.Bytes(mib << 20)
			}
		}
		if len(cols) > 2 {
			g.DriverVersion = strings.TrimSpace(cols[2])
		}
		gpus = append(gpus, g)
	}
	return gpus
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
