package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/sirupsen/logrus"
)

// ResourceSample is a point-in-time snapshot of host resources.
// Percentages are 0-100, sizes are GB, network counters are cumulative
// MB since boot.
type ResourceSample struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskFreeGB    float64 `json:"disk_free_gb"`
	NetworkSentMB float64 `json:"network_sent_mb"`
	NetworkRecvMB float64 `json:"network_recv_mb"`
}

// HealthLevel is a three-level classification of a resource sample.
type HealthLevel string

const (
	HealthNormal   HealthLevel = "normal"
	HealthWarning  HealthLevel = "warning"
	HealthCritical HealthLevel = "critical"
)

// Classify derives the health level from a sample alone: critical when
// CPU or memory exceeds 90%, warning when either exceeds 70%.
func Classify(s ResourceSample) HealthLevel {
	switch {
	case s.CPUPercent > 90 || s.MemoryPercent > 90:
		return HealthCritical
	case s.CPUPercent > 70 || s.MemoryPercent > 70:
		return HealthWarning
	default:
		return HealthNormal
	}
}

// Sampler gathers host resource snapshots via gopsutil. It holds no
// state between samples.
type Sampler struct {
	log      *logrus.Logger
	diskPath string
}

// NewSampler creates a sampler reading disk usage for the root
// filesystem.
func NewSampler(log *logrus.Logger) *Sampler {
	if log == nil {
		log = logrus.New()
	}
	return &Sampler{log: log, diskPath: "/"}
}

const gb = 1 << 30
const mb = 1 << 20

// Sample collects a snapshot. Individual probe failures are logged and
// leave the corresponding fields at zero; the snapshot as a whole never
// fails.
func (s *Sampler) Sample(ctx context.Context) ResourceSample {
	var sample ResourceSample

	// The short interval is needed for an accurate CPU reading.
	cpuPcts, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		s.log.WithError(err).Warn("cpu sample failed")
	} else if len(cpuPcts) > 0 {
		sample.CPUPercent = cpuPcts[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		s.log.WithError(err).Warn("memory sample failed")
	} else {
		sample.MemoryPercent = vm.UsedPercent
		sample.MemoryUsedGB = float64(vm.Used) / gb
		sample.MemoryTotalGB = float64(vm.Total) / gb
	}

	du, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		s.log.WithError(err).Warn("disk sample failed")
	} else if du.Total > 0 {
		sample.DiskPercent = float64(du.Used) / float64(du.Total) * 100
		sample.DiskFreeGB = float64(du.Free) / gb
	}

	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		s.log.WithError(err).Warn("network sample failed")
	} else if len(counters) > 0 {
		sample.NetworkSentMB = float64(counters[0].BytesSent) / mb
		sample.NetworkRecvMB = float64(counters[0].BytesRecv) / mb
	}

	return sample
}
