package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// unknown fills string fields that could not be sampled.
const unknown = "Unknown"

// SystemSnapshot is one sample of the host's resources.
type SystemSnapshot struct {
	AgentID   uuid.UUID `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`

	// CPU
	CPUModel        string  `json:"cpu_model"`
	CPUCores        uint32  `json:"cpu_cores"`
	CPUThreads      uint32  `json:"cpu_threads"`
	CPUUsagePercent float32 `json:"cpu_usage_percent"`

	// Memory
	MemoryTotalBytes   uint64  `json:"memory_total_bytes"`
	MemoryUsedBytes    uint64  `json:"memory_used_bytes"`
	MemoryUsagePercent float32 `json:"memory_usage_percent"`

	// Disk
	DiskTotalBytes   uint64  `json:"disk_total_bytes"`
	DiskUsedBytes    uint64  `json:"disk_used_bytes"`
	DiskUsagePercent float32 `json:"disk_usage_percent"`

	// Network
	NetworkRxBytes uint64 `json:"network_rx_bytes"`
	NetworkTxBytes uint64 `json:"network_tx_bytes"`

	// System
	OSName        string `json:"os_name"`
	OSVersion     string `json:"os_version"`
	KernelVersion string `json:"kernel_version"`
	Hostname      string `json:"hostname"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
}

// SystemProvider samples the local host with gopsutil.
//
// Probes that fail leave their fields at zero or "Unknown"; a snapshot is
// always produced.
type SystemProvider struct {
	agentID uuid.UUID
	now     func() time.Time
}

// NewSystemProvider creates a sampler that stamps snapshots with agentID.
func NewSystemProvider(agentID uuid.UUID) *SystemProvider {
	return &SystemProvider{
		agentID: agentID,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Collect takes one sample.
func (p *SystemProvider) Collect(ctx context.Context) *SystemSnapshot {
	s := &SystemSnapshot{
		AgentID:       p.agentID,
		Timestamp:     p.now(),
		CPUModel:      unknown,
		OSName:        unknown,
		OSVersion:     unknown,
		KernelVersion: unknown,
		Hostname:      "unknown",
	}

	p.collectCPU(ctx, s)
	p.collectMemory(ctx, s)
	p.collectDisk(ctx, s)
	p.collectNetwork(ctx, s)
	p.collectHost(ctx, s)

	return s
}

// Snapshot implements Provider.
func (p *SystemProvider) Snapshot(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p.Collect(ctx))
	if err != nil {
		return nil, fmt.Errorf("encode system snapshot: %w", err)
	}
	return data, nil
}

func (p *SystemProvider) collectCPU(ctx context.Context, s *SystemSnapshot) {
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		s.CPUModel = infos[0].ModelName
	}
	if cores, err := cpu.CountsWithContext(ctx, false); err == nil {
		s.CPUCores = uint32(cores)
	}
	if threads, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.CPUThreads = uint32(threads)
	}
	// Zero interval compares against the previous call.
	if usage, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(usage) > 0 {
		s.CPUUsagePercent = float32(usage[0])
	}
}

func (p *SystemProvider) collectMemory(ctx context.Context, s *SystemSnapshot) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return
	}
	s.MemoryTotalBytes = vm.Total
	s.MemoryUsedBytes = vm.Used
	s.MemoryUsagePercent = percent(vm.Used, vm.Total)
}

func (p *SystemProvider) collectDisk(ctx context.Context, s *SystemSnapshot) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return
	}
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		if seen[part.Device] {
			continue
		}
		seen[part.Device] = true

		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			continue
		}
		s.DiskTotalBytes += usage.Total
		s.DiskUsedBytes += usage.Total - usage.Free
	}
	s.DiskUsagePercent = percent(s.DiskUsedBytes, s.DiskTotalBytes)
}

func (p *SystemProvider) collectNetwork(ctx context.Context, s *SystemSnapshot) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil || len(counters) == 0 {
		return
	}
	s.NetworkRxBytes = counters[0].BytesRecv
	s.NetworkTxBytes = counters[0].BytesSent
}

func (p *SystemProvider) collectHost(ctx context.Context, s *SystemSnapshot) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return
	}
	if info.Hostname != "" {
		s.Hostname = info.Hostname
	}
	if info.Platform != "" {
		s.OSName = info.Platform
	}
	if info.PlatformVersion != "" {
		s.OSVersion = info.PlatformVersion
	}
	if info.KernelVersion != "" {
		s.KernelVersion = info.KernelVersion
	}
	s.UptimeSeconds = info.Uptime
}

func percent(used, total uint64) float32 {
	if total == 0 {
		return 0
	}
	return float32(used) / float32(total) * 100
}
