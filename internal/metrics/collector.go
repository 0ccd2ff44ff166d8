package metrics

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// ResourceSnapshot holds one sample of process and host usage
type ResourceSnapshot struct {
	CPUPercent        float64 // Host-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // Can exceed 100% on multi-core hosts
	ProcessRSSMB      float64
	MemoryPercent     float64
	Goroutines        int
	Sources           int
	Timestamp         time.Time
}

// Collector periodically samples resource usage, logs it and publishes it
// as gauges.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process
	sources  func() int

	mu   sync.RWMutex
	last *ResourceSnapshot
}

// NewCollector creates a collector. sources, when set, reports how many
// sources are currently registered.
func NewCollector(interval time.Duration, logger *zap.Logger, sources func() int) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
		sources:  sources,
	}
}

// Start samples until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Resource collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// Last returns the most recent sample, or nil before the first one.
func (c *Collector) Last() *ResourceSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) collect() {
	snap := c.sample()

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	processCPU.Set(snap.ProcessCPUPercent)
	processRSS.Set(snap.ProcessRSSMB)
	sourcesGauge.Set(float64(snap.Sources))

	c.logger.Info("Resource usage",
		zap.Float64("sys_cpu", snap.CPUPercent),
		zap.Float64("proc_cpu", snap.ProcessCPUPercent),
		zap.String("proc_rss", formatMB(snap.ProcessRSSMB)),
		zap.Float64("mem_pct", snap.MemoryPercent),
		zap.Int("goroutines", snap.Goroutines),
		zap.Int("sources", snap.Sources),
	)
}

func (c *Collector) sample() *ResourceSnapshot {
	snap := &ResourceSnapshot{
		Goroutines: runtime.NumGoroutine(),
		Timestamp:  time.Now(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}

	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			snap.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil && info != nil {
			snap.ProcessRSSMB = float64(info.RSS) / (1024 * 1024)
		}
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = vmem.UsedPercent
	}

	if c.sources != nil {
		snap.Sources = c.sources()
	}
	return snap
}

// formatMB formats megabytes with one decimal place
func formatMB(mb float64) string {
	return strconv.FormatFloat(mb, 'f', 1, 64) + " MB"
}
