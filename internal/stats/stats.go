// Package stats collects host/process metrics for periodic
// protocol.Stats messages, generalizing the teacher's gopsutil-based
// MetricsCollector (collectors/metrics.go) from an RMM inventory report
// to the streaming session's running counters.
package stats

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/meridian-rdp/core/internal/protocol"
)

// RateCounter tracks a monotonically increasing counter and reports the
// per-second rate between successive Sample calls — used for
// FPSActual/BitrateActual.
type RateCounter struct {
	mu       sync.Mutex
	last     uint64
	lastTime time.Time
}

// Sample records a new cumulative value and returns the rate (units/sec)
// since the previous sample; the first call always returns 0.
func (r *RateCounter) Sample(cumulative uint64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	defer func() { r.last, r.lastTime = cumulative, now }()

	if r.lastTime.IsZero() || cumulative < r.last {
		return 0
	}
	elapsed := now.Sub(r.lastTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(cumulative-r.last) / elapsed
}

// NetworkSample is the latest RTT/loss observation from RTCP or an
// application-level ping, fed in by the transport layer.
type NetworkSample struct {
	RTTMillis  float64
	PacketLoss float64
}

// Collector assembles protocol.Stats snapshots for the current process
// plus whatever running counters the caller feeds it.
type Collector struct {
	pid int32
	mu  sync.Mutex
	net NetworkSample
}

func NewCollector() *Collector {
	return &Collector{pid: int32(os.Getpid())}
}

// UpdateNetwork records the latest RTT/loss sample; safe to call from the
// RTCP drain goroutine concurrently with Snapshot.
func (c *Collector) UpdateNetwork(s NetworkSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.net = s
}

// Snapshot returns a protocol.Stats populated with host CPU, process RSS,
// goroutine count, the supplied throughput figures, and the last network
// sample. Errors from individual gopsutil calls are swallowed; a failed
// sub-metric is left at zero rather than aborting the whole snapshot.
func (c *Collector) Snapshot(fpsActual float64, bitrateActual, bytesSent, bytesRecv uint64) protocol.Stats {
	c.mu.Lock()
	net := c.net
	c.mu.Unlock()

	s := protocol.Stats{
		Goroutines:     uint32(runtime.NumGoroutine()),
		FPSActual:      fpsActual,
		BitrateActual:  bitrateActual,
		RTTMillis:      net.RTTMillis,
		PacketLoss:     net.PacketLoss,
		BytesSentTotal: bytesSent,
		BytesRecvTotal: bytesRecv,
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}

	if proc, err := process.NewProcess(c.pid); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
			s.RSSBytes = mi.RSS
		}
	}

	return s
}
