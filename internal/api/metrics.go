package api

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/nerrad567/slotlink-core/internal/listener"
	"github.com/nerrad567/slotlink-core/internal/slot"
)

// hostStatsTimeout bounds the gopsutil calls of one metrics request.
const hostStatsTimeout = 2 * time.Second

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Host          *HostMetrics    `json:"host,omitempty"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Slots         SlotMetrics     `json:"slots"`
	Database      DatabaseMetrics `json:"database"`
	AuditDropped  int64           `json:"audit_dropped"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// HostMetrics describes the machine the server runs on. Fields that cannot
// be read on the platform are left zero.
type HostMetrics struct {
	Hostname        string  `json:"hostname"`
	Platform        string  `json:"platform"`
	UptimeSeconds   uint64  `json:"uptime_seconds"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	MemoryUsedMB    float64 `json:"memory_used_mb"`
	MemoryTotalMB   float64 `json:"memory_total_mb"`
	DiskPath        string  `json:"disk_path"`
	DiskPercent     float64 `json:"disk_percent"`
	DiskFreeGB      float64 `json:"disk_free_gb"`
	ProcessRSSMB    float64 `json:"process_rss_mb"`
	ProcessCPUPct   float64 `json:"process_cpu_percent"`
	ProcessOpenFDs  int32   `json:"process_open_fds"`
	ProcessThreads  int32   `json:"process_threads"`
	ProcessCreateMS int64   `json:"process_create_time_ms"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedMessages  uint64 `json:"dropped_messages"`
}

// MQTTMetrics contains MQTT client and listener statistics.
type MQTTMetrics struct {
	Connected bool            `json:"connected"`
	Listener  *listener.Stats `json:"listener,omitempty"`
}

// SlotMetrics counts active slots by type.
type SlotMetrics struct {
	Total  int            `json:"total"`
	Max    int            `json:"max"`
	ByType map[string]int `json:"by_type"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		MQTT: MQTTMetrics{Connected: s.mqttConnected()},
		Slots: SlotMetrics{
			Total:  s.registry.Count(),
			Max:    s.registry.MaxSlots(),
			ByType: make(map[string]int, 4),
		},
		AuditDropped: s.audit.Dropped(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), hostStatsTimeout)
	defer cancel()
	metrics.Host = s.collectHostMetrics(ctx)

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
		metrics.WebSocket.DroppedMessages = s.hub.Dropped()
	}

	if s.listener != nil {
		stats := s.listener.Stats()
		metrics.MQTT.Listener = &stats
	}

	for _, t := range []slot.Type{slot.TypeValue, slot.TypeStatus, slot.TypeControl, slot.TypeCamera} {
		metrics.Slots.ByType[string(t)] = s.registry.CountByType(t)
	}

	// Database stats (if available)
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeData(w, http.StatusOK, metrics)
}

// collectHostMetrics reads host and process statistics. Individual call
// failures are logged at debug level and leave their fields zero.
func (s *Server) collectHostMetrics(ctx context.Context) *HostMetrics {
	hm := &HostMetrics{DiskPath: s.dataDir}

	if info, err := host.InfoWithContext(ctx); err == nil {
		hm.Hostname = info.Hostname
		hm.Platform = info.Platform
		hm.UptimeSeconds = info.Uptime
	} else {
		s.logger.Debug("host info unavailable", "error", err)
	}

	// Interval 0 compares against the previous call instead of sleeping.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		hm.CPUPercent = pct[0]
	} else if err != nil {
		s.logger.Debug("cpu usage unavailable", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		hm.MemoryPercent = vm.UsedPercent
		hm.MemoryUsedMB = float64(vm.Used) / 1024 / 1024
		hm.MemoryTotalMB = float64(vm.Total) / 1024 / 1024
	} else {
		s.logger.Debug("memory usage unavailable", "error", err)
	}

	if du, err := disk.UsageWithContext(ctx, s.dataDir); err == nil {
		hm.DiskPercent = du.UsedPercent
		hm.DiskFreeGB = float64(du.Free) / 1024 / 1024 / 1024
	} else {
		s.logger.Debug("disk usage unavailable", "path", s.dataDir, "error", err)
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		s.logger.Debug("process stats unavailable", "error", err)
		return hm
	}
	if mi, err := proc.MemoryInfoWithContext(ctx); err == nil {
		hm.ProcessRSSMB = float64(mi.RSS) / 1024 / 1024
	}
	if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
		hm.ProcessCPUPct = pct
	}
	if fds, err := proc.NumFDsWithContext(ctx); err == nil {
		hm.ProcessOpenFDs = fds
	}
	if n, err := proc.NumThreadsWithContext(ctx); err == nil {
		hm.ProcessThreads = n
	}
	if ct, err := proc.CreateTimeWithContext(ctx); err == nil {
		hm.ProcessCreateMS = ct
	}
	return hm
}
