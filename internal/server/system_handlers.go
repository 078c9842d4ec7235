package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/rebalancer/internal/di"
)

// SystemHandlers serves process and host status
type SystemHandlers struct {
	container *di.Container
	version   string
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(container *di.Container, version string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		container: container,
		version:   version,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// DatabaseStatus describes the portfolio database files
type DatabaseStatus struct {
	Path          string  `json:"path"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	FreelistCount int64   `json:"freelist_count"`
}

// HostStatus holds host resource usage
type HostStatus struct {
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	DiskFreeGB      float64 `json:"disk_free_gb"`
	DiskUsedPercent float64 `json:"disk_used_percent"`
}

// SystemStatusResponse is the payload of GET /api/system/status
type SystemStatusResponse struct {
	Status           string          `json:"status"`
	Version          string          `json:"version"`
	UptimeSeconds    int64           `json:"uptime_seconds"`
	Goroutines       int             `json:"goroutines"`
	Database         *DatabaseStatus `json:"database,omitempty"`
	Host             HostStatus      `json:"host"`
	ScheduledJobs    int             `json:"scheduled_jobs"`
	EventSubscribers int             `json:"event_subscribers"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := SystemStatusResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Host:          h.getHostStats(),
	}

	if db := h.container.PortfolioDB; db != nil {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get database stats")
			response.Status = "degraded"
		} else {
			response.Database = &DatabaseStatus{
				Path:          db.Path(),
				SizeMB:        float64(stats.SizeBytes) / 1024 / 1024,
				WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
				PageCount:     stats.PageCount,
				FreelistCount: stats.FreelistCount,
			}
		}
	}
	if h.container.Scheduler != nil {
		response.ScheduledJobs = h.container.Scheduler.JobCount()
	}
	if h.container.EventBus != nil {
		response.EventSubscribers = h.container.EventBus.SubscriberCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": response,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// getHostStats samples CPU over 100ms; memory and disk readings are instant
func (h *SystemHandlers) getHostStats() HostStatus {
	var stats HostStatus

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	if memStat, err := mem.VirtualMemory(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		stats.MemoryPercent = memStat.UsedPercent
	}

	if h.container.PortfolioDB != nil {
		if usage, err := disk.Usage(filepath.Dir(h.container.PortfolioDB.Path())); err != nil {
			h.log.Warn().Err(err).Msg("Failed to get disk usage")
		} else {
			stats.DiskFreeGB = float64(usage.Free) / 1e9
			stats.DiskUsedPercent = usage.UsedPercent
		}
	}

	return stats
}
