package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/brickify/internal/live"
	"github.com/jmylchreest/brickify/internal/version"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// LiveStats reports live processor counters.
type LiveStats interface {
	Stats() live.Stats
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	startTime time.Time
	live      LiveStats
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startTime: time.Now()}
}

// WithLive reports live capture availability in health responses.
func (h *HealthHandler) WithLive(stats LiveStats) *HealthHandler {
	h.live = stats
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status        string       `json:"status"`
	Timestamp     string       `json:"timestamp"`
	Version       version.Info `json:"version"`
	Uptime        string       `json:"uptime"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Goroutines    int          `json:"goroutines"`
	CPU           CPUInfo      `json:"cpu"`
	Memory        MemoryInfo   `json:"memory"`
	Checks        HealthChecks `json:"checks"`
}

// CPUInfo is host load. Load values are zero where the platform has none.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo is host and process memory in MiB.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
	GoHeapMB          float64 `json:"go_heap_mb"`
}

// HealthChecks holds per-component health.
type HealthChecks struct {
	// Capture is "ok", "unavailable" or "not_configured".
	Capture   string `json:"capture"`
	Recording bool   `json:"recording"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns liveness, build information and live capture availability",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service. An unavailable capture
// source does not make the service unhealthy; transcodes still work.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	checks := HealthChecks{Capture: "not_configured"}
	if h.live != nil {
		stats := h.live.Stats()
		checks.Capture = "unavailable"
		if stats.Available {
			checks.Capture = "ok"
		}
		checks.Recording = stats.Recording
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       version.GetInfo(),
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			Goroutines:    runtime.NumGoroutine(),
			CPU:           getCPUInfo(),
			Memory:        getMemoryInfo(),
			Checks:        checks,
		},
	}, nil
}

func getCPUInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}
	avg, err := load.Avg()
	if err != nil || avg == nil {
		return info
	}
	info.Load1Min = avg.Load1
	info.Load5Min = avg.Load5
	info.Load15Min = avg.Load15
	info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
	return info
}

func getMemoryInfo() MemoryInfo {
	const mib = 1024 * 1024
	var info MemoryInfo

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalMemoryMB = float64(vm.Total) / mib
		info.UsedMemoryMB = float64(vm.Used) / mib
		info.AvailableMemoryMB = float64(vm.Available) / mib
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if rss, err := proc.MemoryInfo(); err == nil && rss != nil {
			info.ProcessMemoryMB = float64(rss.RSS) / mib
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	info.GoHeapMB = float64(ms.HeapAlloc) / mib
	return info
}
