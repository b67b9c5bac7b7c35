package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check response
type HealthCheck struct {
	Status        HealthStatus     `json:"status"`
	Version       string           `json:"version"`
	Uptime        int64            `json:"uptime"`
	UptimeHuman   string           `json:"uptime_human"`
	ActiveJobs    int              `json:"active_jobs"`
	MemoryUsageMB uint64           `json:"memory_usage_mb"`
	Checks        map[string]Check `json:"checks"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Check represents an individual health check
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker performs health checks
type HealthChecker struct {
	version   string
	startTime time.Time
	db        *sql.DB
	outputDir string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string, db *sql.DB, outputDir string) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		db:        db,
		outputDir: outputDir,
	}
}

// Check performs all health checks and returns the result
func (h *HealthChecker) Check(activeJobs int) *HealthCheck {
	checks := make(map[string]Check)
	overallStatus := HealthStatusHealthy

	dbCheck := h.checkDatabase()
	checks["database"] = dbCheck
	if dbCheck.Status != "healthy" {
		overallStatus = HealthStatusUnhealthy
	}

	outCheck := h.checkOutputDir()
	checks["output_dir"] = outCheck
	if outCheck.Status != "healthy" {
		overallStatus = HealthStatusUnhealthy
	}

	memCheck := h.checkMemory()
	checks["memory"] = memCheck
	if memCheck.Status == "unhealthy" {
		overallStatus = HealthStatusUnhealthy
	} else if memCheck.Status == "degraded" && overallStatus == HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	uptime := time.Since(h.startTime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &HealthCheck{
		Status:        overallStatus,
		Version:       h.version,
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatDuration(uptime),
		ActiveJobs:    activeJobs,
		MemoryUsageMB: m.Alloc / 1024 / 1024,
		Checks:        checks,
		Timestamp:     time.Now(),
	}
}

// checkDatabase checks catalog database connectivity
func (h *HealthChecker) checkDatabase() Check {
	if h.db == nil {
		return Check{
			Status:  "unhealthy",
			Message: "Database connection not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "Database ping failed: " + err.Error(),
		}
	}

	return Check{
		Status:  "healthy",
		Message: "Database connection is healthy",
	}
}

// checkOutputDir checks that the download output directory is writable
func (h *HealthChecker) checkOutputDir() Check {
	if h.outputDir == "" {
		return Check{
			Status:  "unhealthy",
			Message: "Output directory not configured",
		}
	}

	if err := os.MkdirAll(h.outputDir, 0755); err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "Output directory not creatable: " + err.Error(),
		}
	}

	probe := filepath.Join(h.outputDir, ".health")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "Output directory not writable: " + err.Error(),
		}
	}
	os.Remove(probe)

	return Check{
		Status:  "healthy",
		Message: "Output directory is writable",
	}
}

// checkMemory checks memory usage
func (h *HealthChecker) checkMemory() Check {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	memoryMB := m.Alloc / 1024 / 1024

	const (
		warningThresholdMB  = 500
		criticalThresholdMB = 1000
	)

	if memoryMB > criticalThresholdMB {
		return Check{
			Status:  "unhealthy",
			Message: "Memory usage is critically high",
		}
	}

	if memoryMB > warningThresholdMB {
		return Check{
			Status:  "degraded",
			Message: "Memory usage is elevated",
		}
	}

	return Check{
		Status:  "healthy",
		Message: "Memory usage is normal",
	}
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
