package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/use-agent/bizscout/models"
)

const version = "0.1.0"

// StatsSource reports pool utilisation; *engine.Service implements it.
type StatsSource interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of the limiter is in use or host memory
// is above 90%.
func Health(src StatsSource, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := src.Stats()

		status := "healthy"
		if stats.MaxConcurrent > 0 && stats.InFlight > int(float64(stats.MaxConcurrent)*0.8) {
			status = "degraded"
		}

		var host *models.HostStats
		if vm, err := mem.VirtualMemoryWithContext(c.Request.Context()); err == nil {
			host = &models.HostStats{
				MemoryUsedPercent: vm.UsedPercent,
				MemoryAvailableMB: vm.Available / 1024 / 1024,
			}
			if vm.UsedPercent > 90 {
				status = "degraded"
			}
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Host:      host,
			Version:   version,
		})
	}
}
