package models

// ErrorResponse wraps an ErrorDetail for middleware rejections.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string     `json:"status"` // "healthy" or "degraded"
	Uptime    string     `json:"uptime"`
	PoolStats PoolStats  `json:"pool_stats"`
	Host      *HostStats `json:"host,omitempty"`
	Version   string     `json:"version"`
}

// PoolStats reports the state of the browser resource pool.
type PoolStats struct {
	Sessions       int `json:"sessions"`
	Contexts       int `json:"contexts"`
	ActiveContexts int `json:"active_contexts"`
	MaxConcurrent  int `json:"max_concurrent"`
	InFlight       int `json:"in_flight"`
	Recycled       int `json:"recycled"`
}

// HostStats reports host memory pressure.
type HostStats struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryAvailableMB uint64  `json:"memory_available_mb"`
}
