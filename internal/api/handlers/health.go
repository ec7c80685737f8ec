package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// HealthChecker is implemented by the database and Redis connections.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports the state of the backing stores.
type HealthHandler struct {
	db      HealthChecker
	redis   HealthChecker
	version string
	started time.Time
	live    func() map[string]int
}

// HealthResponse represents the health status response.
type HealthResponse struct {
	// Status is "healthy", "degraded" or "unhealthy".
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	// Live counts the open forms and verification sessions, plus the
	// availability cache counters summed over live forms.
	Live map[string]int `json:"live,omitempty"`
}

// NewHealthHandler builds a handler. redis may be nil when Redis is
// disabled; live may be nil.
func NewHealthHandler(db, redis HealthChecker, version string, live func() map[string]int) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		version: version,
		started: time.Now(),
		live:    live,
	}
}

// HealthCheck answers 200 unless the database is unreachable. An
// unreachable Redis only degrades the service since every Redis consumer
// fails open.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	span := sentry.StartSpan(ctx, "health_check")
	defer span.Finish()
	ctx = span.Context()

	services := make(map[string]string, 2)
	status := "healthy"

	switch {
	case h.db == nil:
		services["database"] = "not configured"
		status = "unhealthy"
	default:
		if err := h.db.HealthCheck(ctx); err != nil {
			services["database"] = "unhealthy: " + err.Error()
			span.SetTag("database.status", "unhealthy")
			sentry.CaptureException(err)
			status = "unhealthy"
		} else {
			services["database"] = "healthy"
			span.SetTag("database.status", "healthy")
		}
	}

	if h.redis == nil {
		services["redis"] = "disabled"
	} else if err := h.redis.HealthCheck(ctx); err != nil {
		services["redis"] = "unhealthy: " + err.Error()
		span.SetTag("redis.status", "unhealthy")
		sentry.CaptureException(err)
		if status == "healthy" {
			status = "degraded"
		}
	} else {
		services["redis"] = "healthy"
		span.SetTag("redis.status", "healthy")
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}
	if h.live != nil {
		resp.Live = h.live()
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
