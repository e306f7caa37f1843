package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/dto"
)

// Pinger checks a dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemInfo describes the running service
type SystemInfo struct {
	Name        string
	Version     string
	Env         string
	Configured  bool
	Maintenance bool
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	info      SystemInfo
	db        Pinger
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler. db may be nil when no database is configured.
func NewSystemHandler(info SystemInfo, db Pinger) *SystemHandler {
	return &SystemHandler{
		info:      info,
		db:        db,
		startTime: time.Now(),
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status      string `json:"status"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Env         string `json:"env"`
	Database    string `json:"database"`
	Configured  bool   `json:"configured"`
	Maintenance bool   `json:"maintenance"`
	GoVersion   string `json:"go_version"`
	Uptime      string `json:"uptime"`
}

// Health godoc
// @Summary      Health check
// @Description  Reports liveness and dependency status. A failing database answers 503.
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=HealthResponse}
// @Failure      503 {object} dto.Response{data=HealthResponse}
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:      "healthy",
		Name:        h.info.Name,
		Version:     h.info.Version,
		Env:         h.info.Env,
		Database:    "not_configured",
		Configured:  h.info.Configured,
		Maintenance: h.info.Maintenance,
		GoVersion:   runtime.Version(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	if status == http.StatusOK && (!h.info.Configured || h.info.Maintenance) {
		resp.Status = "degraded"
	}

	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping godoc
// @Summary      Ping
// @Description  Dependency free liveness check
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=PingResponse}
// @Router       /api/v1/system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
