package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/dto"
)

// Maintenance reasons
const (
	ReasonNotConfigured = "not_configured"
	ReasonScheduled     = "maintenance"
)

// MaintenanceConfig holds configuration for the maintenance middleware
type MaintenanceConfig struct {
	Active      bool
	Reason      string
	RetryAfter  time.Duration
	ExemptPaths []string
}

// MaintenanceFromConfig puts the API in maintenance when the backend
// credentials are missing or app.maintenance is set.
func MaintenanceFromConfig(cfg *config.Config) MaintenanceConfig {
	mc := MaintenanceConfig{
		RetryAfter:  5 * time.Minute,
		ExemptPaths: []string{"/health", "/api/v1/system/ping"},
	}
	switch {
	case !cfg.IsConfigured():
		mc.Active = true
		mc.Reason = ReasonNotConfigured
	case cfg.App.Maintenance:
		mc.Active = true
		mc.Reason = ReasonScheduled
	}
	return mc
}

// Maintenance answers every non exempt request with a 503 envelope while active
func Maintenance(cfg MaintenanceConfig) gin.HandlerFunc {
	if !cfg.Active {
		return func(c *gin.Context) { c.Next() }
	}
	exempt := make(map[string]bool, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = true
	}
	message := "NexuPay is under maintenance, please try again later"
	if cfg.Reason == ReasonNotConfigured {
		message = "NexuPay is not configured yet, backend credentials are missing"
	}

	return func(c *gin.Context) {
		if exempt[c.Request.URL.Path] || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if cfg.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(cfg.RetryAfter.Seconds())))
		}
		resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeMaintenance, message, GetRequestID(c))
		resp.Data = gin.H{"reason": cfg.Reason}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, resp)
	}
}
