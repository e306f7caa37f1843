package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/dto"
)

func TestMaintenanceFromConfig(t *testing.T) {
	cfg := &config.Config{}
	mc := MaintenanceFromConfig(cfg)
	assert.True(t, mc.Active)
	assert.Equal(t, ReasonNotConfigured, mc.Reason)

	cfg.Backend.URL = "https://project.backend.co"
	cfg.Backend.AnonKey = "anon"
	assert.False(t, MaintenanceFromConfig(cfg).Active)

	cfg.App.Maintenance = true
	mc = MaintenanceFromConfig(cfg)
	assert.True(t, mc.Active)
	assert.Equal(t, ReasonScheduled, mc.Reason)
}

func TestMaintenance(t *testing.T) {
	newRouter := func(mc MaintenanceConfig) *gin.Engine {
		router := gin.New()
		router.Use(Maintenance(mc))
		router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
		router.POST("/functions/v1/send-email", func(c *gin.Context) { c.String(http.StatusOK, "sent") })
		return router
	}

	t.Run("blocks requests while active", func(t *testing.T) {
		router := newRouter(MaintenanceFromConfig(&config.Config{}))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/functions/v1/send-email", nil))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "300", w.Header().Get("Retry-After"))

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeMaintenance, resp.Error.Code)
		assert.Equal(t, map[string]any{"reason": ReasonNotConfigured}, resp.Data)
	})

	t.Run("health stays reachable", func(t *testing.T) {
		router := newRouter(MaintenanceFromConfig(&config.Config{}))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("inactive passes through", func(t *testing.T) {
		router := newRouter(MaintenanceConfig{})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/functions/v1/send-email", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
