package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/dto"
)

func newSwaggerRouter(cfg config.SwaggerConfig, authMiddleware gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.GET("/swagger/*any", SwaggerProtection(cfg, authMiddleware), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "swagger"})
	})
	return router
}

func getSwagger(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSwaggerProtection_Disabled(t *testing.T) {
	w := getSwagger(newSwaggerRouter(config.SwaggerConfig{Enabled: false}, nil), "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, errorCode(t, w))
}

func TestSwaggerProtection_Enabled_NoRestrictions(t *testing.T) {
	w := getSwagger(newSwaggerRouter(config.SwaggerConfig{Enabled: true}, nil), "")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSwaggerProtection_IPAllowList(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		remoteAddr string
		wantStatus int
	}{
		{"exact match", []string{"127.0.0.1"}, "127.0.0.1:12345", http.StatusOK},
		{"not listed", []string{"10.0.0.1"}, "192.168.1.100:12345", http.StatusForbidden},
		{"inside cidr", []string{"10.0.0.0/8"}, "10.20.30.40:12345", http.StatusOK},
		{"outside cidr", []string{"10.0.0.0/8"}, "172.16.0.1:12345", http.StatusForbidden},
		{"invalid entries are ignored", []string{"not-an-ip", "10.0.0.0/33"}, "10.0.0.1:12345", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newSwaggerRouter(config.SwaggerConfig{Enabled: true, AllowedIPs: tt.allowed}, nil)
			w := getSwagger(router, tt.remoteAddr)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusForbidden {
				assert.Equal(t, dto.ErrCodeForbidden, errorCode(t, w))
			}
		})
	}
}

func TestSwaggerProtection_RequireAuth(t *testing.T) {
	reject := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Authentication required"))
	}
	accept := func(c *gin.Context) {}

	w := getSwagger(newSwaggerRouter(config.SwaggerConfig{Enabled: true, RequireAuth: true}, reject), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = getSwagger(newSwaggerRouter(config.SwaggerConfig{Enabled: true, RequireAuth: true}, accept), "")
	assert.Equal(t, http.StatusOK, w.Code)

	// the allow list is checked before the token
	cfg := config.SwaggerConfig{Enabled: true, RequireAuth: true, AllowedIPs: []string{"10.0.0.1"}}
	w = getSwagger(newSwaggerRouter(cfg, reject), "192.168.1.1:1000")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIsIPAllowed(t *testing.T) {
	ips, nets := parseAllowList([]string{"192.168.1.1", "10.0.0.0/8", "::1"})

	assert.True(t, isIPAllowed(net.ParseIP("192.168.1.1"), ips, nets))
	assert.True(t, isIPAllowed(net.ParseIP("10.1.2.3"), ips, nets))
	assert.True(t, isIPAllowed(net.ParseIP("::1"), ips, nets))
	assert.False(t, isIPAllowed(net.ParseIP("192.168.1.2"), ips, nets))
	assert.False(t, isIPAllowed(nil, ips, nets))
}
