package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/auth"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/logger"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/dto"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/handler"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/middleware"
)

// Handlers are the endpoints served by the engine. Nil handlers are not routed.
type Handlers struct {
	System  *handler.SystemHandler
	Webhook *handler.PaymentWebhookHandler
	Email   *handler.EmailHandler
	Export  *handler.ExportHandler
}

// Options configure NewEngine
type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	Verifier *auth.Verifier
	Meter    metric.Meter
}

// NewEngine builds the gin engine with the middleware chain and every route
func NewEngine(opts Options, h Handlers) (*gin.Engine, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			return nil, err
		}
	} else if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	metrics, err := middleware.HTTPMetrics(opts.Meter)
	if err != nil {
		return nil, err
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(middleware.ProfilingLabels(cfg.Telemetry.ProfilingEnabled))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(metrics)
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.Maintenance(middleware.MaintenanceFromConfig(cfg)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var base handler.BaseHandler
	engine.NoRoute(func(c *gin.Context) {
		base.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, "Route not found")
	})
	// any method a path does not serve (HEAD, TRACE, ...) gets the 405 envelope
	engine.HandleMethodNotAllowed = true
	engine.NoMethod(base.MethodNotAllowed)

	authRequired := middleware.JWTAuth(middleware.JWTMiddlewareConfig{
		Verifier: opts.Verifier,
		Logger:   log,
	})

	// documentation is read from the swag registry, populated by importing the docs package
	engine.GET("/swagger/*any", middleware.SwaggerProtection(cfg.Swagger, authRequired), ginSwagger.WrapHandler(swaggerFiles.Handler))

	r := NewRouter(engine)

	if h.System != nil {
		engine.GET("/health", h.System.Health)
		r.Register(NewDomainGroup("system", "/system").GET("/ping", h.System.Ping))
	}

	functions := NewDomainGroup("functions", "")
	if h.Webhook != nil {
		functions.POSTOnly("/payment-webhook", base.MethodNotAllowed, h.Webhook.Handle)
	}
	if h.Email != nil {
		functions.POSTOnly("/send-email", base.MethodNotAllowed, authRequired, h.Email.Send)
	}
	r.RegisterFunctions(functions)

	if h.Export != nil {
		r.Register(NewDomainGroup("exports", "/exports").Use(authRequired).GET("/debts", h.Export.ExportDebts))
	}

	r.Setup()
	return engine, nil
}
