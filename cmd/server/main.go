package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	_ "github.com/brifyai/plataforma-incentivos-mvp-sub010/docs"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/collection"
	emailapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/email"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/export"
	paymentapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/auth"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/cache"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/logger"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/mail"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/scheduler"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/storage"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/telemetry"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/handler"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/router"
)

//	@title			NexuPay API
//	@version		1.0
//	@description	Payment webhooks, transactional email and debt exports for the NexuPay collections platform.
//	@BasePath		/

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the access token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting NexuPay backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("backend_configured", cfg.IsConfigured()),
	)

	ctx := context.Background()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log = tel.Bridge(log, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))

	profiler, err := telemetry.NewProfiler(cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		_ = profiler.Stop()
	}()
	meter := tel.Meter("nexupay")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create metrics", zap.Error(err))
	}

	handlers := router.Handlers{}
	info := handler.SystemInfo{
		Name:        cfg.App.Name,
		Version:     telemetry.Version,
		Env:         cfg.App.Env,
		Configured:  cfg.IsConfigured(),
		Maintenance: cfg.App.Maintenance,
	}

	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{
		Logger:   log,
		LogLevel: cfg.Log.Level,
		Tracing:  cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
	})
	switch {
	case err != nil && cfg.IsConfigured():
		log.Fatal("Failed to connect to database", zap.Error(err))
	case err != nil:
		// Without backend credentials every route but /health answers 503 anyway
		log.Warn("Database unavailable, serving maintenance only", zap.Error(err))
		handlers.System = handler.NewSystemHandler(info, nil)
	default:
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()
		log.Info("Database connected successfully")
		if tel.Enabled() {
			if err := registerDBMetrics(meter, db, log); err != nil {
				log.Fatal("Failed to register database metrics", zap.Error(err))
			}
		}

		var closeServices func()
		handlers, closeServices, err = buildHandlers(ctx, cfg, db, metrics, log)
		if err != nil {
			log.Fatal("Failed to initialize services", zap.Error(err))
		}
		defer closeServices()
		handlers.System = handler.NewSystemHandler(info, db)

		if cfg.Scheduler.OverdueEnabled {
			overdue, err := startOverdueScheduler(ctx, cfg.Scheduler, db, log)
			if err != nil {
				log.Fatal("Failed to start overdue scheduler", zap.Error(err))
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = overdue.Stop(stopCtx)
			}()
		}
	}

	var verifier *auth.Verifier
	if cfg.Backend.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.Backend.JWTSecret, 30*time.Second)
	} else {
		log.Warn("backend.jwt_secret is empty, send-email and exports are not authenticated")
	}

	engine, err := router.NewEngine(router.Options{
		Config:   cfg,
		Logger:   log,
		Verifier: verifier,
		Meter:    meter,
	}, handlers)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}

// registerDBMetrics adds query and pool metrics plus the debt portfolio gauges
func registerDBMetrics(meter metric.Meter, db *persistence.Database, log *zap.Logger) error {
	dbMetrics, err := telemetry.NewDBMetrics(meter, 0)
	if err != nil {
		return err
	}
	if err := db.DB.Use(dbMetrics); err != nil {
		return err
	}
	_, err = telemetry.RegisterCollectionMetrics(meter, persistence.NewGormDebtRepository(db.DB), log)
	return err
}

// startOverdueScheduler marks debts past their due date once a day
func startOverdueScheduler(ctx context.Context, cfg config.SchedulerConfig, db *persistence.Database, log *zap.Logger) (*scheduler.DailyScheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	hour, minute, err := scheduler.ParseCronSchedule(cfg.OverdueSchedule)
	if err != nil {
		return nil, err
	}
	marker := collection.NewOverdueMarker(persistence.NewGormDebtRepository(db.DB), loc, log)
	sched, err := scheduler.New(scheduler.Config{
		Name:     "mark_overdue",
		Hour:     hour,
		Minute:   minute,
		Timeout:  cfg.JobTimeout,
		Location: loc,
	}, telemetry.ProfiledJob("mark_overdue", marker.Run), log)
	if err != nil {
		return nil, err
	}
	sched.Start(ctx)
	return sched, nil
}

// buildHandlers wires repositories, providers and services behind the function endpoints
func buildHandlers(ctx context.Context, cfg *config.Config, db *persistence.Database, metrics *telemetry.Metrics, log *zap.Logger) (router.Handlers, func(), error) {
	idem, err := cache.NewIdempotencyStore(ctx, cfg, log)
	if err != nil {
		return router.Handlers{}, nil, err
	}
	closeIdem := func() {
		if c, ok := idem.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warn("Error closing idempotency store", zap.Error(err))
			}
		}
	}
	fail := func(err error) (router.Handlers, func(), error) {
		closeIdem()
		return router.Handlers{}, nil, err
	}

	provider, err := payment.NewProvider(cfg.Payment, log)
	if err != nil {
		return fail(err)
	}
	webhooks := paymentapp.NewWebhookService(paymentapp.WebhookServiceConfig{
		Provider:       provider,
		Store:          persistence.NewPaymentStore(db.DB),
		Idempotency:    idem,
		IdempotencyTTL: cfg.Payment.IdempotencyTTL,
		Metrics:        metrics,
		Logger:         log,
	})

	sender, err := mail.NewSender(cfg.Email, log)
	if err != nil {
		return fail(err)
	}
	emails := emailapp.NewService(emailapp.ServiceConfig{
		Templates:   persistence.NewGormEmailTemplateRepository(db.DB),
		Logs:        persistence.NewGormEmailLogRepository(db.DB),
		Sender:      sender,
		DefaultFrom: cfg.Email.DefaultFrom,
		AppURL:      cfg.App.BaseURL,
		Metrics:     metrics,
		Logger:      log,
	})

	exportOpts := []export.Option{export.WithMetrics(metrics)}
	if cfg.Storage.Enabled {
		store, err := storage.NewS3Store(ctx, &cfg.Storage, log)
		if err != nil {
			return fail(err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Warn("Export bucket check failed", zap.Error(err))
		}
		exportOpts = append(exportOpts, export.WithStore(store, cfg.Storage.PresignExpiration))
	}
	exports := export.NewService(persistence.NewGormDebtRepository(db.DB), log, exportOpts...)

	return router.Handlers{
		Webhook: handler.NewPaymentWebhookHandler(webhooks),
		Email:   handler.NewEmailHandler(emails),
		Export:  handler.NewExportHandler(exports),
	}, closeIdem, nil
}
