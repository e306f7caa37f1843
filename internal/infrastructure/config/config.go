package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // scheduler.timezone must resolve on images without zoneinfo

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Backend   BackendConfig
	Email     EmailConfig
	Payment   PaymentConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Migration MigrationConfig
	Scheduler SchedulerConfig
	Swagger   SwaggerConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name        string
	Env         string
	Port        string
	BaseURL     string // public URL of the web app, exposed to email templates as app_url
	Maintenance bool   // force the maintenance screen regardless of backend configuration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string // full connection string; takes precedence over the discrete fields
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// BackendConfig describes the hosted backend (REST/RPC gateway in front of PostgreSQL)
type BackendConfig struct {
	URL         string
	AnonKey     string
	ServiceKey  string
	JWTSecret   string // secret the backend signs its access tokens with
	RPCFunction string // SQL execution function exposed through /rest/v1/rpc
	Timeout     time.Duration
}

// EmailConfig holds outgoing email settings
type EmailConfig struct {
	Provider     string // smtp, log
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool
	DefaultFrom  string
}

// PaymentConfig holds payment provider settings
type PaymentConfig struct {
	Provider        string // stripe, stub
	StripeSecretKey string
	IdempotencyTTL  time.Duration
	IdempotencyMode string // memory, redis
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds S3-compatible object storage settings used for exports
type StorageConfig struct {
	Enabled           bool
	Endpoint          string
	Region            string
	Bucket            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	UsePathStyle      bool
	PresignExpiration time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
	LogsEnabled       bool // export zap logs over OTLP as well

	// Continuous profiling (Pyroscope)
	ProfilingEnabled    bool
	ProfilerAddress     string
	ProfilerAuthUser    string
	ProfilerAuthPass    string
	SpanProfilesEnabled bool // link CPU profiles to trace spans
}

// SwaggerConfig controls the API documentation endpoint
type SwaggerConfig struct {
	Enabled     bool
	RequireAuth bool     // require a bearer token to read the docs
	AllowedIPs  []string // IP addresses or CIDR ranges; empty allows everyone
}

// SchedulerConfig holds the daily background jobs
type SchedulerConfig struct {
	OverdueEnabled  bool
	OverdueSchedule string // "minute hour * * *"
	Timezone        string // IANA name used for schedules and due dates
	JobTimeout      time.Duration
}

// MigrationConfig holds settings for the statement replayer
type MigrationConfig struct {
	StatementDelay time.Duration // pause between statements to stay under backend rate limits
	StopOnError    bool
	DashboardURL   string // SQL editor URL printed with manual instructions
	Strategies     []string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with NEXUPAY_ prefix (e.g., NEXUPAY_BACKEND_SERVICE_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load but reads the given config file when path is not empty
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Swagger is on unless a file or the environment turns it off
	v.SetDefault("swagger.enabled", true)

	v.SetEnvPrefix("NEXUPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:        v.GetString("app.name"),
			Env:         v.GetString("app.env"),
			Port:        v.GetString("app.port"),
			BaseURL:     v.GetString("app.base_url"),
			Maintenance: v.GetBool("app.maintenance"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Backend: BackendConfig{
			URL:         v.GetString("backend.url"),
			AnonKey:     v.GetString("backend.anon_key"),
			ServiceKey:  v.GetString("backend.service_key"),
			JWTSecret:   v.GetString("backend.jwt_secret"),
			RPCFunction: v.GetString("backend.rpc_function"),
			Timeout:     v.GetDuration("backend.timeout"),
		},
		Email: EmailConfig{
			Provider:     v.GetString("email.provider"),
			SMTPHost:     v.GetString("email.smtp_host"),
			SMTPPort:     v.GetInt("email.smtp_port"),
			SMTPUsername: v.GetString("email.smtp_username"),
			SMTPPassword: v.GetString("email.smtp_password"),
			SMTPTLS:      v.GetBool("email.smtp_tls"),
			DefaultFrom:  v.GetString("email.default_from"),
		},
		Payment: PaymentConfig{
			Provider:        v.GetString("payment.provider"),
			StripeSecretKey: v.GetString("payment.stripe_secret_key"),
			IdempotencyTTL:  v.GetDuration("payment.idempotency_ttl"),
			IdempotencyMode: v.GetString("payment.idempotency_mode"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Enabled:           v.GetBool("storage.enabled"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: splitList(v.GetStringSlice("http.cors_allow_origins")),
			CORSAllowMethods: splitList(v.GetStringSlice("http.cors_allow_methods")),
			CORSAllowHeaders: splitList(v.GetStringSlice("http.cors_allow_headers")),
			TrustedProxies:   splitList(v.GetStringSlice("http.trusted_proxies")),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),

			ProfilingEnabled:    v.GetBool("telemetry.profiling_enabled"),
			ProfilerAddress:     v.GetString("telemetry.profiler_address"),
			ProfilerAuthUser:    v.GetString("telemetry.profiler_auth_user"),
			ProfilerAuthPass:    v.GetString("telemetry.profiler_auth_password"),
			SpanProfilesEnabled: v.GetBool("telemetry.span_profiles_enabled"),
		},
		Migration: MigrationConfig{
			StatementDelay: v.GetDuration("migration.statement_delay"),
			StopOnError:    v.GetBool("migration.stop_on_error"),
			DashboardURL:   v.GetString("migration.dashboard_url"),
			Strategies:     splitList(v.GetStringSlice("migration.strategies")),
		},
		Scheduler: SchedulerConfig{
			OverdueEnabled:  v.GetBool("scheduler.overdue_enabled"),
			OverdueSchedule: v.GetString("scheduler.overdue_schedule"),
			Timezone:        v.GetString("scheduler.timezone"),
			JobTimeout:      v.GetDuration("scheduler.job_timeout"),
		},
		Swagger: SwaggerConfig{
			Enabled:     v.GetBool("swagger.enabled"),
			RequireAuth: v.GetBool("swagger.require_auth"),
			AllowedIPs:  splitList(v.GetStringSlice("swagger.allowed_ips")),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "nexupay"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = "http://localhost:3000"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 10
	}
	if cfg.Backend.RPCFunction == "" {
		cfg.Backend.RPCFunction = "exec_sql"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "log"
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.Email.DefaultFrom == "" {
		cfg.Email.DefaultFrom = "NexuPay <no-reply@nexupay.cl>"
	}
	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "stub"
	}
	if cfg.Payment.IdempotencyTTL == 0 {
		cfg.Payment.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Payment.IdempotencyMode == "" {
		cfg.Payment.IdempotencyMode = "memory"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "exports"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "apikey"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "nexupay"
	}
	if cfg.Telemetry.ProfilerAddress == "" {
		cfg.Telemetry.ProfilerAddress = "http://localhost:4040"
	}
	if cfg.Migration.StatementDelay == 0 {
		cfg.Migration.StatementDelay = 100 * time.Millisecond
	}
	if len(cfg.Migration.Strategies) == 0 {
		cfg.Migration.Strategies = []string{"direct", "rpc"}
	}
	if cfg.Scheduler.OverdueSchedule == "" {
		cfg.Scheduler.OverdueSchedule = "0 2 * * *"
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "America/Santiago"
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 10 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Email.Provider {
	case "smtp":
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("email.smtp_host is required when email.provider is smtp")
		}
	case "log":
	default:
		return fmt.Errorf("email.provider must be one of smtp, log; got %q", c.Email.Provider)
	}

	switch c.Payment.Provider {
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return fmt.Errorf("payment.stripe_secret_key is required when payment.provider is stripe")
		}
	case "stub":
	default:
		return fmt.Errorf("payment.provider must be one of stripe, stub; got %q", c.Payment.Provider)
	}

	if c.Payment.IdempotencyMode != "memory" && c.Payment.IdempotencyMode != "redis" {
		return fmt.Errorf("payment.idempotency_mode must be memory or redis; got %q", c.Payment.IdempotencyMode)
	}

	for _, s := range c.Migration.Strategies {
		if s != "direct" && s != "rpc" {
			return fmt.Errorf("migration.strategies: unknown strategy %q", s)
		}
	}

	if c.App.Env == "production" {
		if c.Backend.ServiceKey == "" {
			return fmt.Errorf("backend.service_key is required in production")
		}
		if c.Backend.JWTSecret == "" {
			return fmt.Errorf("backend.jwt_secret is required in production")
		}
		if c.Database.URL == "" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Swagger.Enabled && !c.Swagger.RequireAuth && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger endpoint must be disabled, require authentication, or have IP restriction in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.Telemetry.ProfilingEnabled {
		if _, err := url.ParseRequestURI(c.Telemetry.ProfilerAddress); err != nil {
			return fmt.Errorf("telemetry.profiler_address: %w", err)
		}
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	return nil
}

// IsConfigured reports whether enough backend settings are present to serve traffic.
// When false the HTTP layer answers with the maintenance envelope.
func (c *Config) IsConfigured() bool {
	return c.Backend.URL != "" && (c.Backend.AnonKey != "" || c.Backend.ServiceKey != "")
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// splitList flattens comma separated entries so env values like "a,b" behave like TOML arrays
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
