package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
)

var (
	AttrDBState     = attribute.Key("state")
	AttrDBOperation = attribute.Key("operation")
	AttrDBTable     = attribute.Key("table")
)

// DefaultSlowQueryThreshold is used when DBMetrics gets a zero threshold
const DefaultSlowQueryThreshold = 200 * time.Millisecond

type dbStartKey struct{}

// DBMetrics is a GORM plugin recording query counts and latency. Registering it
// also exports the connection pool state as observable gauges.
type DBMetrics struct {
	meter         metric.Meter
	slowThreshold time.Duration

	queries     metric.Int64Counter
	duration    metric.Float64Histogram
	slowQueries metric.Int64Counter
}

// NewDBMetrics creates the query instruments on meter
func NewDBMetrics(meter metric.Meter, slowThreshold time.Duration) (*DBMetrics, error) {
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowQueryThreshold
	}
	m := &DBMetrics{meter: meter, slowThreshold: slowThreshold}
	var err error

	if m.queries, err = meter.Int64Counter("nexupay.db.queries",
		metric.WithDescription("Database queries by operation"),
		metric.WithUnit("{query}")); err != nil {
		return nil, fmt.Errorf("create query counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("nexupay.db.query.duration",
		metric.WithDescription("Database query latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5)); err != nil {
		return nil, fmt.Errorf("create query histogram: %w", err)
	}
	if m.slowQueries, err = meter.Int64Counter("nexupay.db.slow_queries",
		metric.WithDescription("Queries slower than the slow query threshold, by table"),
		metric.WithUnit("{query}")); err != nil {
		return nil, fmt.Errorf("create slow query counter: %w", err)
	}
	return m, nil
}

// Name implements gorm.Plugin
func (m *DBMetrics) Name() string {
	return "nexupay:db_metrics"
}

// Initialize implements gorm.Plugin
func (m *DBMetrics) Initialize(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	connections, err := m.meter.Int64ObservableGauge("nexupay.db.pool.connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return fmt.Errorf("create pool gauge: %w", err)
	}
	maxOpen, err := m.meter.Int64ObservableGauge("nexupay.db.pool.connections_max",
		metric.WithDescription("Maximum open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return fmt.Errorf("create pool max gauge: %w", err)
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(maxOpen, int64(stats.MaxOpenConnections))
		o.ObserveInt64(connections, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(connections, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(connections, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		return nil
	}, connections, maxOpen)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}

	before := func(tx *gorm.DB) {
		ctx := tx.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		tx.Statement.Context = context.WithValue(ctx, dbStartKey{}, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			op := operation
			if op == "" {
				op = operationOf(tx.Statement.SQL.String())
			}
			m.record(tx.Statement.Context, op, tx.Statement.Table)
		}
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("db_metrics:before_create", before),
		cb.Create().After("gorm:create").Register("db_metrics:after_create", after("INSERT")),
		cb.Query().Before("gorm:query").Register("db_metrics:before_query", before),
		cb.Query().After("gorm:query").Register("db_metrics:after_query", after("SELECT")),
		cb.Update().Before("gorm:update").Register("db_metrics:before_update", before),
		cb.Update().After("gorm:update").Register("db_metrics:after_update", after("UPDATE")),
		cb.Delete().Before("gorm:delete").Register("db_metrics:before_delete", before),
		cb.Delete().After("gorm:delete").Register("db_metrics:after_delete", after("DELETE")),
		cb.Row().Before("gorm:row").Register("db_metrics:before_row", before),
		cb.Row().After("gorm:row").Register("db_metrics:after_row", after("")),
		cb.Raw().Before("gorm:raw").Register("db_metrics:before_raw", before),
		cb.Raw().After("gorm:raw").Register("db_metrics:after_raw", after("")),
	)
}

func (m *DBMetrics) record(ctx context.Context, operation, table string) {
	if ctx == nil {
		return
	}
	start, ok := ctx.Value(dbStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)

	attrs := metric.WithAttributes(AttrDBOperation.String(operation))
	m.queries.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if elapsed > m.slowThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueries.Add(ctx, 1, metric.WithAttributes(AttrDBTable.String(table)))
	}
}

func operationOf(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	if strings.HasPrefix(sql, "WITH") {
		return "SELECT"
	}
	return "OTHER"
}
