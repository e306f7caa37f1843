package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
)

// DebtTotals reports the portfolio aggregated by status
type DebtTotals interface {
	TotalsByStatus(ctx context.Context) ([]debt.StatusTotal, error)
}

const collectionQueryTimeout = 5 * time.Second

// RegisterCollectionMetrics exports the debt portfolio as observable gauges.
// The totals are queried on every collection cycle.
func RegisterCollectionMetrics(meter metric.Meter, source DebtTotals, logger *zap.Logger) (metric.Registration, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	count, err := meter.Int64ObservableGauge("nexupay.debts",
		metric.WithDescription("Debts by status"),
		metric.WithUnit("{debt}"))
	if err != nil {
		return nil, fmt.Errorf("create debt count gauge: %w", err)
	}
	outstanding, err := meter.Float64ObservableGauge("nexupay.debts.outstanding",
		metric.WithDescription("Outstanding balance by debt status"),
		metric.WithUnit("{CLP}"))
	if err != nil {
		return nil, fmt.Errorf("create outstanding gauge: %w", err)
	}

	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		ctx, cancel := context.WithTimeout(ctx, collectionQueryTimeout)
		defer cancel()

		totals, err := source.TotalsByStatus(ctx)
		if err != nil {
			// a failed query skips this cycle only
			logger.Warn("Failed to collect debt totals", zap.Error(err))
			return nil
		}
		for _, t := range totals {
			attrs := metric.WithAttributes(AttrStatus.String(string(t.Status)))
			o.ObserveInt64(count, t.Count, attrs)
			o.ObserveFloat64(outstanding, t.Amount.InexactFloat64(), attrs)
		}
		return nil
	}, count, outstanding)
}
