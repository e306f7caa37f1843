package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by the service metrics
var (
	AttrProvider = attribute.Key("provider")
	AttrOutcome  = attribute.Key("outcome")
	AttrStatus   = attribute.Key("status")
	AttrFormat   = attribute.Key("format")
)

// Metrics holds the instruments the service records
type Metrics struct {
	webhookNotifications metric.Int64Counter
	webhookDuration      metric.Float64Histogram
	emailsSent           metric.Int64Counter
	exports              metric.Int64Counter
}

// NewMetrics registers the instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.webhookNotifications, err = meter.Int64Counter("nexupay.webhook.notifications",
		metric.WithDescription("Payment notifications received, by outcome"),
		metric.WithUnit("{notification}")); err != nil {
		return nil, fmt.Errorf("create webhook counter: %w", err)
	}
	if m.webhookDuration, err = meter.Float64Histogram("nexupay.webhook.duration",
		metric.WithDescription("Time to process a payment notification"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10)); err != nil {
		return nil, fmt.Errorf("create webhook histogram: %w", err)
	}
	if m.emailsSent, err = meter.Int64Counter("nexupay.email.sent",
		metric.WithDescription("Email delivery attempts, by status"),
		metric.WithUnit("{email}")); err != nil {
		return nil, fmt.Errorf("create email counter: %w", err)
	}
	if m.exports, err = meter.Int64Counter("nexupay.export.files",
		metric.WithDescription("Debt exports generated, by format"),
		metric.WithUnit("{file}")); err != nil {
		return nil, fmt.Errorf("create export counter: %w", err)
	}
	return m, nil
}

// RecordNotification counts one webhook delivery and its processing time
func (m *Metrics) RecordNotification(ctx context.Context, provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrProvider.String(provider), AttrOutcome.String(outcome))
	m.webhookNotifications.Add(ctx, 1, attrs)
	m.webhookDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordEmail counts one delivery attempt
func (m *Metrics) RecordEmail(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.emailsSent.Add(ctx, 1, metric.WithAttributes(AttrStatus.String(status)))
}

// RecordExport counts one generated export
func (m *Metrics) RecordExport(ctx context.Context, format string) {
	if m == nil {
		return
	}
	m.exports.Add(ctx, 1, metric.WithAttributes(AttrFormat.String(format)))
}
