package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
)

type exported struct {
	body     string
	severity log.Severity
}

type recordingExporter struct {
	mu      sync.Mutex
	records []exported
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, exported{body: r.Body().AsString(), severity: r.Severity()})
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.body)
	}
	return out
}

func TestBridgeLogger(t *testing.T) {
	exp := &recordingExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	core, local := observer.New(zapcore.DebugLevel)
	logger := BridgeLogger(zap.New(core), lp, "nexupay", zapcore.InfoLevel)

	logger.Debug("debug stays local")
	logger.Info("webhook processed", zap.String("payment_id", "pi_1"))
	logger.With(zap.String("component", "email")).Error("send failed")

	assert.Equal(t, 3, local.Len())
	assert.Equal(t, []string{"webhook processed", "send failed"}, exp.bodies())

	exp.mu.Lock()
	defer exp.mu.Unlock()
	require.Len(t, exp.records, 2)
	assert.Equal(t, log.SeverityInfo, exp.records[0].severity)
	assert.Equal(t, log.SeverityError, exp.records[1].severity)
}

func TestLevelFilterCore(t *testing.T) {
	inner, _ := observer.New(zapcore.DebugLevel)
	c := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}

	assert.False(t, c.Enabled(zapcore.InfoLevel))
	assert.True(t, c.Enabled(zapcore.ErrorLevel))
	assert.Nil(t, c.Check(zapcore.Entry{Level: zapcore.InfoLevel}, nil))

	with, ok := c.With([]zapcore.Field{zap.String("k", "v")}).(*levelFilterCore)
	require.True(t, ok)
	assert.Equal(t, zapcore.WarnLevel, with.minLevel)
}

func TestProviders_BridgeWithoutLogExport(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false, LogsEnabled: true}, zap.NewNop())
	require.NoError(t, err)

	logger := zap.NewExample()
	assert.Same(t, logger, p.Bridge(logger, "nexupay", zapcore.InfoLevel))
	assert.NoError(t, p.Shutdown(context.Background()))
}
