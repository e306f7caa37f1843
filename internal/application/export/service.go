// Package export serialises debts to CSV, JSON or XLSX and optionally
// publishes the file to object storage.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/logger"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/telemetry"
)

// DefaultURLExpiry is how long a published download link stays valid
const DefaultURLExpiry = time.Hour

// ObjectStore stores export files and hands out download links
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// File is a generated export
type File struct {
	Name        string     `json:"name"`
	Format      Format     `json:"format"`
	ContentType string     `json:"content_type"`
	Rows        int        `json:"rows"`
	Data        []byte     `json:"-"`
	Key         string     `json:"key,omitempty"`
	URL         string     `json:"url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Service builds debt exports
type Service struct {
	debts     debt.Repository
	store     ObjectStore
	urlExpiry time.Duration
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithStore enables uploads
func WithStore(store ObjectStore, urlExpiry time.Duration) Option {
	return func(s *Service) {
		s.store = store
		if urlExpiry > 0 {
			s.urlExpiry = urlExpiry
		}
	}
}

// WithMetrics records generated files
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source used for file names
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new export Service
func NewService(debts debt.Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		debts:     debts,
		urlExpiry: DefaultURLExpiry,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanUpload reports whether an object store is configured
func (s *Service) CanUpload() bool {
	return s.store != nil
}

// Export loads the debts matching filter and encodes them in format
func (s *Service) Export(ctx context.Context, format string, filter debt.Filter) (*File, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown debt status %q", filter.Status))
	}

	ctx, span := telemetry.StartSpan(ctx, "export.debts", telemetry.AttrFormat.String(string(f)))
	defer span.End()

	debts, err := s.debts.List(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list debts: %w", err)
	}
	rows := make([]Row, 0, len(debts))
	for _, d := range debts {
		rows = append(rows, NewRow(d))
	}

	data, err := encode(f, rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("export.rows", len(rows)))

	s.metrics.RecordExport(ctx, string(f))
	logger.LOr(ctx, s.logger).Info("Debts exported",
		zap.String("format", string(f)),
		zap.Int("rows", len(rows)),
		zap.Int("bytes", len(data)),
	)

	return &File{
		Name:        fmt.Sprintf("deudas_%s.%s", s.now().UTC().Format("20060102_150405"), f),
		Format:      f,
		ContentType: f.ContentType(),
		Rows:        len(rows),
		Data:        data,
	}, nil
}

// Upload stores file under exports/<random id>/ and fills in its download URL.
// Every upload gets a distinct key.
func (s *Service) Upload(ctx context.Context, file *File) error {
	if s.store == nil {
		return shared.ErrUnavailable.WithMessage("object storage is not configured")
	}
	key := "exports/" + uuid.NewString() + "/" + file.Name
	if err := s.store.Put(ctx, key, file.Data, file.ContentType); err != nil {
		return shared.ErrUpstreamFailed.WithMessage("upload export").Wrap(err)
	}
	url, expires, err := s.store.DownloadURL(ctx, key, s.urlExpiry)
	if err != nil {
		return shared.ErrUpstreamFailed.WithMessage("presign export").Wrap(err)
	}
	file.Key = key
	file.URL = url
	file.ExpiresAt = &expires
	return nil
}
