// Package email sends templated transactional email and records each attempt.
package email

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/email"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/logger"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/telemetry"
)

// AppURLKey is the template variable filled with the web app URL
const AppURLKey = "app_url"

// SendRequest is the body of a send-email call
type SendRequest struct {
	To       string         `json:"to" validate:"required,email,max=320"`
	Subject  string         `json:"subject" validate:"required_without=Template,max=255"`
	Template string         `json:"template" validate:"required_without=Subject,max=100"`
	Data     map[string]any `json:"data"`
	From     string         `json:"from" validate:"max=320"`
	HTML     string         `json:"html"`
	Text     string         `json:"text"`
}

// SendResult describes a delivered message
type SendResult struct {
	MessageID string `json:"message_id"`
	Provider  string `json:"provider"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Template  string `json:"template,omitempty"`
}

// ServiceConfig contains the dependencies of Service
type ServiceConfig struct {
	Templates   email.TemplateRepository
	Logs        email.LogRepository
	Sender      email.Sender
	DefaultFrom string
	AppURL      string
	Metrics     *telemetry.Metrics
	Logger      *zap.Logger
}

// Service renders and sends email
type Service struct {
	cfg      ServiceConfig
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates a new Service
func NewService(cfg ServiceConfig) *Service {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		cfg:      cfg,
		validate: v,
		logger:   l,
	}
}

// Validate checks req. Validation failures wrap validator.ValidationErrors in shared.ErrInvalidInput.
func (s *Service) Validate(req *SendRequest) error {
	req.To = strings.TrimSpace(req.To)
	req.Template = strings.TrimSpace(req.Template)
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return shared.ErrInvalidInput.WithMessage("Request validation failed").Wrap(verrs)
		}
		return shared.ErrInvalidInput.WithMessage(err.Error())
	}
	return nil
}

// Send validates req, renders the message and delivers it
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := s.Validate(&req); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, "email.send", attribute.String("email.template", req.Template))
	defer span.End()

	log := logger.LOr(ctx, s.logger).With(zap.String("to", req.To), zap.String("template", req.Template))

	data := make(map[string]any, len(req.Data)+1)
	maps.Copy(data, req.Data)
	if _, ok := data[AppURLKey]; !ok && s.cfg.AppURL != "" {
		data[AppURLKey] = s.cfg.AppURL
	}

	from := strings.TrimSpace(req.From)
	if from == "" {
		from = s.cfg.DefaultFrom
	}

	var msg email.Message
	if req.Template != "" {
		tmpl, err := s.cfg.Templates.FindActiveByName(ctx, req.Template)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		msg = tmpl.Build(from, req.To, req.Subject, data)
	} else {
		msg = email.Message{
			From:     from,
			To:       req.To,
			Subject:  email.Render(req.Subject, data),
			HTMLBody: email.Render(req.HTML, data),
			TextBody: email.Render(req.Text, data),
		}
	}

	entry := &email.Log{
		Recipient:    msg.To,
		Subject:      msg.Subject,
		TemplateName: req.Template,
		CreatedAt:    time.Now(),
	}

	id, err := s.cfg.Sender.Send(ctx, msg)
	if err != nil {
		entry.Status = email.LogFailed
		entry.Error = err.Error()
		s.record(ctx, entry, log)
		telemetry.RecordError(span, err)
		log.Error("Email delivery failed", zap.Error(err))
		return nil, shared.ErrUpstreamFailed.WithMessage("email delivery failed").Wrap(err)
	}

	entry.Status = email.LogSent
	entry.MessageID = id
	s.record(ctx, entry, log)
	log.Info("Email sent", zap.String("message_id", id), zap.String("provider", s.cfg.Sender.Name()))

	return &SendResult{
		MessageID: id,
		Provider:  s.cfg.Sender.Name(),
		To:        msg.To,
		Subject:   msg.Subject,
		Template:  req.Template,
	}, nil
}

func (s *Service) record(ctx context.Context, entry *email.Log, log *zap.Logger) {
	s.cfg.Metrics.RecordEmail(ctx, string(entry.Status))
	if s.cfg.Logs == nil {
		return
	}
	if err := s.cfg.Logs.Create(ctx, entry); err != nil {
		log.Warn("Failed to record email log", zap.Error(err))
	}
}
