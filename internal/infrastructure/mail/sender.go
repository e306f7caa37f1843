// Package mail delivers rendered messages over SMTP or, in development, to the log.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/email"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
)

// SMTPSender sends through an SMTP relay
type SMTPSender struct {
	host    string
	options []gomail.Option
	logger  *zap.Logger
}

// NewSMTPSender configures an SMTP sender from cfg
func NewSMTPSender(cfg config.EmailConfig, logger *zap.Logger) (*SMTPSender, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTimeout(30 * time.Second),
	}
	if cfg.SMTPTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.SMTPUsername),
			gomail.WithPassword(cfg.SMTPPassword),
		)
	}
	return &SMTPSender{host: cfg.SMTPHost, options: opts, logger: logger}, nil
}

// Name returns the sender name
func (s *SMTPSender) Name() string { return "smtp" }

// Send delivers msg and returns its Message-ID
func (s *SMTPSender) Send(ctx context.Context, msg email.Message) (string, error) {
	m, err := buildMsg(msg)
	if err != nil {
		return "", err
	}

	client, err := gomail.NewClient(s.host, s.options...)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	id := messageID(m)
	s.logger.Info("Email sent", zap.String("to", msg.To), zap.String("message_id", id))
	return id, nil
}

// buildMsg converts msg to a MIME message. The text part is the primary
// body; HTML is attached as an alternative when present.
func buildMsg(msg email.Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetDate()

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
	}
	return m, nil
}

func messageID(m *gomail.Msg) string {
	if ids := m.GetGenHeader(gomail.HeaderMessageID); len(ids) > 0 {
		return strings.Trim(ids[0], "<>")
	}
	return ""
}
