package mail

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/email"
)

// LogSender writes messages to the log instead of sending them
type LogSender struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []email.Message
}

// NewLogSender creates a log sender
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Name returns the sender name
func (s *LogSender) Name() string { return "log" }

// Send logs msg and returns a generated message ID
func (s *LogSender) Send(ctx context.Context, msg email.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "log-" + uuid.NewString()

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	s.logger.Info("Email logged, not delivered",
		zap.String("message_id", id),
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTMLBody)))
	return id, nil
}

// Sent returns a copy of the messages logged so far
func (s *LogSender) Sent() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.sent...)
}
