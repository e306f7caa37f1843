package mail

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/email"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
)

// NewSender builds the sender named by email.provider
func NewSender(cfg config.EmailConfig, logger *zap.Logger) (email.Sender, error) {
	switch cfg.Provider {
	case "smtp":
		return NewSMTPSender(cfg, logger.Named("smtp"))
	case "log", "":
		return NewLogSender(logger.Named("mail")), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
