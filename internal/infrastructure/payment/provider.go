package payment

import (
	"fmt"

	"go.uber.org/zap"

	domain "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
)

// NewProvider builds the provider named by payment.provider
func NewProvider(cfg config.PaymentConfig, logger *zap.Logger) (domain.Provider, error) {
	switch cfg.Provider {
	case ProviderStripe:
		return NewStripeProvider(StripeConfig{SecretKey: cfg.StripeSecretKey}, logger.Named("stripe"))
	case ProviderStub, "":
		return NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
