// Package payment adapts external payment gateways to payment.Provider.
package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	domain "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
)

// ProviderStripe is the provider name stored with Stripe payments
const ProviderStripe = "stripe"

// metadata keys checked, in order, for our own reference
var referenceKeys = []string{"debt_id", "reference", "payment_id"}

// StripeConfig configures the Stripe provider
type StripeConfig struct {
	SecretKey string
	// BaseURL overrides the API endpoint; tests point it at httptest.
	BaseURL    string
	HTTPClient *http.Client
}

// StripeProvider reads PaymentIntents from Stripe
type StripeProvider struct {
	api    *client.API
	logger *zap.Logger
}

// NewStripeProvider creates a Stripe backed provider
func NewStripeProvider(cfg StripeConfig, logger *zap.Logger) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	backendCfg := &stripe.BackendConfig{
		LeveledLogger:     logger.Sugar(),
		MaxNetworkRetries: stripe.Int64(1),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
		backendCfg.MaxNetworkRetries = stripe.Int64(0)
	}
	if cfg.HTTPClient != nil {
		backendCfg.HTTPClient = cfg.HTTPClient
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &StripeProvider{
		api:    client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		logger: logger,
	}, nil
}

// Name returns the provider name
func (p *StripeProvider) Name() string { return ProviderStripe }

// FetchPayment loads the PaymentIntent externalID with its latest charge
func (p *StripeProvider) FetchPayment(ctx context.Context, externalID string, _ domain.Notification) (*domain.ProviderPayment, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := p.api.PaymentIntents.Get(externalID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && (se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound) {
			return nil, shared.ErrNotFound.WithMessage("payment intent " + externalID + " not found")
		}
		return nil, shared.ErrUpstreamFailed.WithMessage("stripe: " + err.Error()).Wrap(err)
	}

	currency := shared.ParseCurrency(string(pi.Currency))
	out := &domain.ProviderPayment{
		ExternalID: pi.ID,
		Status:     stripeStatus(pi),
		Amount:     decimal.New(pi.Amount, -currency.Scale()),
		Currency:   currency,
	}
	for _, k := range referenceKeys {
		if v := pi.Metadata[k]; v != "" {
			out.Reference = v
			break
		}
	}

	p.logger.Debug("Fetched payment intent",
		zap.String("payment_intent", pi.ID),
		zap.String("stripe_status", string(pi.Status)),
		zap.String("status", string(out.Status)))
	return out, nil
}

func stripeStatus(pi *stripe.PaymentIntent) domain.Status {
	if pi.LatestCharge != nil && pi.LatestCharge.Refunded {
		return domain.StatusRefunded
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.StatusApproved
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return domain.StatusInProcess
	case stripe.PaymentIntentStatusCanceled:
		return domain.StatusCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// a failed attempt sends the intent back to requires_payment_method
		if pi.LastPaymentError != nil {
			return domain.StatusRejected
		}
		return domain.StatusPending
	default:
		return domain.StatusPending
	}
}

var _ domain.Provider = (*StripeProvider)(nil)
