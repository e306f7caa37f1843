package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
)

func newStripeTestServer(t *testing.T, intents map[string]string) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		id := r.URL.Path[len("/v1/payment_intents/"):]
		body, ok := intents[id]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	p, err := NewStripeProvider(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestStripeProvider_FetchPayment(t *testing.T) {
	p := newStripeTestServer(t, map[string]string{
		"pi_ok":       `{"id":"pi_ok","object":"payment_intent","amount":150000,"currency":"clp","status":"succeeded","metadata":{"debt_id":"d-1"}}`,
		"pi_usd":      `{"id":"pi_usd","object":"payment_intent","amount":1999,"currency":"usd","status":"processing","metadata":{}}`,
		"pi_failed":   `{"id":"pi_failed","object":"payment_intent","amount":100,"currency":"clp","status":"requires_payment_method","last_payment_error":{"type":"card_error","code":"card_declined"}}`,
		"pi_refunded": `{"id":"pi_refunded","object":"payment_intent","amount":100,"currency":"clp","status":"succeeded","latest_charge":{"id":"ch_1","object":"charge","refunded":true}}`,
	})
	ctx := context.Background()

	t.Run("succeeded maps to approved", func(t *testing.T) {
		got, err := p.FetchPayment(ctx, "pi_ok", domain.Notification{})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusApproved, got.Status)
		assert.True(t, got.Amount.Equal(decimal.NewFromInt(150000)))
		assert.Equal(t, shared.CLP, got.Currency)
		assert.Equal(t, "d-1", got.Reference)
	})

	t.Run("usd amounts use cents", func(t *testing.T) {
		got, err := p.FetchPayment(ctx, "pi_usd", domain.Notification{})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInProcess, got.Status)
		assert.Equal(t, "19.99", got.Amount.String())
	})

	t.Run("declined attempt is rejected", func(t *testing.T) {
		got, err := p.FetchPayment(ctx, "pi_failed", domain.Notification{})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRejected, got.Status)
	})

	t.Run("refunded charge", func(t *testing.T) {
		got, err := p.FetchPayment(ctx, "pi_refunded", domain.Notification{})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunded, got.Status)
	})

	t.Run("unknown intent", func(t *testing.T) {
		_, err := p.FetchPayment(ctx, "pi_missing", domain.Notification{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestNewStripeProvider_RequiresKey(t *testing.T) {
	_, err := NewStripeProvider(StripeConfig{}, nil)
	assert.Error(t, err)
}

func TestStubProvider(t *testing.T) {
	p := NewStubProvider()
	tests := []struct {
		action string
		want   domain.Status
	}{
		{"payment.created", domain.StatusPending},
		{"payment.updated", domain.StatusApproved},
		{"payment.cancelled", domain.StatusCancelled},
		{"payment.refunded", domain.StatusRefunded},
		{"", domain.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := p.FetchPayment(context.Background(), "42", domain.Notification{Action: tt.action})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, "42", got.ExternalID)
			assert.True(t, got.Amount.IsZero())
		})
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.PaymentConfig{Provider: "stub"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ProviderStub, p.Name())

	p, err = NewProvider(config.PaymentConfig{Provider: "stripe", StripeSecretKey: "sk_test_1"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, p.Name())

	_, err = NewProvider(config.PaymentConfig{Provider: "paypal"}, zap.NewNop())
	assert.Error(t, err)
}
