package payment

import (
	"context"
	"strings"

	domain "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
)

// ProviderStub is the provider name stored with stub payments
const ProviderStub = "stub"

// StubProvider derives the status from the notification action, for local
// development and tests where no gateway is reachable. The amount is left
// zero so the stored payment amount is used.
type StubProvider struct{}

// NewStubProvider creates a stub provider
func NewStubProvider() *StubProvider { return &StubProvider{} }

// Name returns the provider name
func (StubProvider) Name() string { return ProviderStub }

// FetchPayment maps hint.Action to a status
func (StubProvider) FetchPayment(_ context.Context, externalID string, hint domain.Notification) (*domain.ProviderPayment, error) {
	return &domain.ProviderPayment{
		ExternalID: externalID,
		Status:     stubStatus(hint.Action),
	}, nil
}

func stubStatus(action string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "payment.updated", "payment.approved":
		return domain.StatusApproved
	case "payment.rejected", "payment.failed":
		return domain.StatusRejected
	case "payment.cancelled", "payment.canceled":
		return domain.StatusCancelled
	case "payment.refunded":
		return domain.StatusRefunded
	default: // payment.created and anything unrecognised
		return domain.StatusPending
	}
}

var _ domain.Provider = StubProvider{}
