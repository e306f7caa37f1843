package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	paymentapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/cache"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence/models"
)

// fakeProvider answers FetchPayment from a map
type fakeProvider struct {
	payments map[string]*payment.ProviderPayment
	err      error
	calls    int
}

func (f *fakeProvider) Name() string { return "stub" }

func (f *fakeProvider) FetchPayment(_ context.Context, id string, _ payment.Notification) (*payment.ProviderPayment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

type fixture struct {
	db       *gorm.DB
	store    *persistence.PaymentStore
	provider *fakeProvider
	idem     *cache.MemoryStore
	svc      *paymentapp.WebhookService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := persistence.Open(sqlite.Open(":memory:"), persistence.Options{LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.DB.AutoMigrate(
		&models.UserModel{}, &models.CompanyModel{}, &models.DebtModel{},
		&models.PaymentModel{}, &models.WebhookEventModel{},
	))

	f := &fixture{
		db:       db.DB,
		store:    persistence.NewPaymentStore(db.DB),
		provider: &fakeProvider{payments: map[string]*payment.ProviderPayment{}},
		idem:     cache.NewMemoryStore(),
	}
	t.Cleanup(func() { _ = f.idem.Close() })
	f.svc = paymentapp.NewWebhookService(paymentapp.WebhookServiceConfig{
		Provider:    f.provider,
		Store:       f.store,
		Idempotency: f.idem,
		Logger:      zap.NewNop(),
	})
	return f
}

// seed creates a debt of debtAmount and a pending payment of payAmount against it
func (f *fixture) seed(t *testing.T, externalID string, debtAmount, payAmount int64, status payment.Status) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	d := &debt.Debt{
		UserID:         uuid.New(),
		CompanyID:      uuid.New(),
		OriginalAmount: decimal.NewFromInt(debtAmount),
		CurrentAmount:  decimal.NewFromInt(debtAmount),
		Currency:       shared.CLP,
		Status:         debt.StatusAgreement,
	}
	require.NoError(t, f.store.Debts().Save(ctx, d))

	p := &payment.Payment{
		DebtID:     &d.ID,
		ExternalID: externalID,
		Provider:   "stub",
		Amount:     decimal.NewFromInt(payAmount),
		Currency:   shared.CLP,
		Status:     status,
	}
	require.NoError(t, f.store.Payments().Save(ctx, p))
	return d.ID, p.ID
}

func (f *fixture) outcomes(t *testing.T, key string) []payment.EventOutcome {
	t.Helper()
	events, err := persistence.NewGormWebhookEventRepository(f.db).ListByKey(context.Background(), key)
	require.NoError(t, err)
	out := make([]payment.EventOutcome, len(events))
	for i, e := range events {
		out[i] = e.Outcome
	}
	return out
}

func notification(action, id string) payment.Notification {
	return payment.Notification{Type: payment.TypePayment, Action: action, Data: payment.NotificationData{ID: id}}
}

func TestWebhookService_ApprovedPaymentSettlesDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	debtID, paymentID := f.seed(t, "pay-1", 100000, 100000, payment.StatusPending)
	f.provider.payments["pay-1"] = &payment.ProviderPayment{ExternalID: "pay-1", Status: payment.StatusApproved}

	n := notification("payment.updated", "pay-1")
	res, err := f.svc.Process(ctx, n, []byte(`{"type":"payment"}`))
	require.NoError(t, err)
	assert.Equal(t, paymentapp.StatusProcessed, res.Status)
	assert.Equal(t, paymentID.String(), res.PaymentID)
	assert.Equal(t, "approved", res.PaymentStatus)
	assert.True(t, res.DebtPaid)

	p, err := f.store.Payments().FindByExternalID(ctx, "stub", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusApproved, p.Status)
	assert.NotNil(t, p.ApprovedAt)

	d, err := f.store.Debts().FindByID(ctx, debtID)
	require.NoError(t, err)
	assert.Equal(t, debt.StatusPaid, d.Status)
	assert.True(t, d.CurrentAmount.IsZero())

	assert.Equal(t, []payment.EventOutcome{payment.OutcomeProcessed}, f.outcomes(t, n.Key()))

	t.Run("redelivery is acknowledged without reprocessing", func(t *testing.T) {
		calls := f.provider.calls
		res, err := f.svc.Process(ctx, n, nil)
		require.NoError(t, err)
		assert.Equal(t, paymentapp.StatusAlreadyProcessed, res.Status)
		assert.Equal(t, calls, f.provider.calls)
		assert.Equal(t, []payment.EventOutcome{payment.OutcomeProcessed, payment.OutcomeDuplicate}, f.outcomes(t, n.Key()))
	})
}

func TestWebhookService_PartialPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	debtID, _ := f.seed(t, "pay-2", 100000, 30000, payment.StatusPending)
	f.provider.payments["pay-2"] = &payment.ProviderPayment{ExternalID: "pay-2", Status: payment.StatusApproved, Amount: decimal.NewFromInt(40000)}

	res, err := f.svc.Process(ctx, notification("payment.updated", "pay-2"), nil)
	require.NoError(t, err)
	assert.False(t, res.DebtPaid)

	d, err := f.store.Debts().FindByID(ctx, debtID)
	require.NoError(t, err)
	assert.Equal(t, debt.StatusAgreement, d.Status)
	assert.True(t, d.CurrentAmount.Equal(decimal.NewFromInt(60000)), "provider amount wins over stored amount")
}

func TestWebhookService_ApprovedPaymentAppliedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	debtID, _ := f.seed(t, "pay-6", 1000, 400, payment.StatusPending)

	f.provider.payments["pay-6"] = &payment.ProviderPayment{ExternalID: "pay-6", Status: payment.StatusApproved}
	res, err := f.svc.Process(ctx, notification("payment.updated", "pay-6"), nil)
	require.NoError(t, err)
	assert.Equal(t, paymentapp.StatusProcessed, res.Status)

	// a late created notification must not move the payment back
	f.provider.payments["pay-6"] = &payment.ProviderPayment{ExternalID: "pay-6", Status: payment.StatusPending}
	res, err = f.svc.Process(ctx, notification("payment.created", "pay-6"), nil)
	require.NoError(t, err)
	assert.Equal(t, paymentapp.StatusIgnored, res.Status)
	assert.Equal(t, "approved", res.PaymentStatus)

	f.provider.payments["pay-6"] = &payment.ProviderPayment{ExternalID: "pay-6", Status: payment.StatusApproved}
	res, err = f.svc.Process(ctx, notification("payment.approved", "pay-6"), nil)
	require.NoError(t, err)
	assert.Equal(t, "approved", res.PaymentStatus)

	d, err := f.store.Debts().FindByID(ctx, debtID)
	require.NoError(t, err)
	assert.True(t, d.CurrentAmount.Equal(decimal.NewFromInt(600)), "got %s", d.CurrentAmount)
}

func TestWebhookService_PendingDoesNotTouchDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	debtID, _ := f.seed(t, "pay-3", 5000, 5000, payment.StatusPending)
	f.provider.payments["pay-3"] = &payment.ProviderPayment{ExternalID: "pay-3", Status: payment.StatusInProcess}

	res, err := f.svc.Process(ctx, notification("payment.created", "pay-3"), nil)
	require.NoError(t, err)
	assert.Equal(t, "in_process", res.PaymentStatus)

	d, err := f.store.Debts().FindByID(ctx, debtID)
	require.NoError(t, err)
	assert.True(t, d.CurrentAmount.Equal(decimal.NewFromInt(5000)))
}

func TestWebhookService_IgnoredAndMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("other notification types", func(t *testing.T) {
		n := payment.Notification{Type: "plan", Action: "plan.created"}
		res, err := f.svc.Process(ctx, n, nil)
		require.NoError(t, err)
		assert.Equal(t, paymentapp.StatusIgnored, res.Status)
		assert.Zero(t, f.provider.calls)
		assert.Equal(t, []payment.EventOutcome{payment.OutcomeIgnored}, f.outcomes(t, n.Key()))
	})

	t.Run("provider does not know the payment", func(t *testing.T) {
		n := notification("payment.updated", "ghost")
		res, err := f.svc.Process(ctx, n, nil)
		require.NoError(t, err)
		assert.Equal(t, paymentapp.StatusNotFound, res.Status)
		assert.Equal(t, []payment.EventOutcome{payment.OutcomeNotFound}, f.outcomes(t, n.Key()))
	})

	t.Run("payment not registered locally", func(t *testing.T) {
		f.provider.payments["remote-only"] = &payment.ProviderPayment{Status: payment.StatusApproved}
		res, err := f.svc.Process(ctx, notification("payment.updated", "remote-only"), nil)
		require.NoError(t, err)
		assert.Equal(t, paymentapp.StatusNotFound, res.Status)
	})

	t.Run("final status is sticky", func(t *testing.T) {
		f.seed(t, "pay-4", 1000, 1000, payment.StatusRejected)
		f.provider.payments["pay-4"] = &payment.ProviderPayment{Status: payment.StatusApproved}
		res, err := f.svc.Process(ctx, notification("payment.updated", "pay-4"), nil)
		require.NoError(t, err)
		assert.Equal(t, paymentapp.StatusIgnored, res.Status)
		assert.Equal(t, "rejected", res.PaymentStatus)
	})

	t.Run("invalid notification", func(t *testing.T) {
		_, err := f.svc.Process(ctx, payment.Notification{Type: "payment"}, nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestWebhookService_ProviderFailureAllowsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "pay-5", 1000, 1000, payment.StatusPending)
	f.provider.payments["pay-5"] = &payment.ProviderPayment{Status: payment.StatusApproved}
	f.provider.err = errors.New("gateway timeout")

	n := notification("payment.updated", "pay-5")
	_, err := f.svc.Process(ctx, n, nil)
	require.Error(t, err)

	processed, err := f.idem.IsProcessed(ctx, n.Key())
	require.NoError(t, err)
	assert.False(t, processed, "failed notification must release its key")

	f.provider.err = nil
	res, err := f.svc.Process(ctx, n, nil)
	require.NoError(t, err)
	assert.Equal(t, paymentapp.StatusProcessed, res.Status)
	assert.Equal(t, []payment.EventOutcome{payment.OutcomeFailed, payment.OutcomeProcessed}, f.outcomes(t, n.Key()))
}
