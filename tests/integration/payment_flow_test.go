//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emailapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/email"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/export"
	paymentapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/cache"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/mail"
	paymentinfra "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence/models"
)

type fixture struct {
	userID    uuid.UUID
	companyID uuid.UUID
	debt      *debt.Debt
	payment   *payment.Payment
}

func seed(t *testing.T, tdb *TestDB, amount, paid int64) fixture {
	t.Helper()
	ctx := context.Background()

	user := &models.UserModel{BaseModel: models.BaseModel{ID: uuid.New()}, FullName: "Camila Rojas", Email: uuid.NewString()[:8] + "@example.cl"}
	require.NoError(t, tdb.DB.WithContext(ctx).Create(user).Error)
	company := &models.CompanyModel{BaseModel: models.BaseModel{ID: uuid.New()}, BusinessName: "Retail SpA"}
	require.NoError(t, tdb.DB.WithContext(ctx).Create(company).Error)

	d := &debt.Debt{
		UserID:         user.ID,
		CompanyID:      company.ID,
		Reference:      "INV-" + uuid.NewString()[:6],
		OriginalAmount: decimal.NewFromInt(amount),
		CurrentAmount:  decimal.NewFromInt(amount),
		Currency:       shared.CLP,
		Status:         debt.StatusAgreement,
	}
	require.NoError(t, persistence.NewGormDebtRepository(tdb.DB).Save(ctx, d))

	p := &payment.Payment{
		DebtID:     &d.ID,
		UserID:     &user.ID,
		ExternalID: "pay_" + uuid.NewString()[:8],
		Provider:   paymentinfra.ProviderStub,
		Amount:     decimal.NewFromInt(paid),
		Currency:   shared.CLP,
		Status:     payment.StatusPending,
	}
	require.NoError(t, persistence.NewGormPaymentRepository(tdb.DB).Save(ctx, p))

	return fixture{userID: user.ID, companyID: company.ID, debt: d, payment: p}
}

func TestWebhookService_Postgres(t *testing.T) {
	tdb := NewTestDB(t)
	ctx := context.Background()

	idem := cache.NewMemoryStore()
	defer idem.Close()

	svc := paymentapp.NewWebhookService(paymentapp.WebhookServiceConfig{
		Provider:    paymentinfra.NewStubProvider(),
		Store:       persistence.NewPaymentStore(tdb.DB),
		Idempotency: idem,
	})
	debts := persistence.NewGormDebtRepository(tdb.DB)
	payments := persistence.NewGormPaymentRepository(tdb.DB)
	events := persistence.NewGormWebhookEventRepository(tdb.DB)

	t.Run("approved payment settles the debt", func(t *testing.T) {
		f := seed(t, tdb, 150000, 150000)
		n := payment.Notification{Type: "payment", Action: "payment.updated", Data: payment.NotificationData{ID: f.payment.ExternalID}}

		res, err := svc.Process(ctx, n, []byte(`{"type":"payment"}`))
		require.NoError(t, err)
		assert.Equal(t, paymentapp.StatusProcessed, res.Status)
		assert.Equal(t, string(payment.StatusApproved), res.PaymentStatus)
		assert.True(t, res.DebtPaid)

		p, err := payments.FindByExternalID(ctx, paymentinfra.ProviderStub, f.payment.ExternalID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusApproved, p.Status)
		require.NotNil(t, p.ApprovedAt)

		d, err := debts.FindByID(ctx, f.debt.ID)
		require.NoError(t, err)
		assert.Equal(t, debt.StatusPaid, d.Status)
		assert.True(t, d.CurrentAmount.IsZero())
		assert.Equal(t, "Camila Rojas", d.DebtorName)
		assert.Equal(t, "Retail SpA", d.CompanyName)

		dup, err := svc.Process(ctx, n, nil)
		require.NoError(t, err)
		assert.Equal(t, paymentapp.StatusAlreadyProcessed, dup.Status)

		stored, err := events.ListByKey(ctx, n.Key())
		require.NoError(t, err)
		require.Len(t, stored, 2)
		outcomes := []payment.EventOutcome{stored[0].Outcome, stored[1].Outcome}
		assert.ElementsMatch(t, []payment.EventOutcome{payment.OutcomeProcessed, payment.OutcomeDuplicate}, outcomes)
	})

	t.Run("partial payment keeps the debt open", func(t *testing.T) {
		f := seed(t, tdb, 100000, 40000)
		n := payment.Notification{Type: "payment", Action: "payment.approved", Data: payment.NotificationData{ID: f.payment.ExternalID}}

		res, err := svc.Process(ctx, n, nil)
		require.NoError(t, err)
		assert.False(t, res.DebtPaid)

		d, err := debts.FindByID(ctx, f.debt.ID)
		require.NoError(t, err)
		assert.Equal(t, debt.StatusAgreement, d.Status)
		assert.True(t, d.CurrentAmount.Equal(decimal.NewFromInt(60000)), d.CurrentAmount.String())
	})

	t.Run("unknown payment is acknowledged", func(t *testing.T) {
		n := payment.Notification{Type: "payment", Action: "payment.updated", Data: payment.NotificationData{ID: "pay_unknown"}}
		res, err := svc.Process(ctx, n, nil)
		require.NoError(t, err)
		assert.Equal(t, paymentapp.StatusNotFound, res.Status)
	})
}

func TestEmailAndExport_Postgres(t *testing.T) {
	tdb := NewTestDB(t)
	ctx := context.Background()

	f := seed(t, tdb, 99000, 1000)

	emails := emailapp.NewService(emailapp.ServiceConfig{
		Templates: persistence.NewGormEmailTemplateRepository(tdb.DB),
		Logs:      persistence.NewGormEmailLogRepository(tdb.DB),
		Sender:    mail.NewLogSender(nil),
		AppURL:    "https://app.nexupay.cl",
	})
	res, err := emails.Send(ctx, emailapp.SendRequest{
		To:       "camila@example.cl",
		Template: "payment_reminder",
		Data:     map[string]any{"name": "Camila", "amount": "$99.000", "company": "Retail SpA"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)

	var status, subject string
	require.NoError(t, tdb.SQL.QueryRowContext(ctx,
		`SELECT status, subject FROM email_logs WHERE recipient = $1`, "camila@example.cl").Scan(&status, &subject))
	assert.Equal(t, "sent", status)
	assert.Equal(t, "Recordatorio de pago, Camila", subject)

	_, err = emails.Send(ctx, emailapp.SendRequest{To: "camila@example.cl", Template: "does_not_exist"})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	exports := export.NewService(persistence.NewGormDebtRepository(tdb.DB), nil,
		export.WithClock(func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }))
	file, err := exports.Export(ctx, "csv", debt.Filter{CompanyID: &f.companyID})
	require.NoError(t, err)
	assert.Equal(t, 1, file.Rows)
	assert.Equal(t, "deudas_20250314_093000.csv", file.Name)
	assert.Contains(t, string(file.Data), f.debt.Reference)
	assert.Contains(t, string(file.Data), "Camila Rojas")
}
