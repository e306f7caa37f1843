package persistence

import (
	"context"

	"gorm.io/gorm"

	paymentapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
)

// PaymentStore groups the repositories the webhook service needs
type PaymentStore struct {
	db *gorm.DB
}

// NewPaymentStore creates a store over db
func NewPaymentStore(db *gorm.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

// Payments returns the payment repository
func (s *PaymentStore) Payments() payment.Repository { return NewGormPaymentRepository(s.db) }

// Debts returns the debt repository
func (s *PaymentStore) Debts() debt.Repository { return NewGormDebtRepository(s.db) }

// Events returns the webhook event repository
func (s *PaymentStore) Events() payment.EventRepository { return NewGormWebhookEventRepository(s.db) }

// InTx runs fn inside a transaction
func (s *PaymentStore) InTx(ctx context.Context, fn func(paymentapp.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PaymentStore{db: tx})
	})
}

var _ paymentapp.Store = (*PaymentStore)(nil)
