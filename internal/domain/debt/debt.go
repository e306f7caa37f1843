// Package debt holds the debts a company assigns to a debtor for collection.
package debt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
)

// Status of a debt
type Status string

const (
	StatusPending     Status = "pending"
	StatusNegotiating Status = "negotiating"
	StatusAgreement   Status = "agreement"
	StatusPaid        Status = "paid"
	StatusOverdue     Status = "overdue"
	StatusCancelled   Status = "cancelled"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusNegotiating, StatusAgreement, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// IsOpen reports whether the debt still expects payments
func (s Status) IsOpen() bool {
	return s != StatusPaid && s != StatusCancelled
}

// Debt is an amount owed by a user to a company
type Debt struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	CompanyID      uuid.UUID
	Reference      string
	OriginalAmount decimal.Decimal
	CurrentAmount  decimal.Decimal
	Currency       shared.Currency
	Status         Status
	DueDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DebtorName     string
	DebtorEmail    string
	CompanyName    string
}

// CoveredBy reports whether amount settles the outstanding balance
func (d *Debt) CoveredBy(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(d.CurrentAmount)
}

// ApplyPayment reduces the outstanding balance and marks the debt paid once it
// reaches zero. Closed debts reject payments.
func (d *Debt) ApplyPayment(amount decimal.Decimal, at time.Time) error {
	if !d.Status.IsOpen() {
		return shared.ErrInvalidState.WithMessage("debt is already " + string(d.Status))
	}
	if !amount.IsPositive() {
		return shared.ErrInvalidInput.WithMessage("payment amount must be positive")
	}
	d.CurrentAmount = decimal.Max(d.CurrentAmount.Sub(amount), decimal.Zero)
	if d.CurrentAmount.IsZero() {
		d.Status = StatusPaid
	}
	d.UpdatedAt = at
	return nil
}

// Filter selects debts for listing and export
type Filter struct {
	Status    Status
	CompanyID *uuid.UUID
	UserID    *uuid.UUID
	Limit     int
}

// StatusTotal aggregates the debts in one status
type StatusTotal struct {
	Status Status
	Count  int64
	Amount decimal.Decimal // sum of current amounts
}

// Repository reads and updates debts
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Debt, error)
	List(ctx context.Context, filter Filter) ([]Debt, error)
	Save(ctx context.Context, d *Debt) error
}
