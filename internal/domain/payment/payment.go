// Package payment models payments made against debts and the provider
// notifications that change their status.
package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
)

// Status of a payment as reported by the provider
type Status string

const (
	StatusPending   Status = "pending"
	StatusInProcess Status = "in_process"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProcess, StatusApproved, StatusRejected, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// IsFinal reports whether no further transition is expected
func (s Status) IsFinal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusRefunded
}

func (s Status) String() string { return string(s) }

// Payment is a payment attempt registered with an external provider
type Payment struct {
	ID         uuid.UUID
	DebtID     *uuid.UUID
	UserID     *uuid.UUID
	ExternalID string // provider side identifier
	Provider   string
	Amount     decimal.Decimal
	Currency   shared.Currency
	Status     Status
	ApprovedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Transition moves the payment to status. It reports whether anything changed.
// A refund is only accepted for an approved payment, and an approved payment can
// only move to refunded. Other final states are sticky.
func (p *Payment) Transition(status Status, at time.Time) (bool, error) {
	if !status.IsValid() {
		return false, shared.ErrInvalidInput.WithMessage("unknown payment status " + string(status))
	}
	if p.Status == status {
		return false, nil
	}
	if p.Status.IsFinal() {
		return false, shared.ErrInvalidState.WithMessage("payment is already " + string(p.Status))
	}
	if p.Status == StatusApproved && status != StatusRefunded {
		return false, shared.ErrInvalidState.WithMessage("approved payments can only be refunded")
	}
	if status == StatusRefunded && p.Status != StatusApproved {
		return false, shared.ErrInvalidState.WithMessage("only approved payments can be refunded")
	}
	p.Status = status
	p.UpdatedAt = at
	if status == StatusApproved {
		p.ApprovedAt = &at
	}
	return true, nil
}

// Repository persists payments
type Repository interface {
	FindByExternalID(ctx context.Context, provider, externalID string) (*Payment, error)
	Save(ctx context.Context, p *Payment) error
}
