package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
)

// PaymentModel maps the payments table
type PaymentModel struct {
	BaseModel
	DebtID     *uuid.UUID      `gorm:"type:uuid;index"`
	UserID     *uuid.UUID      `gorm:"type:uuid;index"`
	ExternalID string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_payments_provider_external"`
	Provider   string          `gorm:"type:varchar(30);not null;uniqueIndex:idx_payments_provider_external"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Currency   string          `gorm:"type:varchar(3);not null"`
	Status     string          `gorm:"type:varchar(20);not null"`
	ApprovedAt *time.Time
}

// TableName returns the table name for the model
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the model to a domain payment
func (m *PaymentModel) ToDomain() *payment.Payment {
	return &payment.Payment{
		ID:         m.ID,
		DebtID:     m.DebtID,
		UserID:     m.UserID,
		ExternalID: m.ExternalID,
		Provider:   m.Provider,
		Amount:     m.Amount,
		Currency:   shared.Currency(m.Currency),
		Status:     payment.Status(m.Status),
		ApprovedAt: m.ApprovedAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// PaymentModelFromDomain creates a model from a domain payment
func PaymentModelFromDomain(p *payment.Payment) *PaymentModel {
	return &PaymentModel{
		BaseModel: BaseModel{
			ID:        p.ID,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		},
		DebtID:     p.DebtID,
		UserID:     p.UserID,
		ExternalID: p.ExternalID,
		Provider:   p.Provider,
		Amount:     p.Amount,
		Currency:   string(p.Currency),
		Status:     string(p.Status),
		ApprovedAt: p.ApprovedAt,
	}
}

// WebhookEventModel maps the webhook_events table
type WebhookEventModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Provider   string    `gorm:"type:varchar(30);not null"`
	EventKey   string    `gorm:"type:varchar(255);not null;index"`
	Type       string    `gorm:"type:varchar(50);not null"`
	Action     string    `gorm:"type:varchar(100)"`
	ExternalID string    `gorm:"type:varchar(100);index"`
	Payload    string    `gorm:"type:jsonb"`
	Outcome    string    `gorm:"type:varchar(20);not null"`
	Error      string    `gorm:"type:text"`
	ReceivedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for the model
func (WebhookEventModel) TableName() string {
	return "webhook_events"
}

// WebhookEventModelFromDomain creates a model from a webhook event
func WebhookEventModelFromDomain(e *payment.WebhookEvent) *WebhookEventModel {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	payload := string(e.Payload)
	if payload == "" {
		payload = "{}"
	}
	return &WebhookEventModel{
		ID:         id,
		Provider:   e.Provider,
		EventKey:   e.EventKey,
		Type:       e.Type,
		Action:     e.Action,
		ExternalID: e.ExternalID,
		Payload:    payload,
		Outcome:    string(e.Outcome),
		Error:      e.Error,
		ReceivedAt: e.ReceivedAt,
	}
}

// ToDomain converts the model to a webhook event
func (m *WebhookEventModel) ToDomain() *payment.WebhookEvent {
	return &payment.WebhookEvent{
		ID:         m.ID,
		Provider:   m.Provider,
		EventKey:   m.EventKey,
		Type:       m.Type,
		Action:     m.Action,
		ExternalID: m.ExternalID,
		Payload:    []byte(m.Payload),
		Outcome:    payment.EventOutcome(m.Outcome),
		Error:      m.Error,
		ReceivedAt: m.ReceivedAt,
	}
}
