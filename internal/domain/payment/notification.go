package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
)

// TypePayment is the only notification type that changes state
const TypePayment = "payment"

// Notification is the body a provider posts to the webhook
type Notification struct {
	Type   string           `json:"type"`
	Action string           `json:"action"`
	Data   NotificationData `json:"data"`
}

// NotificationData identifies the provider object
type NotificationData struct {
	ID string `json:"id"`
}

// UnmarshalJSON accepts data.id as a string or a number; providers differ.
func (d *NotificationData) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	id := strings.TrimSpace(string(raw.ID))
	if id == "" || id == "null" {
		d.ID = ""
		return nil
	}
	if strings.HasPrefix(id, `"`) {
		return json.Unmarshal(raw.ID, &d.ID)
	}
	var n json.Number
	if err := json.Unmarshal(raw.ID, &n); err != nil {
		return err
	}
	d.ID = n.String()
	return nil
}

// Validate checks required fields
func (n Notification) Validate() error {
	if strings.TrimSpace(n.Type) == "" {
		return shared.ErrInvalidInput.WithMessage("type is required")
	}
	if n.Type == TypePayment && strings.TrimSpace(n.Data.ID) == "" {
		return shared.ErrInvalidInput.WithMessage("data.id is required")
	}
	return nil
}

// Key identifies a delivery for deduplication
func (n Notification) Key() string {
	return n.Type + ":" + n.Action + ":" + n.Data.ID
}

// ProviderPayment is the provider's current view of a payment
type ProviderPayment struct {
	ExternalID string
	Status     Status
	Amount     decimal.Decimal
	Currency   shared.Currency
	Reference  string // our debt or payment reference, when the provider echoes it back
}

// Provider fetches authoritative payment state from the payment gateway
type Provider interface {
	Name() string
	FetchPayment(ctx context.Context, externalID string, hint Notification) (*ProviderPayment, error)
}

// EventOutcome records what the webhook did with a notification
type EventOutcome string

const (
	OutcomeProcessed EventOutcome = "processed"
	OutcomeDuplicate EventOutcome = "duplicate"
	OutcomeIgnored   EventOutcome = "ignored"
	OutcomeNotFound  EventOutcome = "not_found"
	OutcomeFailed    EventOutcome = "failed"
)

// WebhookEvent is the stored copy of a notification
type WebhookEvent struct {
	ID         uuid.UUID
	Provider   string
	EventKey   string
	Type       string
	Action     string
	ExternalID string
	Payload    []byte
	Outcome    EventOutcome
	Error      string
	ReceivedAt time.Time
}

// EventRepository stores webhook deliveries
type EventRepository interface {
	Create(ctx context.Context, e *WebhookEvent) error
}
