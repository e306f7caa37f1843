// Package payment applies payment provider notifications to payments and debts.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/logger"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/telemetry"
)

// Result statuses returned to the provider
const (
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"
	StatusIgnored          = "ignored"
	StatusNotFound         = "not_found"
)

// Store gives the service its repositories. InTx runs fn against a store
// whose repositories share one transaction.
type Store interface {
	Payments() payment.Repository
	Debts() debt.Repository
	Events() payment.EventRepository
	InTx(ctx context.Context, fn func(Store) error) error
}

// WebhookResult is the body returned for a notification
type WebhookResult struct {
	Status        string `json:"status"`
	PaymentID     string `json:"payment_id,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
	DebtPaid      bool   `json:"debt_paid,omitempty"`
	Message       string `json:"message,omitempty"`
}

// WebhookServiceConfig contains the dependencies of WebhookService
type WebhookServiceConfig struct {
	Provider       payment.Provider
	Store          Store
	Idempotency    shared.IdempotencyStore
	IdempotencyTTL time.Duration
	Metrics        *telemetry.Metrics
	Logger         *zap.Logger
}

// WebhookService processes payment notifications
type WebhookService struct {
	provider payment.Provider
	store    Store
	idem     shared.IdempotencyStore
	ttl      time.Duration
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyTTL
	}
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &WebhookService{
		provider: cfg.Provider,
		store:    cfg.Store,
		idem:     cfg.Idempotency,
		ttl:      ttl,
		metrics:  cfg.Metrics,
		logger:   l,
		now:      time.Now,
	}
}

// Process applies n. raw is the body as received and is stored with the event.
// A returned error means the provider should retry; everything else is acknowledged.
func (s *WebhookService) Process(ctx context.Context, n payment.Notification, raw []byte) (*WebhookResult, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "payment.process_notification",
		attribute.String("payment.type", n.Type),
		attribute.String("payment.external_id", n.Data.ID))
	defer span.End()

	start := s.now()
	log := logger.LOr(ctx, s.logger).With(
		zap.String("type", n.Type),
		zap.String("action", n.Action),
		zap.String("external_id", n.Data.ID))

	event := &payment.WebhookEvent{
		Provider:   s.provider.Name(),
		EventKey:   n.Key(),
		Type:       n.Type,
		Action:     n.Action,
		ExternalID: n.Data.ID,
		Payload:    raw,
		ReceivedAt: start,
	}

	result, err := s.process(ctx, n, log)
	switch {
	case err != nil:
		event.Outcome = payment.OutcomeFailed
		event.Error = err.Error()
	case result.Status == StatusAlreadyProcessed:
		event.Outcome = payment.OutcomeDuplicate
	case result.Status == StatusNotFound:
		event.Outcome = payment.OutcomeNotFound
	case result.Status == StatusIgnored:
		event.Outcome = payment.OutcomeIgnored
	default:
		event.Outcome = payment.OutcomeProcessed
	}

	if recErr := s.store.Events().Create(ctx, event); recErr != nil {
		log.Error("Failed to record webhook event", zap.Error(recErr))
	}
	s.metrics.RecordNotification(ctx, event.Provider, string(event.Outcome), s.now().Sub(start))
	span.SetAttributes(telemetry.AttrOutcome.String(string(event.Outcome)))

	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("Payment notification failed", zap.Error(err))
		return nil, err
	}
	log.Info("Payment notification handled", zap.String("outcome", string(event.Outcome)))
	return result, nil
}

func (s *WebhookService) process(ctx context.Context, n payment.Notification, log *zap.Logger) (*WebhookResult, error) {
	if n.Type != payment.TypePayment {
		return &WebhookResult{Status: StatusIgnored, Message: "notification type " + n.Type + " is not handled"}, nil
	}

	key := n.Key()
	if s.idem != nil {
		fresh, err := s.idem.MarkProcessed(ctx, key, s.ttl)
		if err != nil {
			log.Warn("Idempotency store unavailable, processing anyway", zap.Error(err))
		} else if !fresh {
			return &WebhookResult{Status: StatusAlreadyProcessed}, nil
		}
	}

	result, err := s.apply(ctx, n, log)
	if err != nil && s.idem != nil {
		if ferr := s.idem.Forget(ctx, key); ferr != nil {
			log.Warn("Failed to release idempotency key", zap.Error(ferr))
		}
	}
	return result, err
}

func (s *WebhookService) apply(ctx context.Context, n payment.Notification, log *zap.Logger) (*WebhookResult, error) {
	remote, err := s.provider.FetchPayment(ctx, n.Data.ID, n)
	if errors.Is(err, shared.ErrNotFound) {
		return &WebhookResult{Status: StatusNotFound, Message: err.Error()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", n.Data.ID, err)
	}

	result := &WebhookResult{}
	err = s.store.InTx(ctx, func(tx Store) error {
		p, err := tx.Payments().FindByExternalID(ctx, s.provider.Name(), n.Data.ID)
		if errors.Is(err, shared.ErrNotFound) {
			result.Status = StatusNotFound
			result.Message = "payment " + n.Data.ID + " is not registered"
			return nil
		}
		if err != nil {
			return fmt.Errorf("find payment: %w", err)
		}
		result.PaymentID = p.ID.String()

		now := s.now()
		changed, err := p.Transition(remote.Status, now)
		if errors.Is(err, shared.ErrInvalidState) {
			log.Warn("Ignoring status change", zap.String("from", string(p.Status)), zap.String("to", string(remote.Status)))
			result.Status = StatusIgnored
			result.PaymentStatus = string(p.Status)
			result.Message = err.Error()
			return nil
		}
		if err != nil {
			return err
		}
		result.Status = StatusProcessed
		result.PaymentStatus = string(p.Status)
		if !changed {
			return nil
		}
		if err := tx.Payments().Save(ctx, p); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}

		if p.Status != payment.StatusApproved || p.DebtID == nil {
			return nil
		}
		paid, err := s.settleDebt(ctx, tx, p, remote, now, log)
		result.DebtPaid = paid
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settleDebt applies an approved payment to its debt and reports whether the debt is now paid
func (s *WebhookService) settleDebt(ctx context.Context, tx Store, p *payment.Payment, remote *payment.ProviderPayment, now time.Time, log *zap.Logger) (bool, error) {
	d, err := tx.Debts().FindByID(ctx, *p.DebtID)
	if errors.Is(err, shared.ErrNotFound) {
		log.Warn("Approved payment references a missing debt", zap.String("debt_id", p.DebtID.String()))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find debt: %w", err)
	}
	if !d.Status.IsOpen() {
		return d.Status == debt.StatusPaid, nil
	}

	amount := remote.Amount
	if !amount.IsPositive() {
		amount = p.Amount
	}
	if !amount.IsPositive() {
		return false, nil
	}
	if err := d.ApplyPayment(amount, now); err != nil {
		return false, err
	}
	if err := tx.Debts().Save(ctx, d); err != nil {
		return false, fmt.Errorf("save debt: %w", err)
	}
	log.Info("Payment applied to debt",
		zap.String("debt_id", d.ID.String()),
		zap.String("amount", amount.String()),
		zap.String("debt_status", string(d.Status)))
	return d.Status == debt.StatusPaid, nil
}
