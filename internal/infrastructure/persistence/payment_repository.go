package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence/models"
)

// GormPaymentRepository implements payment.Repository
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new payment repository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: tx}
}

// FindByExternalID finds the payment a provider knows as externalID
func (r *GormPaymentRepository) FindByExternalID(ctx context.Context, provider, externalID string) (*payment.Payment, error) {
	var model models.PaymentModel
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&model).Error
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return model.ToDomain(), nil
}

// Save updates an existing payment or inserts a new one
func (r *GormPaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	model := models.PaymentModelFromDomain(p)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return err
	}
	p.ID = model.ID
	p.CreatedAt = model.CreatedAt
	p.UpdatedAt = model.UpdatedAt
	return nil
}

// GormWebhookEventRepository implements payment.EventRepository
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGormWebhookEventRepository creates a new webhook event repository
func NewGormWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// Create stores a webhook delivery
func (r *GormWebhookEventRepository) Create(ctx context.Context, e *payment.WebhookEvent) error {
	model := models.WebhookEventModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	e.ID = model.ID
	return nil
}

// ListByKey returns the deliveries recorded for an event key, oldest first
func (r *GormWebhookEventRepository) ListByKey(ctx context.Context, key string) ([]*payment.WebhookEvent, error) {
	var rows []models.WebhookEventModel
	if err := r.db.WithContext(ctx).Where("event_key = ?", key).Order("received_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*payment.WebhookEvent, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}
