package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/email"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence/models"
)

// GormEmailTemplateRepository implements email.TemplateRepository
type GormEmailTemplateRepository struct {
	db *gorm.DB
}

// NewGormEmailTemplateRepository creates a new template repository
func NewGormEmailTemplateRepository(db *gorm.DB) *GormEmailTemplateRepository {
	return &GormEmailTemplateRepository{db: db}
}

// FindActiveByName returns the active template called name
func (r *GormEmailTemplateRepository) FindActiveByName(ctx context.Context, name string) (*email.Template, error) {
	var model models.EmailTemplateModel
	err := r.db.WithContext(ctx).
		Where("name = ? AND is_active = ?", name, true).
		First(&model).Error
	if err != nil {
		return nil, notFound(err, "email template "+name)
	}
	return model.ToDomain(), nil
}

// GormEmailLogRepository implements email.LogRepository
type GormEmailLogRepository struct {
	db *gorm.DB
}

// NewGormEmailLogRepository creates a new email log repository
func NewGormEmailLogRepository(db *gorm.DB) *GormEmailLogRepository {
	return &GormEmailLogRepository{db: db}
}

// Create stores a delivery attempt
func (r *GormEmailLogRepository) Create(ctx context.Context, l *email.Log) error {
	model := models.EmailLogModelFromDomain(l)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	l.ID = model.ID
	return nil
}
