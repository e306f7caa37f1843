package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/email"
)

// EmailTemplateModel maps the email_templates table
type EmailTemplateModel struct {
	BaseModel
	Name     string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Subject  string `gorm:"type:varchar(255);not null"`
	HTMLBody string `gorm:"column:html_content;type:text"`
	TextBody string `gorm:"column:text_content;type:text"`
	IsActive bool   `gorm:"not null"`
}

// TableName returns the table name for the model
func (EmailTemplateModel) TableName() string {
	return "email_templates"
}

// ToDomain converts the model to a domain template
func (m *EmailTemplateModel) ToDomain() *email.Template {
	return &email.Template{
		ID:        m.ID,
		Name:      m.Name,
		Subject:   m.Subject,
		HTMLBody:  m.HTMLBody,
		TextBody:  m.TextBody,
		Active:    m.IsActive,
		UpdatedAt: m.UpdatedAt,
	}
}

// EmailLogModel maps the email_logs table
type EmailLogModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Recipient    string    `gorm:"type:varchar(255);not null;index"`
	Subject      string    `gorm:"type:varchar(255)"`
	TemplateName string    `gorm:"type:varchar(100)"`
	Status       string    `gorm:"type:varchar(20);not null"`
	MessageID    string    `gorm:"type:varchar(255)"`
	Error        string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for the model
func (EmailLogModel) TableName() string {
	return "email_logs"
}

// EmailLogModelFromDomain creates a model from a delivery log entry
func EmailLogModelFromDomain(l *email.Log) *EmailLogModel {
	id := l.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &EmailLogModel{
		ID:           id,
		Recipient:    l.Recipient,
		Subject:      l.Subject,
		TemplateName: l.TemplateName,
		Status:       string(l.Status),
		MessageID:    l.MessageID,
		Error:        l.Error,
		CreatedAt:    l.CreatedAt,
	}
}
