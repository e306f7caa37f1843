package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
)

// DebtModel maps the debts table
type DebtModel struct {
	BaseModel
	UserID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	CompanyID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Reference      string          `gorm:"type:varchar(100)"`
	OriginalAmount decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	CurrentAmount  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	Status         string          `gorm:"type:varchar(20);not null;index"`
	DueDate        *time.Time
}

// TableName returns the table name for the model
func (DebtModel) TableName() string {
	return "debts"
}

// ToDomain converts the model to a domain debt
func (m *DebtModel) ToDomain() *debt.Debt {
	return &debt.Debt{
		ID:             m.ID,
		UserID:         m.UserID,
		CompanyID:      m.CompanyID,
		Reference:      m.Reference,
		OriginalAmount: m.OriginalAmount,
		CurrentAmount:  m.CurrentAmount,
		Currency:       shared.Currency(m.Currency),
		Status:         debt.Status(m.Status),
		DueDate:        m.DueDate,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// DebtModelFromDomain creates a model from a domain debt
func DebtModelFromDomain(d *debt.Debt) *DebtModel {
	return &DebtModel{
		BaseModel: BaseModel{
			ID:        d.ID,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		UserID:         d.UserID,
		CompanyID:      d.CompanyID,
		Reference:      d.Reference,
		OriginalAmount: d.OriginalAmount,
		CurrentAmount:  d.CurrentAmount,
		Currency:       string(d.Currency),
		Status:         string(d.Status),
		DueDate:        d.DueDate,
	}
}

// UserModel maps the columns of users that debt listings join on
type UserModel struct {
	BaseModel
	FullName string `gorm:"type:varchar(200)"`
	Email    string `gorm:"type:varchar(255);uniqueIndex"`
}

// TableName returns the table name for the model
func (UserModel) TableName() string {
	return "users"
}

// CompanyModel maps the columns of companies that debt listings join on
type CompanyModel struct {
	BaseModel
	BusinessName string `gorm:"type:varchar(200)"`
}

// TableName returns the table name for the model
func (CompanyModel) TableName() string {
	return "companies"
}
