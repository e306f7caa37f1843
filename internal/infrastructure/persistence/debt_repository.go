package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/persistence/models"
)

// MaxDebtListLimit caps a single listing or export
const MaxDebtListLimit = 10000

// debtRow is a debt joined with its debtor and company names
type debtRow struct {
	models.DebtModel
	DebtorName  string
	DebtorEmail string
	CompanyName string
}

func (r *debtRow) toDomain() *debt.Debt {
	d := r.DebtModel.ToDomain()
	d.DebtorName = r.DebtorName
	d.DebtorEmail = r.DebtorEmail
	d.CompanyName = r.CompanyName
	return d
}

// GormDebtRepository implements debt.Repository
type GormDebtRepository struct {
	db *gorm.DB
}

// NewGormDebtRepository creates a new debt repository
func NewGormDebtRepository(db *gorm.DB) *GormDebtRepository {
	return &GormDebtRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormDebtRepository) WithTx(tx *gorm.DB) *GormDebtRepository {
	return &GormDebtRepository{db: tx}
}

func (r *GormDebtRepository) joined(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("debts").
		Select("debts.*, users.full_name AS debtor_name, users.email AS debtor_email, companies.business_name AS company_name").
		Joins("LEFT JOIN users ON users.id = debts.user_id").
		Joins("LEFT JOIN companies ON companies.id = debts.company_id")
}

// FindByID loads a debt with its debtor and company names
func (r *GormDebtRepository) FindByID(ctx context.Context, id uuid.UUID) (*debt.Debt, error) {
	var row debtRow
	if err := r.joined(ctx).Where("debts.id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, "debt")
	}
	return row.toDomain(), nil
}

// List returns debts matching filter, newest first
func (r *GormDebtRepository) List(ctx context.Context, filter debt.Filter) ([]debt.Debt, error) {
	q := r.joined(ctx)
	if filter.Status != "" {
		q = q.Where("debts.status = ?", string(filter.Status))
	}
	if filter.CompanyID != nil {
		q = q.Where("debts.company_id = ?", *filter.CompanyID)
	}
	if filter.UserID != nil {
		q = q.Where("debts.user_id = ?", *filter.UserID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > MaxDebtListLimit {
		limit = MaxDebtListLimit
	}

	var rows []debtRow
	if err := q.Order("debts.created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]debt.Debt, len(rows))
	for i := range rows {
		out[i] = *rows[i].toDomain()
	}
	return out, nil
}

// TotalsByStatus counts debts and sums their outstanding balance per status
func (r *GormDebtRepository) TotalsByStatus(ctx context.Context) ([]debt.StatusTotal, error) {
	var rows []struct {
		Status string
		Count  int64
		Amount decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Table("debts").
		Select("status, COUNT(*) AS count, COALESCE(SUM(current_amount), 0) AS amount").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]debt.StatusTotal, len(rows))
	for i, row := range rows {
		out[i] = debt.StatusTotal{Status: debt.Status(row.Status), Count: row.Count, Amount: row.Amount}
	}
	return out, nil
}

// MarkOverdue moves debts in one of the from statuses with a due date before asOf to overdue
func (r *GormDebtRepository) MarkOverdue(ctx context.Context, asOf time.Time, from []debt.Status) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	res := r.db.WithContext(ctx).
		Model(&models.DebtModel{}).
		Where("status IN ? AND due_date IS NOT NULL AND due_date < ?", statuses, asOf).
		Updates(map[string]any{"status": string(debt.StatusOverdue), "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// Save updates an existing debt or inserts a new one
func (r *GormDebtRepository) Save(ctx context.Context, d *debt.Debt) error {
	model := models.DebtModelFromDomain(d)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return err
	}
	d.ID = model.ID
	d.CreatedAt = model.CreatedAt
	d.UpdatedAt = model.UpdatedAt
	return nil
}
