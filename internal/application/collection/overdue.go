// Package collection holds the periodic jobs that keep the debt portfolio current.
package collection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/telemetry"
)

// OverdueStatuses are the statuses a debt leaves when its due date passes.
// Debts under a payment agreement keep their status.
var OverdueStatuses = []debt.Status{debt.StatusPending, debt.StatusNegotiating}

// OverdueRepository flips debts due before asOf to overdue
type OverdueRepository interface {
	MarkOverdue(ctx context.Context, asOf time.Time, from []debt.Status) (int64, error)
}

// OverdueMarker marks debts whose due date has passed
type OverdueMarker struct {
	repo   OverdueRepository
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewOverdueMarker creates a marker that evaluates due dates in loc
func NewOverdueMarker(repo OverdueRepository, loc *time.Location, logger *zap.Logger) *OverdueMarker {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueMarker{repo: repo, logger: logger, loc: loc, now: time.Now}
}

// Run marks every debt due before today. It has the scheduler.Job signature.
func (m *OverdueMarker) Run(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "collection.mark_overdue")
	defer span.End()

	now := m.now().In(m.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.loc)

	n, err := m.repo.MarkOverdue(ctx, today, OverdueStatuses)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("mark overdue debts: %w", err)
	}
	m.logger.Info("Overdue debts marked", zap.Int64("debts", n), zap.Time("due_before", today))
	return nil
}
