package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	budgetdomain "github.com/hormisur/backoffice/internal/budget/domain"
	notificationdomain "github.com/hormisur/backoffice/internal/notification/domain"
	obsmetrics "github.com/hormisur/backoffice/internal/observability/metrics"
	paymentdomain "github.com/hormisur/backoffice/internal/payment/domain"
	"gorm.io/gorm"
)

type WorkBudget struct {
	ID           snowflake.ID
	Code         string
	Title        string
	CustomerName string
	Status       budgetdomain.BudgetStatus
	ValidUntil   time.Time
	CreatorID    snowflake.ID
}

// fetchBudgetsExpiringInWindow pages by id because the warning pass does not
// change budget state, so a plain refetch would return the same rows.
func (s *Scheduler) fetchBudgetsExpiringInWindow(ctx context.Context, tx *gorm.DB, windowStart, windowEnd time.Time, afterID snowflake.ID, limit int) ([]WorkBudget, error) {
	if limit <= 0 {
		limit = s.cfg.WarnBatchSize
	}
	var budgets []WorkBudget
	schedMetrics := obsmetrics.Scheduler()
	lockStart := time.Now()
	err := tx.WithContext(ctx).Raw(
		`SELECT id, code, title, customer_name, status, valid_until, creator_id
		 FROM budgets
		 WHERE status IN (?, ?)
		   AND valid_until >= ?
		   AND valid_until < ?
		   AND id > ?
		 ORDER BY id ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		budgetdomain.BudgetStatusPending,
		budgetdomain.BudgetStatusApproved,
		windowStart,
		windowEnd,
		afterID,
		limit,
	).Scan(&budgets).Error
	schedMetrics.ObserveDBLockWait(obsmetrics.LockResourceBudgetsForWarning, time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	return budgets, nil
}

// fetchBudgetsForExpiry claims open budgets past their deadline that hold no
// validated payment. The payment check is repeated inside expireBudgetTx
// because a payment can be validated between claim and transition.
func (s *Scheduler) fetchBudgetsForExpiry(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]WorkBudget, error) {
	if limit <= 0 {
		limit = s.cfg.ExpireBatchSize
	}
	var budgets []WorkBudget
	schedMetrics := obsmetrics.Scheduler()
	lockStart := time.Now()
	err := tx.WithContext(ctx).Raw(
		`SELECT b.id, b.code, b.title, b.customer_name, b.status, b.valid_until, b.creator_id
		 FROM budgets b
		 WHERE b.status IN (?, ?)
		   AND b.valid_until < ?
		   AND NOT EXISTS (
			   SELECT 1 FROM payments p
			   WHERE p.budget_id = b.id
				 AND p.status = ?
		   )
		 ORDER BY b.valid_until ASC, b.id ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		budgetdomain.BudgetStatusPending,
		budgetdomain.BudgetStatusApproved,
		now,
		paymentdomain.PaymentStatusValidated,
		limit,
	).Scan(&budgets).Error
	schedMetrics.ObserveDBLockWait(obsmetrics.LockResourceBudgetsForExpiry, time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	return budgets, nil
}

// expireBudgetTx moves one budget to EXPIRED and stores the cancellation
// notice for its creator in the same transaction. The guarded UPDATE makes
// the transition idempotent under concurrent evaluators.
func (s *Scheduler) expireBudgetTx(ctx context.Context, budget WorkBudget, now time.Time, message string) (bool, error) {
	var expired bool
	var stored notificationdomain.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hasPayment, err := s.paymentRepo.HasValidatedPayment(ctx, tx, budget.ID)
		if err != nil {
			return err
		}
		if hasPayment {
			return nil
		}

		result := tx.Exec(
			`UPDATE budgets
			 SET status = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			budgetdomain.BudgetStatusExpired,
			now.UTC(),
			budget.ID,
			budget.Status,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		budgetID := budget.ID
		notification, err := s.notificationSvc.Notify(ctx, tx, notificationdomain.NotifyRequest{
			UserID:   budget.CreatorID,
			Kind:     notificationdomain.KindExpired,
			Message:  message,
			BudgetID: &budgetID,
		})
		if err != nil {
			return err
		}

		stored = notification
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		// Subscribers only hear about the cancellation once it is durable.
		s.notificationSvc.Announce(stored)
		obsmetrics.Scheduler().IncBudgetTransition(string(budget.Status), string(budgetdomain.BudgetStatusExpired))
	}
	return expired, nil
}
