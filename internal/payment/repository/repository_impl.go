package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hormisur/backoffice/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (id, budget_id, amount, paid_amount, currency, exchange_rate,
			method, reference, status, validated_at, validated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.BudgetID,
		payment.Amount,
		payment.PaidAmount,
		payment.Currency,
		payment.ExchangeRate,
		payment.Method,
		payment.Reference,
		payment.Status,
		payment.ValidatedAt,
		payment.ValidatedBy,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, budget_id, amount, paid_amount, currency, exchange_rate,
			method, reference, status, validated_at, validated_by, created_at, updated_at
		 FROM payments WHERE id = ?`,
		id,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) ListByBudget(ctx context.Context, db *gorm.DB, budgetID snowflake.ID) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("budget_id = ?", budgetID).
		Order("created_at desc, id desc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// UpdateStatus persists the payment's status transition guarded by the
// expected previous status.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, payment *domain.Payment, from domain.PaymentStatus) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payments SET status = ?, validated_at = ?, validated_by = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		payment.Status,
		payment.ValidatedAt,
		payment.ValidatedBy,
		time.Now().UTC(),
		payment.ID,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) HasValidatedPayment(ctx context.Context, db *gorm.DB, budgetID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payments WHERE budget_id = ? AND status = ?`,
		budgetID,
		domain.PaymentStatusValidated,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
