package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hormisur/backoffice/internal/budget/domain"
	"github.com/hormisur/backoffice/pkg/db/option"
	"github.com/hormisur/backoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, budget *domain.Budget) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO budgets (id, code, title, customer_name, total_amount, currency, status,
			valid_until, creator_id, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		budget.ID,
		budget.Code,
		budget.Title,
		budget.CustomerName,
		budget.TotalAmount,
		budget.Currency,
		budget.Status,
		budget.ValidUntil,
		budget.CreatorID,
		budget.Metadata,
		budget.CreatedAt,
		budget.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Budget, error) {
	var budget domain.Budget
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, title, customer_name, total_amount, currency, status,
			valid_until, creator_id, metadata, created_at, updated_at
		 FROM budgets WHERE id = ?`,
		id,
	).Scan(&budget).Error
	if err != nil {
		return nil, err
	}
	if budget.ID == 0 {
		return nil, nil
	}
	return &budget, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListBudgetFilter, page pagination.Pagination) ([]*domain.Budget, error) {
	var budgets []*domain.Budget
	stmt := db.WithContext(ctx).Model(&domain.Budget{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CreatorID != 0 {
		stmt = stmt.Where("creator_id = ?", filter.CreatorID)
	}
	if name := strings.TrimSpace(filter.CustomerName); name != "" {
		stmt = stmt.Where("customer_name = ?", name)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&budgets).Error
	if err != nil {
		return nil, err
	}
	return budgets, nil
}

// UpdateStatus moves the budget from one status to another only if it still
// holds the expected status. The rows affected guard keeps transitions safe
// under concurrent writers.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.BudgetStatus) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE budgets SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC(),
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
