package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hormisur/backoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListBudgetFilter struct {
	Status       BudgetStatus
	CreatorID    snowflake.ID
	CustomerName string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, budget *Budget) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Budget, error)
	List(ctx context.Context, db *gorm.DB, filter ListBudgetFilter, page pagination.Pagination) ([]*Budget, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to BudgetStatus) (bool, error)
}
