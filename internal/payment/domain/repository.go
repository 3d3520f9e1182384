package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	ListByBudget(ctx context.Context, db *gorm.DB, budgetID snowflake.ID) ([]*Payment, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, payment *Payment, from PaymentStatus) (bool, error)
	HasValidatedPayment(ctx context.Context, db *gorm.DB, budgetID snowflake.ID) (bool, error)
}
