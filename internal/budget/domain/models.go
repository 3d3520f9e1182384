package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type BudgetStatus string

const (
	BudgetStatusPending  BudgetStatus = "PENDING"
	BudgetStatusApproved BudgetStatus = "APPROVED"
	BudgetStatusPaid     BudgetStatus = "PAID"
	BudgetStatusExpired  BudgetStatus = "EXPIRED"
)

// Budget is a quote for a concrete supply order. It stays open until it is
// paid or its validity date passes.
type Budget struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Code         string            `gorm:"not null;uniqueIndex" json:"code"`
	Title        string            `gorm:"not null" json:"title"`
	CustomerName string            `gorm:"column:customer_name;not null" json:"customer_name"`
	TotalAmount  float64           `gorm:"column:total_amount;not null" json:"total_amount"`
	Currency     string            `gorm:"not null;default:EUR" json:"currency"`
	Status       BudgetStatus      `gorm:"not null;index:idx_budgets_status_valid_until" json:"status"`
	ValidUntil   time.Time         `gorm:"column:valid_until;not null;index:idx_budgets_status_valid_until" json:"valid_until"`
	CreatorID    snowflake.ID      `gorm:"column:creator_id;not null;index" json:"creator_id"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (s BudgetStatus) Valid() bool {
	switch s {
	case BudgetStatusPending, BudgetStatusApproved, BudgetStatusPaid, BudgetStatusExpired:
		return true
	default:
		return false
	}
}

// Open reports whether the budget can still expire.
func (s BudgetStatus) Open() bool {
	return s == BudgetStatusPending || s == BudgetStatusApproved
}
