package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusValidated PaymentStatus = "VALIDATED"
	PaymentStatusRejected  PaymentStatus = "REJECTED"
)

// Payment records money received against a budget. A budget is only
// considered paid once one of its payments has been validated.
type Payment struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	BudgetID     snowflake.ID  `gorm:"column:budget_id;not null;index" json:"budget_id"`
	Amount       float64       `gorm:"not null" json:"amount"`
	PaidAmount   float64       `gorm:"column:paid_amount;not null;default:0" json:"paid_amount"`
	Currency     string        `gorm:"not null;default:EUR" json:"currency"`
	ExchangeRate float64       `gorm:"column:exchange_rate;not null;default:1" json:"exchange_rate"`
	Method       string        `gorm:"not null" json:"method"`
	Reference    string        `gorm:"column:reference" json:"reference,omitempty"`
	Status       PaymentStatus `gorm:"not null" json:"status"`
	ValidatedAt  *time.Time    `gorm:"column:validated_at" json:"validated_at,omitempty"`
	ValidatedBy  *snowflake.ID `gorm:"column:validated_by" json:"validated_by,omitempty"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}
