package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type NotificationKind string

const (
	KindExpiryWarning    NotificationKind = "EXPIRY_WARNING"
	KindExpired          NotificationKind = "EXPIRED"
	KindPaymentValidated NotificationKind = "PAYMENT_VALIDATED"
	KindGeneral          NotificationKind = "GENERAL"
)

// Notification is an in-app message delivered to one user.
type Notification struct {
	ID        snowflake.ID     `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID     `gorm:"column:user_id;not null;index:idx_notifications_user_created" json:"user_id"`
	Kind      NotificationKind `gorm:"not null;default:GENERAL" json:"kind"`
	Message   string           `gorm:"not null" json:"message"`
	BudgetID  *snowflake.ID    `gorm:"column:budget_id" json:"budget_id,omitempty"`
	Read      bool             `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_notifications_user_created" json:"created_at"`
}
