package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/hormisur/backoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

type NotifyRequest struct {
	UserID   snowflake.ID
	Kind     NotificationKind
	Message  string
	BudgetID *snowflake.ID
}

type BroadcastRequest struct {
	Roles    []string
	Kind     NotificationKind
	Message  string
	BudgetID *snowflake.ID
}

type ListNotificationRequest struct {
	PageToken  string
	PageSize   int
	UnreadOnly bool
}

type ListNotificationResponse struct {
	pagination.PageInfo
	Notifications []Notification `json:"notifications"`
}

type MarkReadRequest struct {
	ID string
}

type Service interface {
	// Notify persists one notification using the given handle, so callers
	// can enqueue it inside their own transaction. With a nil handle the
	// row is written and announced immediately; callers supplying their
	// own transaction call Announce once it commits.
	Notify(ctx context.Context, tx *gorm.DB, req NotifyRequest) (Notification, error)

	// Announce pushes an already stored notification to live subscribers.
	Announce(notification Notification)

	// BroadcastToRoles delivers the message to every user holding any of
	// the roles. All rows are written in one transaction; zero recipients
	// is a no-op, not an error.
	BroadcastToRoles(ctx context.Context, req BroadcastRequest) (int, error)

	List(ctx context.Context, req ListNotificationRequest) (ListNotificationResponse, error)
	MarkRead(ctx context.Context, req MarkReadRequest) error
}

var (
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidMessage = errors.New("invalid_message")
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("not_found")
	ErrMissingActor   = errors.New("missing_actor")
)
