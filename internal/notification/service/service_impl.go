package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hormisur/backoffice/internal/clock"
	"github.com/hormisur/backoffice/internal/notification/domain"
	"github.com/hormisur/backoffice/internal/notification/liveevents"
	"github.com/hormisur/backoffice/internal/observability/metrics"
	"github.com/hormisur/backoffice/internal/providers/email"
	userdomain "github.com/hormisur/backoffice/internal/user/domain"
	"github.com/hormisur/backoffice/internal/usercontext"
	"github.com/hormisur/backoffice/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	UserSvc userdomain.Service
	Hub     *liveevents.Hub
	Email   email.Provider `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	userSvc userdomain.Service
	hub     *liveevents.Hub
	email   email.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("notification.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		userSvc: p.UserSvc,
		hub:     p.Hub,
		email:   p.Email,
	}
}

func (s *Service) Notify(ctx context.Context, tx *gorm.DB, req domain.NotifyRequest) (domain.Notification, error) {
	if req.UserID == 0 {
		return domain.Notification{}, domain.ErrInvalidUser
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return domain.Notification{}, domain.ErrInvalidMessage
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.KindGeneral
	}

	ownHandle := tx == nil
	if ownHandle {
		tx = s.db
	}

	notification := domain.Notification{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		Kind:      kind,
		Message:   message,
		BudgetID:  req.BudgetID,
		Read:      false,
		CreatedAt: s.clock.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, tx, &notification); err != nil {
		return domain.Notification{}, err
	}

	// Inside a caller transaction the row is not visible yet; announcing
	// there would leak events for writes that never commit.
	if ownHandle {
		s.Announce(notification)
	}
	return notification, nil
}

func (s *Service) Announce(notification domain.Notification) {
	metrics.Scheduler().IncNotificationQueued(string(notification.Kind), 1)
	s.publish(notification)
}

func (s *Service) BroadcastToRoles(ctx context.Context, req domain.BroadcastRequest) (int, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return 0, domain.ErrInvalidMessage
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.KindGeneral
	}

	recipients, err := s.userSvc.FindByRoles(ctx, req.Roles)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		s.log.Debug("broadcast matched no recipients",
			zap.Strings("roles", req.Roles),
		)
		return 0, nil
	}

	now := s.clock.Now().UTC()
	notifications := make([]domain.Notification, 0, len(recipients))
	for _, recipient := range recipients {
		notifications = append(notifications, domain.Notification{
			ID:        s.genID.Generate(),
			UserID:    recipient.ID,
			Kind:      kind,
			Message:   message,
			BudgetID:  req.BudgetID,
			Read:      false,
			CreatedAt: now,
		})
	}

	// Single transaction: either every recipient gets the row or none do.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range notifications {
			if err := s.repo.Insert(ctx, tx, &notifications[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.Scheduler().IncNotificationQueued(string(kind), len(notifications))
	for _, notification := range notifications {
		s.publish(notification)
	}
	s.sendEmails(ctx, recipients, message)

	return len(notifications), nil
}

func (s *Service) List(ctx context.Context, req domain.ListNotificationRequest) (domain.ListNotificationResponse, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || userID == 0 {
		return domain.ListNotificationResponse{}, domain.ErrMissingActor
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.ListByUser(ctx, s.db, userID, req.UnreadOnly, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListNotificationResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(notification *domain.Notification) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        notification.ID.String(),
			CreatedAt: notification.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	notifications := make([]domain.Notification, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		notifications = append(notifications, *item)
	}

	resp := domain.ListNotificationResponse{Notifications: notifications}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) MarkRead(ctx context.Context, req domain.MarkReadRequest) error {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || userID == 0 {
		return domain.ErrMissingActor
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.ErrInvalidID
	}

	updated, err := s.repo.MarkRead(ctx, s.db, userID, id)
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) publish(notification domain.Notification) {
	if s.hub == nil {
		return
	}
	event := liveevents.LiveEvent{
		ID:        notification.ID.String(),
		Kind:      string(notification.Kind),
		Message:   notification.Message,
		CreatedAt: notification.CreatedAt.Format(time.RFC3339),
	}
	if notification.BudgetID != nil {
		event.BudgetID = notification.BudgetID.String()
	}
	s.hub.Publish(notification.UserID.String(), event)
}

// sendEmails is best effort. A failed email never rolls back the stored
// notifications.
func (s *Service) sendEmails(ctx context.Context, recipients []userdomain.User, message string) {
	if s.email == nil {
		return
	}
	for _, recipient := range recipients {
		addr := strings.TrimSpace(recipient.Email)
		if addr == "" {
			continue
		}
		if err := s.email.Send(ctx, []string{addr}, "Aviso de Hormisur", message); err != nil {
			s.log.Warn("failed to send notification email",
				zap.String("user_id", recipient.ID.String()),
				zap.Error(err),
			)
		}
	}
}
