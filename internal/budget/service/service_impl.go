package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hormisur/backoffice/internal/audit/domain"
	"github.com/hormisur/backoffice/internal/budget/domain"
	"github.com/hormisur/backoffice/internal/clock"
	"github.com/hormisur/backoffice/internal/usercontext"
	"github.com/hormisur/backoffice/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("budget.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateBudgetRequest) (domain.Budget, error) {
	creatorID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || creatorID == 0 {
		return domain.Budget{}, domain.ErrMissingActor
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Budget{}, domain.ErrInvalidTitle
	}
	customerName := strings.TrimSpace(req.CustomerName)
	if customerName == "" {
		return domain.Budget{}, domain.ErrInvalidCustomer
	}
	if req.TotalAmount <= 0 {
		return domain.Budget{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now().UTC()
	if req.ValidUntil.IsZero() || !req.ValidUntil.After(now) {
		return domain.Budget{}, domain.ErrInvalidValidUntil
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}

	id := s.genID.Generate()
	budget := domain.Budget{
		ID:           id,
		Code:         fmt.Sprintf("PRE-%s", id.String()),
		Title:        title,
		CustomerName: customerName,
		TotalAmount:  req.TotalAmount,
		Currency:     currency,
		Status:       domain.BudgetStatusPending,
		ValidUntil:   req.ValidUntil.UTC(),
		CreatorID:    creatorID,
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &budget); err != nil {
		return domain.Budget{}, err
	}

	if s.auditSvc != nil {
		budgetID := budget.ID.String()
		_ = s.auditSvc.AuditLog(ctx, "", nil, "budget.created", "budget", &budgetID, map[string]any{
			"code":        budget.Code,
			"customer":    budget.CustomerName,
			"amount":      budget.TotalAmount,
			"valid_until": budget.ValidUntil.Format(time.RFC3339),
		})
	}

	return budget, nil
}

func (s *Service) List(ctx context.Context, req domain.ListBudgetRequest) (domain.ListBudgetResponse, error) {
	filter := domain.ListBudgetFilter{
		CustomerName: strings.TrimSpace(req.CustomerName),
	}
	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		if !domain.BudgetStatus(status).Valid() {
			return domain.ListBudgetResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = domain.BudgetStatus(status)
	}
	if creator := strings.TrimSpace(req.CreatorID); creator != "" {
		id, err := snowflake.ParseString(creator)
		if err != nil || id == 0 {
			return domain.ListBudgetResponse{}, domain.ErrInvalidID
		}
		filter.CreatorID = id
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListBudgetResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(budget *domain.Budget) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        budget.ID.String(),
			CreatedAt: budget.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	budgets := make([]domain.Budget, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		budgets = append(budgets, *item)
	}

	resp := domain.ListBudgetResponse{Budgets: budgets}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetBudgetRequest) (domain.Budget, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Budget{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Budget{}, err
	}
	if item == nil {
		return domain.Budget{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Approve(ctx context.Context, req domain.ApproveBudgetRequest) (domain.Budget, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Budget{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Budget{}, err
	}
	if item == nil {
		return domain.Budget{}, domain.ErrNotFound
	}

	updated, err := s.repo.UpdateStatus(ctx, s.db, id, domain.BudgetStatusPending, domain.BudgetStatusApproved)
	if err != nil {
		return domain.Budget{}, err
	}
	if !updated {
		return domain.Budget{}, domain.ErrNotPending
	}

	item.Status = domain.BudgetStatusApproved

	if s.auditSvc != nil {
		budgetID := id.String()
		_ = s.auditSvc.AuditLog(ctx, "", nil, "budget.approved", "budget", &budgetID, map[string]any{
			"code": item.Code,
		})
	}

	s.log.Info("budget approved",
		zap.String("budget_id", id.String()),
		zap.String("code", item.Code),
	)
	return *item, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
