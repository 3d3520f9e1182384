package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hormisur/backoffice/internal/audit/domain"
	budgetdomain "github.com/hormisur/backoffice/internal/budget/domain"
	"github.com/hormisur/backoffice/internal/clock"
	notificationdomain "github.com/hormisur/backoffice/internal/notification/domain"
	"github.com/hormisur/backoffice/internal/payment/domain"
	"github.com/hormisur/backoffice/internal/usercontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            domain.Repository
	BudgetRepo      budgetdomain.Repository
	AuditSvc        auditdomain.Service        `optional:"true"`
	NotificationSvc notificationdomain.Service `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            domain.Repository
	budgetRepo      budgetdomain.Repository
	auditSvc        auditdomain.Service
	notificationSvc notificationdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		budgetRepo:      p.BudgetRepo,
		auditSvc:        p.AuditSvc,
		notificationSvc: p.NotificationSvc,
	}
}

func (s *Service) Submit(ctx context.Context, req domain.SubmitPaymentRequest) (domain.Payment, error) {
	budgetID, err := s.parseID(req.BudgetID)
	if err != nil {
		return domain.Payment{}, err
	}
	if req.Amount <= 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return domain.Payment{}, domain.ErrInvalidMethod
	}

	budget, err := s.budgetRepo.FindByID(ctx, s.db, budgetID)
	if err != nil {
		return domain.Payment{}, err
	}
	if budget == nil {
		return domain.Payment{}, domain.ErrBudgetNotFound
	}
	if !budget.Status.Open() {
		return domain.Payment{}, domain.ErrBudgetClosed
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = budget.Currency
	}
	paidAmount := req.PaidAmount
	if paidAmount < 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	if paidAmount == 0 {
		paidAmount = req.Amount
	}
	exchangeRate := req.ExchangeRate
	if exchangeRate <= 0 {
		exchangeRate = 1
	}

	now := s.clock.Now().UTC()
	payment := domain.Payment{
		ID:           s.genID.Generate(),
		BudgetID:     budgetID,
		Amount:       req.Amount,
		PaidAmount:   paidAmount,
		Currency:     currency,
		ExchangeRate: exchangeRate,
		Method:       method,
		Reference:    strings.TrimSpace(req.Reference),
		Status:       domain.PaymentStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return domain.Payment{}, err
	}

	if s.auditSvc != nil {
		paymentID := payment.ID.String()
		_ = s.auditSvc.AuditLog(ctx, "", nil, "payment.submitted", "payment", &paymentID, map[string]any{
			"budget_id": budgetID.String(),
			"amount":    payment.Amount,
			"method":    payment.Method,
		})
	}

	return payment, nil
}

// Validate marks the payment as validated and moves its budget to PAID in
// the same transaction, so a paid budget can never be left behind with a
// validated payment.
func (s *Service) Validate(ctx context.Context, req domain.ValidatePaymentRequest) (domain.Payment, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Payment{}, err
	}

	validatorID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || validatorID == 0 {
		return domain.Payment{}, domain.ErrMissingValidator
	}

	var payment *domain.Payment
	var budgetCode string
	var creatorID snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrNotFound
		}
		if found.Status != domain.PaymentStatusPending {
			return domain.ErrNotPending
		}

		now := s.clock.Now().UTC()
		found.Status = domain.PaymentStatusValidated
		found.ValidatedAt = &now
		found.ValidatedBy = &validatorID

		updated, err := s.repo.UpdateStatus(ctx, tx, found, domain.PaymentStatusPending)
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrNotPending
		}

		budget, err := s.budgetRepo.FindByID(ctx, tx, found.BudgetID)
		if err != nil {
			return err
		}
		if budget == nil {
			return domain.ErrBudgetNotFound
		}
		if budget.Status.Open() {
			if _, err := s.budgetRepo.UpdateStatus(ctx, tx, budget.ID, budget.Status, budgetdomain.BudgetStatusPaid); err != nil {
				return err
			}
		}

		budgetCode = budget.Code
		creatorID = budget.CreatorID
		payment = found
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	if s.auditSvc != nil {
		paymentID := payment.ID.String()
		validatorStr := validatorID.String()
		_ = s.auditSvc.AuditLog(ctx, "user", &validatorStr, "payment.validated", "payment", &paymentID, map[string]any{
			"budget_id": payment.BudgetID.String(),
			"amount":    payment.Amount,
		})
	}

	// The creator hears about the validated payment only once the
	// transaction is committed; a failed notification never undoes it.
	if s.notificationSvc != nil && creatorID != 0 {
		budgetID := payment.BudgetID
		if _, err := s.notificationSvc.Notify(ctx, nil, notificationdomain.NotifyRequest{
			UserID:   creatorID,
			Kind:     notificationdomain.KindPaymentValidated,
			Message:  fmt.Sprintf("El pago del presupuesto %s ha sido validado. El presupuesto queda PAGADO.", budgetCode),
			BudgetID: &budgetID,
		}); err != nil {
			s.log.Warn("failed to notify budget creator",
				zap.String("budget_id", payment.BudgetID.String()),
				zap.Error(err),
			)
		}
	}

	s.log.Info("payment validated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("budget_id", payment.BudgetID.String()),
	)
	return *payment, nil
}

func (s *Service) Reject(ctx context.Context, req domain.RejectPaymentRequest) (domain.Payment, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Payment{}, err
	}

	found, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if found == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	if found.Status != domain.PaymentStatusPending {
		return domain.Payment{}, domain.ErrNotPending
	}

	found.Status = domain.PaymentStatusRejected
	updated, err := s.repo.UpdateStatus(ctx, s.db, found, domain.PaymentStatusPending)
	if err != nil {
		return domain.Payment{}, err
	}
	if !updated {
		return domain.Payment{}, domain.ErrNotPending
	}

	if s.auditSvc != nil {
		paymentID := found.ID.String()
		_ = s.auditSvc.AuditLog(ctx, "", nil, "payment.rejected", "payment", &paymentID, map[string]any{
			"budget_id": found.BudgetID.String(),
		})
	}

	return *found, nil
}

func (s *Service) ListByBudget(ctx context.Context, req domain.ListPaymentRequest) (domain.ListPaymentResponse, error) {
	budgetID, err := s.parseID(req.BudgetID)
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}

	items, err := s.repo.ListByBudget(ctx, s.db, budgetID)
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}

	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}
	return domain.ListPaymentResponse{Payments: payments}, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
