package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	budgetdomain "github.com/hormisur/backoffice/internal/budget/domain"
	budgetrepo "github.com/hormisur/backoffice/internal/budget/repository"
	"github.com/hormisur/backoffice/internal/clock"
	notificationdomain "github.com/hormisur/backoffice/internal/notification/domain"
	"github.com/hormisur/backoffice/internal/notification/liveevents"
	notificationrepo "github.com/hormisur/backoffice/internal/notification/repository"
	notificationservice "github.com/hormisur/backoffice/internal/notification/service"
	"github.com/hormisur/backoffice/internal/payment/domain"
	paymentrepo "github.com/hormisur/backoffice/internal/payment/repository"
	paymentservice "github.com/hormisur/backoffice/internal/payment/service"
	"github.com/hormisur/backoffice/internal/seed"
	userdomain "github.com/hormisur/backoffice/internal/user/domain"
	"github.com/hormisur/backoffice/internal/usercontext"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type noopUserSvc struct{}

func (noopUserSvc) Create(context.Context, userdomain.CreateUserRequest) (userdomain.User, error) {
	return userdomain.User{}, nil
}

func (noopUserSvc) List(context.Context, userdomain.ListUserRequest) (userdomain.ListUserResponse, error) {
	return userdomain.ListUserResponse{}, nil
}

func (noopUserSvc) GetByID(context.Context, userdomain.GetUserRequest) (userdomain.User, error) {
	return userdomain.User{}, userdomain.ErrNotFound
}

func (noopUserSvc) AssignRole(context.Context, userdomain.AssignRoleRequest) error {
	return nil
}

func (noopUserSvc) FindByRoles(context.Context, []string) ([]userdomain.User, error) {
	return nil, nil
}

func (noopUserSvc) VerifyCredentials(context.Context, string, string) (userdomain.User, error) {
	return userdomain.User{}, userdomain.ErrInvalidCredentials
}

type paymentFixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	hub   *liveevents.Hub
	svc   domain.Service
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := seed.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	hub := liveevents.NewHub()
	notificationSvc := notificationservice.New(notificationservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fakeClock,
		Repo:    notificationrepo.Provide(),
		UserSvc: noopUserSvc{},
		Hub:     hub,
	})

	svc := paymentservice.New(paymentservice.Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           fakeClock,
		Repo:            paymentrepo.Provide(),
		BudgetRepo:      budgetrepo.Provide(),
		NotificationSvc: notificationSvc,
	})

	return &paymentFixture{db: db, node: node, clock: fakeClock, hub: hub, svc: svc}
}

func (f *paymentFixture) seedBudget(t *testing.T, status budgetdomain.BudgetStatus) budgetdomain.Budget {
	t.Helper()
	now := f.clock.Now()
	id := f.node.Generate()
	budget := budgetdomain.Budget{
		ID:           id,
		Code:         "PRE-" + id.String(),
		Title:        "Bombeo de hormigón",
		CustomerName: "Obras Miranda",
		TotalAmount:  920.00,
		Currency:     "EUR",
		Status:       status,
		ValidUntil:   now.Add(72 * time.Hour),
		CreatorID:    f.node.Generate(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.db.Create(&budget).Error; err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	return budget
}

func (f *paymentFixture) budgetStatus(t *testing.T, id snowflake.ID) budgetdomain.BudgetStatus {
	t.Helper()
	var status string
	if err := f.db.Raw(`SELECT status FROM budgets WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("load budget status: %v", err)
	}
	return budgetdomain.BudgetStatus(status)
}

func TestSubmitCreatesPendingPayment(t *testing.T) {
	f := newPaymentFixture(t)
	budget := f.seedBudget(t, budgetdomain.BudgetStatusApproved)

	payment, err := f.svc.Submit(context.Background(), domain.SubmitPaymentRequest{
		BudgetID: budget.ID.String(),
		Amount:   920.00,
		Method:   "transferencia",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected PENDING, got %s", payment.Status)
	}
	if payment.Currency != "EUR" {
		t.Fatalf("currency must default to the budget's, got %s", payment.Currency)
	}
	if payment.PaidAmount != payment.Amount {
		t.Fatalf("paid amount must default to the amount, got %v", payment.PaidAmount)
	}
	if payment.ExchangeRate != 1 {
		t.Fatalf("exchange rate must default to 1, got %v", payment.ExchangeRate)
	}
}

func TestSubmitRejectsClosedBudget(t *testing.T) {
	f := newPaymentFixture(t)
	budget := f.seedBudget(t, budgetdomain.BudgetStatusExpired)

	_, err := f.svc.Submit(context.Background(), domain.SubmitPaymentRequest{
		BudgetID: budget.ID.String(),
		Amount:   500.00,
		Method:   "efectivo",
	})
	if !errors.Is(err, domain.ErrBudgetClosed) {
		t.Fatalf("expected ErrBudgetClosed, got %v", err)
	}
}

func TestValidateMarksBudgetPaidInSameTransaction(t *testing.T) {
	f := newPaymentFixture(t)
	budget := f.seedBudget(t, budgetdomain.BudgetStatusApproved)

	payment, err := f.svc.Submit(context.Background(), domain.SubmitPaymentRequest{
		BudgetID: budget.ID.String(),
		Amount:   920.00,
		Method:   "transferencia",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	validator := f.node.Generate()
	ctx := usercontext.WithUserID(context.Background(), validator)
	validated, err := f.svc.Validate(ctx, domain.ValidatePaymentRequest{ID: payment.ID.String()})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if validated.Status != domain.PaymentStatusValidated {
		t.Fatalf("expected VALIDATED, got %s", validated.Status)
	}
	if validated.ValidatedBy == nil || *validated.ValidatedBy != validator {
		t.Fatalf("expected validator %s recorded, got %v", validator, validated.ValidatedBy)
	}
	if validated.ValidatedAt == nil {
		t.Fatalf("expected validation timestamp")
	}
	if got := f.budgetStatus(t, budget.ID); got != budgetdomain.BudgetStatusPaid {
		t.Fatalf("expected budget PAID, got %s", got)
	}
}

func TestValidateNotifiesBudgetCreator(t *testing.T) {
	f := newPaymentFixture(t)
	budget := f.seedBudget(t, budgetdomain.BudgetStatusApproved)

	sub, _, err := f.hub.Subscribe(budget.CreatorID.String())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	payment, err := f.svc.Submit(context.Background(), domain.SubmitPaymentRequest{
		BudgetID: budget.ID.String(),
		Amount:   920.00,
		Method:   "transferencia",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx := usercontext.WithUserID(context.Background(), f.node.Generate())
	if _, err := f.svc.Validate(ctx, domain.ValidatePaymentRequest{ID: payment.ID.String()}); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var rows []notificationdomain.Notification
	if err := f.db.Raw(`SELECT * FROM notifications WHERE user_id = ?`, budget.CreatorID).Scan(&rows).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 notification for the creator, got %d", len(rows))
	}
	if rows[0].Kind != notificationdomain.KindPaymentValidated {
		t.Fatalf("expected kind %s, got %s", notificationdomain.KindPaymentValidated, rows[0].Kind)
	}
	if !strings.Contains(rows[0].Message, budget.Code) || !strings.Contains(rows[0].Message, "validado") {
		t.Fatalf("unexpected message %q", rows[0].Message)
	}

	select {
	case event := <-sub.Events():
		if event.Kind != string(notificationdomain.KindPaymentValidated) {
			t.Fatalf("unexpected live event kind %s", event.Kind)
		}
	default:
		t.Fatalf("expected a live event for the creator")
	}
}

func TestValidateRequiresAuthenticatedValidator(t *testing.T) {
	f := newPaymentFixture(t)
	budget := f.seedBudget(t, budgetdomain.BudgetStatusPending)

	payment, err := f.svc.Submit(context.Background(), domain.SubmitPaymentRequest{
		BudgetID: budget.ID.String(),
		Amount:   100.00,
		Method:   "transferencia",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = f.svc.Validate(context.Background(), domain.ValidatePaymentRequest{ID: payment.ID.String()})
	if !errors.Is(err, domain.ErrMissingValidator) {
		t.Fatalf("expected ErrMissingValidator, got %v", err)
	}
	if got := f.budgetStatus(t, budget.ID); got != budgetdomain.BudgetStatusPending {
		t.Fatalf("budget must stay PENDING, got %s", got)
	}
}

func TestValidateTwiceFails(t *testing.T) {
	f := newPaymentFixture(t)
	budget := f.seedBudget(t, budgetdomain.BudgetStatusApproved)

	payment, err := f.svc.Submit(context.Background(), domain.SubmitPaymentRequest{
		BudgetID: budget.ID.String(),
		Amount:   920.00,
		Method:   "transferencia",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx := usercontext.WithUserID(context.Background(), f.node.Generate())
	if _, err := f.svc.Validate(ctx, domain.ValidatePaymentRequest{ID: payment.ID.String()}); err != nil {
		t.Fatalf("first Validate: %v", err)
	}
	_, err = f.svc.Validate(ctx, domain.ValidatePaymentRequest{ID: payment.ID.String()})
	if !errors.Is(err, domain.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestRejectLeavesBudgetUntouched(t *testing.T) {
	f := newPaymentFixture(t)
	budget := f.seedBudget(t, budgetdomain.BudgetStatusApproved)

	payment, err := f.svc.Submit(context.Background(), domain.SubmitPaymentRequest{
		BudgetID: budget.ID.String(),
		Amount:   920.00,
		Method:   "cheque",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rejected, err := f.svc.Reject(context.Background(), domain.RejectPaymentRequest{ID: payment.ID.String()})
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != domain.PaymentStatusRejected {
		t.Fatalf("expected REJECTED, got %s", rejected.Status)
	}
	if got := f.budgetStatus(t, budget.ID); got != budgetdomain.BudgetStatusApproved {
		t.Fatalf("budget must stay APPROVED, got %s", got)
	}

	// A rejected payment does not satisfy the budget.
	_, err = f.svc.Validate(usercontext.WithUserID(context.Background(), f.node.Generate()), domain.ValidatePaymentRequest{ID: payment.ID.String()})
	if !errors.Is(err, domain.ErrNotPending) {
		t.Fatalf("expected ErrNotPending after reject, got %v", err)
	}
}

func TestListByBudgetReturnsAllAttempts(t *testing.T) {
	f := newPaymentFixture(t)
	budget := f.seedBudget(t, budgetdomain.BudgetStatusApproved)
	other := f.seedBudget(t, budgetdomain.BudgetStatusApproved)

	ctx := context.Background()
	for _, target := range []budgetdomain.Budget{budget, budget, other} {
		if _, err := f.svc.Submit(ctx, domain.SubmitPaymentRequest{
			BudgetID: target.ID.String(),
			Amount:   300.00,
			Method:   "transferencia",
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	resp, err := f.svc.ListByBudget(ctx, domain.ListPaymentRequest{BudgetID: budget.ID.String()})
	if err != nil {
		t.Fatalf("ListByBudget: %v", err)
	}
	if len(resp.Payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(resp.Payments))
	}
	for _, payment := range resp.Payments {
		if payment.BudgetID != budget.ID {
			t.Fatalf("payment for %s leaked into listing", payment.BudgetID)
		}
	}
}
