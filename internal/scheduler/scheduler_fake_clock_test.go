package scheduler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	budgetdomain "github.com/hormisur/backoffice/internal/budget/domain"
	"github.com/hormisur/backoffice/internal/clock"
	notificationdomain "github.com/hormisur/backoffice/internal/notification/domain"
	"github.com/hormisur/backoffice/internal/notification/liveevents"
	notificationrepo "github.com/hormisur/backoffice/internal/notification/repository"
	notificationservice "github.com/hormisur/backoffice/internal/notification/service"
	obsmetrics "github.com/hormisur/backoffice/internal/observability/metrics"
	paymentdomain "github.com/hormisur/backoffice/internal/payment/domain"
	paymentrepo "github.com/hormisur/backoffice/internal/payment/repository"
	"github.com/hormisur/backoffice/internal/seed"
	userdomain "github.com/hormisur/backoffice/internal/user/domain"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	// SQLite support hack: remove FOR UPDATE clauses
	stripForUpdate := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripForUpdate)
	db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripForUpdate)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := seed.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

type schedulerFixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	fakeClock *clock.FakeClock
	scheduler *Scheduler
	creatorID snowflake.ID
}

func newSchedulerFixture(t *testing.T, startTime time.Time) *schedulerFixture {
	t.Helper()

	db := openTestDB(t)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(startTime)

	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "backoffice", Environment: "test"})

	creator := userdomain.User{
		ID:           node.Generate(),
		Name:         "Vendedor de pruebas",
		Email:        "vendedor@hormisur.com",
		PasswordHash: "x",
		Active:       true,
		CreatedAt:    startTime,
		UpdatedAt:    startTime,
	}
	if err := db.Create(&creator).Error; err != nil {
		t.Fatalf("seed creator: %v", err)
	}

	notificationSvc := notificationservice.New(notificationservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fakeClock,
		Repo:    notificationrepo.Provide(),
		UserSvc: &mockUserSvc{},
		Hub:     liveevents.NewHub(),
	})

	sched, err := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		PaymentRepo:     paymentrepo.Provide(),
		NotificationSvc: notificationSvc,
		UserSvc:         &mockUserSvc{},
		AuditSvc:        &mockAuditSvc{},
		AuthzSvc:        &mockAuthzSvc{},
		GenID:           node,
		Clock:           fakeClock,
		Config: Config{
			RunInterval:     12 * time.Hour,
			WarnBatchSize:   10,
			ExpireBatchSize: 10,
		},
	})
	if err != nil {
		t.Fatalf("New scheduler: %v", err)
	}

	return &schedulerFixture{
		db:        db,
		node:      node,
		fakeClock: fakeClock,
		scheduler: sched,
		creatorID: creator.ID,
	}
}

func (f *schedulerFixture) seedBudget(t *testing.T, status budgetdomain.BudgetStatus, validUntil time.Time) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	budget := budgetdomain.Budget{
		ID:           id,
		Code:         "PRE-" + id.String(),
		Title:        "Suministro de hormigón",
		CustomerName: "Construcciones Vega",
		TotalAmount:  1850.50,
		Currency:     "EUR",
		Status:       status,
		ValidUntil:   validUntil,
		CreatorID:    f.creatorID,
		CreatedAt:    f.fakeClock.Now(),
		UpdatedAt:    f.fakeClock.Now(),
	}
	if err := f.db.Create(&budget).Error; err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	return id
}

func (f *schedulerFixture) seedValidatedPayment(t *testing.T, budgetID snowflake.ID) {
	t.Helper()
	now := f.fakeClock.Now()
	payment := paymentdomain.Payment{
		ID:          f.node.Generate(),
		BudgetID:    budgetID,
		Amount:      1850.50,
		Currency:    "EUR",
		Method:      "transferencia",
		Status:      paymentdomain.PaymentStatusValidated,
		ValidatedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.db.Create(&payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}

func (f *schedulerFixture) budgetStatus(t *testing.T, id snowflake.ID) budgetdomain.BudgetStatus {
	t.Helper()
	var status string
	if err := f.db.Raw(`SELECT status FROM budgets WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("load budget status: %v", err)
	}
	return budgetdomain.BudgetStatus(status)
}

func (f *schedulerFixture) notificationsFor(t *testing.T, budgetID snowflake.ID) []notificationdomain.Notification {
	t.Helper()
	var notifications []notificationdomain.Notification
	if err := f.db.Raw(
		`SELECT * FROM notifications WHERE budget_id = ? ORDER BY id`,
		budgetID,
	).Scan(&notifications).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	return notifications
}

func TestExpiryWarningJobNotifiesCreator(t *testing.T) {
	startTime := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, startTime)

	// valid_until falls inside tomorrow's calendar day
	budgetID := f.seedBudget(t, budgetdomain.BudgetStatusApproved, startTime.Add(20*time.Hour))

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.budgetStatus(t, budgetID); got != budgetdomain.BudgetStatusApproved {
		t.Fatalf("warning pass must not change status, got %s", got)
	}
	notifications := f.notificationsFor(t, budgetID)
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}
	if notifications[0].UserID != f.creatorID {
		t.Fatalf("notification went to %s, want creator %s", notifications[0].UserID, f.creatorID)
	}
	if notifications[0].Kind != notificationdomain.KindExpiryWarning {
		t.Fatalf("unexpected kind %s", notifications[0].Kind)
	}
	if !strings.Contains(notifications[0].Message, "vence mañana") {
		t.Fatalf("warning message %q must mention \"vence mañana\"", notifications[0].Message)
	}
}

func TestExpiryWarningJobResendsOnRerun(t *testing.T) {
	startTime := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, startTime)

	budgetID := f.seedBudget(t, budgetdomain.BudgetStatusPending, startTime.Add(22*time.Hour))

	ctx := context.Background()
	if err := f.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	f.fakeClock.Advance(2 * time.Hour)
	if err := f.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}

	notifications := f.notificationsFor(t, budgetID)
	if len(notifications) != 2 {
		t.Fatalf("warnings are not de-duplicated, expected 2 notifications, got %d", len(notifications))
	}
}

func TestExpireBudgetsJobExpiresAndNotifiesAtomically(t *testing.T) {
	startTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, startTime)

	budgetID := f.seedBudget(t, budgetdomain.BudgetStatusPending, startTime.Add(-2*time.Hour))

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.budgetStatus(t, budgetID); got != budgetdomain.BudgetStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", got)
	}
	notifications := f.notificationsFor(t, budgetID)
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}
	if notifications[0].Kind != notificationdomain.KindExpired {
		t.Fatalf("unexpected kind %s", notifications[0].Kind)
	}
	if !strings.Contains(notifications[0].Message, "ANULADO") {
		t.Fatalf("expiration message %q must mention \"ANULADO\"", notifications[0].Message)
	}
}

func TestValidatedPaymentBlocksExpiry(t *testing.T) {
	startTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, startTime)

	budgetID := f.seedBudget(t, budgetdomain.BudgetStatusApproved, startTime.Add(-2*time.Hour))
	f.seedValidatedPayment(t, budgetID)

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.budgetStatus(t, budgetID); got != budgetdomain.BudgetStatusApproved {
		t.Fatalf("validated payment must block expiry, got %s", got)
	}
	if notifications := f.notificationsFor(t, budgetID); len(notifications) != 0 {
		t.Fatalf("expected no notifications, got %d", len(notifications))
	}
}

func TestClosedBudgetsAreNeverTouched(t *testing.T) {
	startTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, startTime)

	paidID := f.seedBudget(t, budgetdomain.BudgetStatusPaid, startTime.Add(-48*time.Hour))
	expiredID := f.seedBudget(t, budgetdomain.BudgetStatusExpired, startTime.Add(20*time.Hour))

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.budgetStatus(t, paidID); got != budgetdomain.BudgetStatusPaid {
		t.Fatalf("PAID budget changed to %s", got)
	}
	if got := f.budgetStatus(t, expiredID); got != budgetdomain.BudgetStatusExpired {
		t.Fatalf("EXPIRED budget changed to %s", got)
	}
	if n := len(f.notificationsFor(t, paidID)) + len(f.notificationsFor(t, expiredID)); n != 0 {
		t.Fatalf("closed budgets must not be notified, got %d notifications", n)
	}
}

// TestSchedulerLifecycleWithFakeClock walks one budget through its whole
// lifecycle: quiet while far from the deadline, warned the day before,
// cancelled once overdue.
func TestSchedulerLifecycleWithFakeClock(t *testing.T) {
	startTime := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, startTime)

	budgetID := f.seedBudget(t, budgetdomain.BudgetStatusApproved, startTime.Add(72*time.Hour))
	ctx := context.Background()

	// Day 0: deadline is three days out, nothing should happen.
	if err := f.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce day 0: %v", err)
	}
	if n := len(f.notificationsFor(t, budgetID)); n != 0 {
		t.Fatalf("day 0 should be quiet, got %d notifications", n)
	}

	// Day 2: deadline falls tomorrow, a warning goes out.
	f.fakeClock.Advance(48 * time.Hour)
	if err := f.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce day 2: %v", err)
	}
	notifications := f.notificationsFor(t, budgetID)
	if len(notifications) != 1 || !strings.Contains(notifications[0].Message, "vence mañana") {
		t.Fatalf("expected one warning on day 2, got %+v", notifications)
	}
	if got := f.budgetStatus(t, budgetID); got != budgetdomain.BudgetStatusApproved {
		t.Fatalf("day 2 must not change status, got %s", got)
	}

	// Day 4: deadline passed without a validated payment, the budget is
	// cancelled.
	f.fakeClock.Advance(48 * time.Hour)
	if err := f.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce day 4: %v", err)
	}
	if got := f.budgetStatus(t, budgetID); got != budgetdomain.BudgetStatusExpired {
		t.Fatalf("expected EXPIRED on day 4, got %s", got)
	}
	notifications = f.notificationsFor(t, budgetID)
	if len(notifications) != 2 {
		t.Fatalf("expected warning plus cancellation, got %d notifications", len(notifications))
	}
	if !strings.Contains(notifications[1].Message, "ANULADO") {
		t.Fatalf("cancellation message %q must mention \"ANULADO\"", notifications[1].Message)
	}
}
