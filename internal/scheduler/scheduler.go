package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hormisur/backoffice/internal/audit/domain"
	"github.com/hormisur/backoffice/internal/auditcontext"
	"github.com/hormisur/backoffice/internal/authorization"
	"github.com/hormisur/backoffice/internal/clock"
	notificationdomain "github.com/hormisur/backoffice/internal/notification/domain"
	obsmetrics "github.com/hormisur/backoffice/internal/observability/metrics"
	paymentdomain "github.com/hormisur/backoffice/internal/payment/domain"
	"github.com/hormisur/backoffice/internal/providers/email"
	userdomain "github.com/hormisur/backoffice/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	PaymentRepo     paymentdomain.Repository
	NotificationSvc notificationdomain.Service
	UserSvc         userdomain.Service
	AuditSvc        auditdomain.Service
	AuthzSvc        authorization.Service

	GenID  *snowflake.Node
	Clock  clock.Clock
	Email  email.Provider `optional:"true"`
	Locker *Locker        `optional:"true"`
	Config Config         `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	paymentRepo     paymentdomain.Repository
	notificationSvc notificationdomain.Service
	userSvc         userdomain.Service
	auditSvc        auditdomain.Service
	authzSvc        authorization.Service
	email           email.Provider
	locker          *Locker
}

type auditEvent struct {
	Action     string
	TargetType string
	TargetID   string
	BudgetID   string
	Metadata   map[string]any
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.PaymentRepo == nil || p.NotificationSvc == nil || p.UserSvc == nil || p.AuditSvc == nil || p.AuthzSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             cfg,
		genID:           p.GenID,
		clock:           p.Clock,
		paymentRepo:     p.PaymentRepo,
		notificationSvc: p.NotificationSvc,
		userSvc:         p.UserSvc,
		auditSvc:        p.AuditSvc,
		authzSvc:        p.AuthzSvc,
		email:           p.Email,
		locker:          p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"expiry_warning", s.isJobEnabled("expiry_warning"), func(ctx context.Context) error {
			return s.runJob(ctx, "expiry_warning", s.cfg.WarnBatchSize, 5*time.Minute, s.ExpiryWarningJob)
		}},
		{"expire_budgets", s.isJobEnabled("expire_budgets"), func(ctx context.Context) error {
			return s.runJob(ctx, "expire_budgets", s.cfg.ExpireBatchSize, 5*time.Minute, s.ExpireBudgetsJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	if s.cfg.StartupDelay > 0 {
		delay := time.NewTimer(s.cfg.StartupDelay)
		select {
		case <-ctx.Done():
			delay.Stop()
			return
		case <-delay.C:
		}
	}

	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.runLeaderElected(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runLeaderElected wraps RunOnce in the redis lease when a locker is
// configured, so a horizontally scaled deployment runs one evaluator per
// tick. Without redis every instance evaluates; the guarded updates keep
// that safe, just noisier.
func (s *Scheduler) runLeaderElected(ctx context.Context) error {
	if s.locker == nil {
		return s.RunOnce(ctx)
	}

	token, acquired, err := s.locker.TryLock(ctx, leaderLockKey, s.cfg.LeaderLockTTL)
	if err != nil {
		s.log.Warn("leader lock unavailable, running anyway", zap.Error(err))
		return s.RunOnce(ctx)
	}
	if !acquired {
		s.log.Debug("another instance holds the scheduler lease, skipping tick")
		return nil
	}
	defer func() {
		if err := s.locker.Release(ctx, leaderLockKey, token); err != nil {
			s.log.Warn("failed to release scheduler lease", zap.Error(err))
		}
	}()

	return s.RunOnce(ctx)
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// If EnabledJobs is empty, all jobs are enabled by default (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpiryWarningJob notifies creators of open budgets whose deadline falls
// inside tomorrow's calendar day, local server time. Warnings are not
// de-duplicated: a second run within the same day sends again.
func (s *Scheduler) ExpiryWarningJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "expiry_warning", s.cfg.WarnBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now()
	year, month, day := now.Date()
	windowStart := time.Date(year, month, day, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	windowEnd := windowStart.AddDate(0, 0, 1)

	var jobErr error
	var afterID snowflake.ID
	totalWarned := 0

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		budgets, err := s.fetchBudgetsExpiringInWindow(ctx, s.db, windowStart, windowEnd, afterID, s.cfg.WarnBatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.budget.claim.failed", "expiry_warning", 0, err)
			return errors.Join(jobErr, err)
		}
		if len(budgets) == 0 {
			break
		}

		for _, budget := range budgets {
			afterID = budget.ID
			s.logBudgetClaimed(ctx, "expiry_warning", budget)

			if err := s.authorizeSystem(ctx, authorization.ObjectBudget, authorization.ActionBudgetWarn); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "scheduler.authorize.failed", "expiry_warning", budget.ID, err)
				continue
			}

			message := warningMessage(budget)
			budgetID := budget.ID
			if _, err := s.notificationSvc.Notify(ctx, nil, notificationdomain.NotifyRequest{
				UserID:   budget.CreatorID,
				Kind:     notificationdomain.KindExpiryWarning,
				Message:  message,
				BudgetID: &budgetID,
			}); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "scheduler.notify.failed", "expiry_warning", budget.ID, err,
					zap.String("code", budget.Code),
				)
				continue
			}

			run.AddProcessed(1)
			totalWarned++
			s.emitAuditEvent(ctx, auditEvent{
				Action:     "budget.expiry_warning_sent",
				TargetType: "budget",
				TargetID:   budget.ID.String(),
				BudgetID:   budget.ID.String(),
				Metadata: map[string]any{
					"code":        budget.Code,
					"valid_until": budget.ValidUntil.Format(time.RFC3339),
				},
			})
			s.sendCreatorEmail(ctx, budget.CreatorID, "Presupuesto próximo a vencer", message)
		}

		if len(budgets) < s.cfg.WarnBatchSize {
			break
		}
	}

	if totalWarned > 0 {
		obsmetrics.Scheduler().AddBatchProcessed("expiry_warning", "budgets", totalWarned)
	}
	return jobErr
}

// ExpireBudgetsJob cancels open budgets past their deadline with no
// validated payment. Each budget transitions and gets its cancellation
// notice in one transaction.
func (s *Scheduler) ExpireBudgetsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "expire_budgets", s.cfg.ExpireBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now()
	var jobErr error
	totalExpired := 0

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		budgets, err := s.fetchBudgetsForExpiry(ctx, s.db, now, s.cfg.ExpireBatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.budget.claim.failed", "expire_budgets", 0, err)
			return errors.Join(jobErr, err)
		}
		if len(budgets) == 0 {
			break
		}

		expiredInBatch := 0
		for _, budget := range budgets {
			s.logBudgetClaimed(ctx, "expire_budgets", budget)

			if err := s.authorizeSystem(ctx, authorization.ObjectBudget, authorization.ActionBudgetExpire); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "scheduler.authorize.failed", "expire_budgets", budget.ID, err)
				continue
			}

			message := expirationMessage(budget)
			expired, err := s.expireBudgetTx(ctx, budget, now, message)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "scheduler.budget.expire.failed", "expire_budgets", budget.ID, err,
					zap.String("code", budget.Code),
				)
				continue
			}
			if !expired {
				continue
			}

			run.AddProcessed(1)
			expiredInBatch++
			totalExpired++
			s.logger(ctx).Info("budget.expired",
				zap.String("budget_id", idString(budget.ID)),
				zap.String("code", budget.Code),
				zap.String("from", string(budget.Status)),
			)
			s.emitAuditEvent(ctx, auditEvent{
				Action:     "budget.expired",
				TargetType: "budget",
				TargetID:   budget.ID.String(),
				BudgetID:   budget.ID.String(),
				Metadata: map[string]any{
					"code":        budget.Code,
					"from":        string(budget.Status),
					"valid_until": budget.ValidUntil.Format(time.RFC3339),
				},
			})
			s.sendCreatorEmail(ctx, budget.CreatorID, "Presupuesto anulado", message)
		}

		// Everything in the batch stayed put, bail out instead of spinning
		// on the same rows.
		if expiredInBatch == 0 {
			break
		}
		if len(budgets) < s.cfg.ExpireBatchSize {
			break
		}
	}

	if totalExpired > 0 {
		obsmetrics.Scheduler().AddBatchProcessed("expire_budgets", "budgets", totalExpired)
	}
	return jobErr
}

func warningMessage(budget WorkBudget) string {
	return fmt.Sprintf("El presupuesto %s de %s vence mañana (%s).",
		budget.Code,
		budget.CustomerName,
		budget.ValidUntil.Format("02/01/2006"),
	)
}

func expirationMessage(budget WorkBudget) string {
	return fmt.Sprintf("El presupuesto %s de %s ha sido ANULADO por haber vencido sin pago validado.",
		budget.Code,
		budget.CustomerName,
	)
}

func (s *Scheduler) authorizeSystem(ctx context.Context, object string, action string) error {
	if s.authzSvc == nil {
		return authorization.ErrForbidden
	}
	return s.authzSvc.Authorize(ctx, "system", object, action)
}

func (s *Scheduler) withAuditContext(ctx context.Context, budgetID string) context.Context {
	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	if budgetID != "" {
		ctx = auditcontext.WithBudgetID(ctx, budgetID)
	}
	return ctx
}

func (s *Scheduler) emitAuditEvent(ctx context.Context, event auditEvent) {
	if s.auditSvc == nil {
		return
	}
	ctx = s.withAuditContext(ctx, event.BudgetID)
	targetID := event.TargetID
	_ = s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, event.Action, event.TargetType, &targetID, event.Metadata)
}

// sendCreatorEmail is best effort. The stored notification is the source of
// truth, mail just mirrors it.
func (s *Scheduler) sendCreatorEmail(ctx context.Context, creatorID snowflake.ID, subject, message string) {
	if s.email == nil || creatorID == 0 {
		return
	}
	user, err := s.userSvc.GetByID(ctx, userdomain.GetUserRequest{ID: creatorID.String()})
	if err != nil {
		s.log.Warn("failed to load budget creator for email",
			zap.String("user_id", creatorID.String()),
			zap.Error(err),
		)
		return
	}
	addr := strings.TrimSpace(user.Email)
	if addr == "" {
		return
	}
	if err := s.email.Send(ctx, []string{addr}, subject, message); err != nil {
		s.log.Warn("failed to send scheduler email",
			zap.String("user_id", creatorID.String()),
			zap.Error(err),
		)
	}
}
