package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/hormisur/backoffice/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectBudget       = "budget"
	ObjectPayment      = "payment"
	ObjectNotification = "notification"
	ObjectAuditLog     = "audit_log"
	ObjectUser         = "user"
)

const (
	ActionBudgetView    = "budget.view"
	ActionBudgetCreate  = "budget.create"
	ActionBudgetApprove = "budget.approve"
	ActionBudgetExport  = "budget.export"
	ActionBudgetWarn    = "budget.warn"
	ActionBudgetExpire  = "budget.expire"

	ActionPaymentView     = "payment.view"
	ActionPaymentSubmit   = "payment.submit"
	ActionPaymentValidate = "payment.validate"
	ActionPaymentReject   = "payment.reject"

	ActionNotificationView      = "notification.view"
	ActionNotificationBroadcast = "notification.broadcast"

	ActionAuditLogView = "audit_log.view"

	ActionUserView   = "user.view"
	ActionUserManage = "user.manage"
)

const (
	RoleAdministrator = "Administrador"
	RoleAccountant    = "Contable"
	RoleSeller        = "Vendedor"
)

// Service answers whether an actor may perform an action on an object.
type Service interface {
	Authorize(ctx context.Context, actor string, object string, action string) error
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// Authorize checks the actor against the policy. Actors are "system" or
// "user:<id>"; user roles are resolved from the user_roles table.
func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleNames, actorType, actorID, err := s.resolveActor(ctx, actor)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return err
	}

	if err := s.ensureGrouping(subject, roleNames); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, []string, string, *string, error) {
	if actor == "system" {
		return actor, []string{"role:system"}, "system", nil, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", nil, "", nil, ErrInvalidActor
		}
		userIDStr := userID.String()
		roles, err := s.rolesForUser(ctx, userID)
		if err != nil {
			return actor, nil, "user", &userIDStr, err
		}
		roleNames := make([]string, 0, len(roles))
		for _, role := range roles {
			roleNames = append(roleNames, fmt.Sprintf("role:%s", strings.ToLower(role)))
		}
		return actor, roleNames, "user", &userIDStr, nil
	}
	return "", nil, "", nil, ErrInvalidActor
}

func (s *ServiceImpl) rolesForUser(ctx context.Context, userID snowflake.ID) ([]string, error) {
	var rows []struct {
		Name string `gorm:"column:name"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT r.name
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ?`,
		userID,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	roles := make([]string, 0, len(rows))
	for _, row := range rows {
		if name := strings.TrimSpace(row.Name); name != "" {
			roles = append(roles, name)
		}
	}
	if len(roles) == 0 {
		return nil, ErrForbidden
	}
	return roles, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleNames []string) error {
	wanted := make(map[string]struct{}, len(roleNames))
	for _, role := range roleNames {
		wanted[role] = struct{}{}
	}

	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if _, ok := wanted[rule[1]]; ok {
			delete(wanted, rule[1])
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	for role := range wanted {
		if _, err := s.enforcer.AddGroupingPolicy(subject, role); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Sellers create and follow their own budgets.
		{"role:vendedor", ObjectBudget, ActionBudgetView},
		{"role:vendedor", ObjectBudget, ActionBudgetCreate},
		{"role:vendedor", ObjectBudget, ActionBudgetExport},
		{"role:vendedor", ObjectPayment, ActionPaymentSubmit},
		{"role:vendedor", ObjectPayment, ActionPaymentView},
		{"role:vendedor", ObjectNotification, ActionNotificationView},

		// Accountants validate payments and review history.
		{"role:contable", ObjectBudget, ActionBudgetView},
		{"role:contable", ObjectBudget, ActionBudgetExport},
		{"role:contable", ObjectPayment, ActionPaymentView},
		{"role:contable", ObjectPayment, ActionPaymentSubmit},
		{"role:contable", ObjectPayment, ActionPaymentValidate},
		{"role:contable", ObjectPayment, ActionPaymentReject},
		{"role:contable", ObjectNotification, ActionNotificationView},
		{"role:contable", ObjectAuditLog, ActionAuditLogView},

		// Administrators hold every permission.
		{"role:administrador", ObjectBudget, ActionBudgetView},
		{"role:administrador", ObjectBudget, ActionBudgetCreate},
		{"role:administrador", ObjectBudget, ActionBudgetApprove},
		{"role:administrador", ObjectBudget, ActionBudgetExport},
		{"role:administrador", ObjectPayment, ActionPaymentView},
		{"role:administrador", ObjectPayment, ActionPaymentSubmit},
		{"role:administrador", ObjectPayment, ActionPaymentValidate},
		{"role:administrador", ObjectPayment, ActionPaymentReject},
		{"role:administrador", ObjectNotification, ActionNotificationView},
		{"role:administrador", ObjectNotification, ActionNotificationBroadcast},
		{"role:administrador", ObjectAuditLog, ActionAuditLogView},
		{"role:administrador", ObjectUser, ActionUserView},
		{"role:administrador", ObjectUser, ActionUserManage},

		// System permissions for the expiration scheduler.
		{"role:system", ObjectBudget, ActionBudgetView},
		{"role:system", ObjectBudget, ActionBudgetWarn},
		{"role:system", ObjectBudget, ActionBudgetExpire},
		{"role:system", ObjectNotification, ActionNotificationBroadcast},
	}

	for _, policy := range policies {
		params := make([]interface{}, 0, len(policy))
		for _, value := range policy {
			params = append(params, value)
		}
		has, err := enforcer.HasPolicy(params...)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(params...); err != nil {
			return err
		}
	}
	return nil
}
