package authorization_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hormisur/backoffice/internal/authorization"
	"github.com/hormisur/backoffice/internal/seed"
	userdomain "github.com/hormisur/backoffice/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authzFixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  authorization.Service
}

func newAuthzFixture(t *testing.T) *authzFixture {
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
	if err := seed.EnsureRoles(db); err != nil {
		t.Fatalf("ensure roles: %v", err)
	}

	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	enforcer, err := authorization.NewEnforcer(db)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	svc := authorization.NewService(authorization.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})

	return &authzFixture{db: db, node: node, svc: svc}
}

func (f *authzFixture) createUser(t *testing.T, roleName string) snowflake.ID {
	t.Helper()

	now := time.Now().UTC()
	user := userdomain.User{
		ID:           f.node.Generate(),
		Name:         "Empleado " + roleName,
		Email:        fmt.Sprintf("empleado-%s@hormisur.com", f.node.Generate()),
		PasswordHash: "x",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	var role userdomain.Role
	if err := f.db.Where("lower(name) = lower(?)", roleName).First(&role).Error; err != nil {
		t.Fatalf("load role %s: %v", roleName, err)
	}
	if err := f.db.Create(&userdomain.UserRole{UserID: user.ID, RoleID: role.ID}).Error; err != nil {
		t.Fatalf("assign role: %v", err)
	}
	return user.ID
}

func TestAdministratorCanBroadcastNotifications(t *testing.T) {
	f := newAuthzFixture(t)
	adminID := f.createUser(t, "Administrador")

	actor := "user:" + adminID.String()
	if err := f.svc.Authorize(context.Background(), actor, authorization.ObjectNotification, authorization.ActionNotificationBroadcast); err != nil {
		t.Fatalf("administrator must be allowed to broadcast, got %v", err)
	}
}

func TestSellerCannotBroadcastNotifications(t *testing.T) {
	f := newAuthzFixture(t)
	sellerID := f.createUser(t, "Vendedor")

	actor := "user:" + sellerID.String()
	err := f.svc.Authorize(context.Background(), actor, authorization.ObjectNotification, authorization.ActionNotificationBroadcast)
	if !errors.Is(err, authorization.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.svc.Authorize(context.Background(), actor, authorization.ObjectNotification, authorization.ActionNotificationView); err != nil {
		t.Fatalf("seller must still view notifications, got %v", err)
	}
}

func TestSystemActorRunsSchedulerActions(t *testing.T) {
	f := newAuthzFixture(t)

	ctx := context.Background()
	if err := f.svc.Authorize(ctx, "system", authorization.ObjectBudget, authorization.ActionBudgetExpire); err != nil {
		t.Fatalf("system must expire budgets, got %v", err)
	}
	if err := f.svc.Authorize(ctx, "system", authorization.ObjectBudget, authorization.ActionBudgetWarn); err != nil {
		t.Fatalf("system must warn budgets, got %v", err)
	}
	err := f.svc.Authorize(ctx, "system", authorization.ObjectUser, authorization.ActionUserManage)
	if !errors.Is(err, authorization.ErrForbidden) {
		t.Fatalf("system must not manage users, got %v", err)
	}
}

func TestUserWithoutRolesIsForbidden(t *testing.T) {
	f := newAuthzFixture(t)

	now := time.Now().UTC()
	user := userdomain.User{
		ID:           f.node.Generate(),
		Name:         "Sin rol",
		Email:        "sinrol@hormisur.com",
		PasswordHash: "x",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	err := f.svc.Authorize(context.Background(), "user:"+user.ID.String(), authorization.ObjectBudget, authorization.ActionBudgetView)
	if !errors.Is(err, authorization.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAuthorizeRejectsMalformedActors(t *testing.T) {
	f := newAuthzFixture(t)

	ctx := context.Background()
	for _, actor := range []string{"", "user:", "user:abc", "role:administrador"} {
		err := f.svc.Authorize(ctx, actor, authorization.ObjectBudget, authorization.ActionBudgetView)
		if !errors.Is(err, authorization.ErrInvalidActor) {
			t.Fatalf("actor %q: expected ErrInvalidActor, got %v", actor, err)
		}
	}
}
