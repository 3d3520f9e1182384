package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hormisur/backoffice/internal/seed"
	"github.com/hormisur/backoffice/internal/user/domain"
	userrepo "github.com/hormisur/backoffice/internal/user/repository"
	userservice "github.com/hormisur/backoffice/internal/user/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newUserService(t *testing.T) (domain.Service, *gorm.DB) {
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

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := userservice.New(userservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  userrepo.Provide(),
	})
	return svc, db
}

func TestCreateUserValidatesInput(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		req     domain.CreateUserRequest
		wantErr error
	}{
		{"empty name", domain.CreateUserRequest{Email: "a@hormisur.com", Password: "secreto123"}, domain.ErrInvalidName},
		{"bad email", domain.CreateUserRequest{Name: "Ana", Email: "no-es-correo", Password: "secreto123"}, domain.ErrInvalidEmail},
		{"short password", domain.CreateUserRequest{Name: "Ana", Email: "a@hormisur.com", Password: "corta"}, domain.ErrInvalidPassword},
		{"unknown role", domain.CreateUserRequest{Name: "Ana", Email: "a@hormisur.com", Password: "secreto123", Roles: []string{"Becario"}}, domain.ErrInvalidRole},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateUserAssignsRoles(t *testing.T) {
	svc, _ := newUserService(t)

	user, err := svc.Create(context.Background(), domain.CreateUserRequest{
		Name:     "Lucía Romero",
		Email:    "lucia@hormisur.com",
		Password: "secreto123",
		Roles:    []string{"Contable"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.PasswordHash == "secreto123" {
		t.Fatalf("password must be hashed")
	}
	if len(user.Roles) != 1 || user.Roles[0].Name != "Contable" {
		t.Fatalf("expected role Contable, got %+v", user.Roles)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	req := domain.CreateUserRequest{
		Name:     "Marcos Gil",
		Email:    "marcos@hormisur.com",
		Password: "secreto123",
	}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, req); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestVerifyCredentials(t *testing.T) {
	svc, db := newUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateUserRequest{
		Name:     "Elena Ortiz",
		Email:    "elena@hormisur.com",
		Password: "secreto123",
		Roles:    []string{"Vendedor"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	user, err := svc.VerifyCredentials(ctx, "elena@hormisur.com", "secreto123")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("unexpected user %s", user.ID)
	}
	if len(user.Roles) != 1 || user.Roles[0].Name != "Vendedor" {
		t.Fatalf("expected roles loaded on login, got %+v", user.Roles)
	}

	if _, err := svc.VerifyCredentials(ctx, "elena@hormisur.com", "incorrecta"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "nadie@hormisur.com", "secreto123"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	// A deactivated account cannot log in even with the right password.
	if err := db.Exec(`UPDATE users SET active = ? WHERE id = ?`, false, created.ID).Error; err != nil {
		t.Fatalf("deactivate user: %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "elena@hormisur.com", "secreto123"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for inactive user, got %v", err)
	}
}

func TestAssignRoleAndFindByRoles(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, domain.CreateUserRequest{
		Name:     "Jorge Salas",
		Email:    "jorge@hormisur.com",
		Password: "secreto123",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = svc.AssignRole(ctx, domain.AssignRoleRequest{UserID: user.ID.String(), Role: "Becario"})
	if !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if err := svc.AssignRole(ctx, domain.AssignRoleRequest{UserID: user.ID.String(), Role: "Contable"}); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	holders, err := svc.FindByRoles(ctx, []string{"Contable"})
	if err != nil {
		t.Fatalf("FindByRoles: %v", err)
	}
	if len(holders) != 1 || holders[0].ID != user.ID {
		t.Fatalf("expected Jorge as the only Contable, got %+v", holders)
	}

	if holders, err := svc.FindByRoles(ctx, []string{"  "}); err != nil || len(holders) != 0 {
		t.Fatalf("blank roles must be a no-op, got %v users and err %v", len(holders), err)
	}
}
