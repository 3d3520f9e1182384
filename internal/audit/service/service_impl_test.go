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
	"github.com/hormisur/backoffice/internal/audit/domain"
	auditrepo "github.com/hormisur/backoffice/internal/audit/repository"
	auditservice "github.com/hormisur/backoffice/internal/audit/service"
	auditcontext "github.com/hormisur/backoffice/internal/auditcontext"
	"github.com/hormisur/backoffice/internal/seed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAuditService(t *testing.T) (domain.Service, *gorm.DB) {
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

	node, err := snowflake.NewNode(6)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	return svc, db
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newAuditService(t)

	err := svc.AuditLog(context.Background(), "user", nil, "   ", "budget", nil, nil)
	if !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestAuditLogResolvesActorFromContext(t *testing.T) {
	svc, _ := newAuditService(t)

	ctx := auditcontext.WithActor(context.Background(), string(domain.ActorTypeUser), "42")
	if err := svc.AuditLog(ctx, "", nil, "budget.approved", "budget", nil, nil); err != nil {
		t.Fatalf("AuditLog: %v", err)
	}

	resp, err := svc.List(context.Background(), domain.ListAuditLogRequest{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(resp.AuditLogs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(resp.AuditLogs))
	}
	entry := resp.AuditLogs[0]
	if entry.ActorType != string(domain.ActorTypeUser) {
		t.Fatalf("expected actor type user, got %s", entry.ActorType)
	}
	if entry.ActorID == nil || *entry.ActorID != "42" {
		t.Fatalf("expected actor id 42, got %v", entry.ActorID)
	}
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, _ := newAuditService(t)

	if err := svc.AuditLog(context.Background(), "", nil, "budget.expired", "budget", nil, nil); err != nil {
		t.Fatalf("AuditLog: %v", err)
	}

	resp, err := svc.List(context.Background(), domain.ListAuditLogRequest{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(resp.AuditLogs) != 1 || resp.AuditLogs[0].ActorType != string(domain.ActorTypeSystem) {
		t.Fatalf("expected system actor, got %+v", resp.AuditLogs)
	}
}

func TestListValidatesFilters(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := context.Background()

	start := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	if _, err := svc.List(ctx, domain.ListAuditLogRequest{StartAt: &start, EndAt: &end}); !errors.Is(err, domain.ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}

	req := domain.ListAuditLogRequest{}
	req.PageToken = "no-es-un-cursor"
	if _, err := svc.List(ctx, req); !errors.Is(err, domain.ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestListFiltersByAction(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := context.Background()

	for _, action := range []string{"budget.created", "budget.approved", "budget.created"} {
		if err := svc.AuditLog(ctx, "user", nil, action, "budget", nil, nil); err != nil {
			t.Fatalf("AuditLog: %v", err)
		}
	}

	resp, err := svc.List(ctx, domain.ListAuditLogRequest{Action: "budget.created"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(resp.AuditLogs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.AuditLogs))
	}
	for _, entry := range resp.AuditLogs {
		if entry.Action != "budget.created" {
			t.Fatalf("unexpected action %s", entry.Action)
		}
	}
}
