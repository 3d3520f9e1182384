package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hormisur/backoffice/internal/audit/domain"
	"github.com/hormisur/backoffice/internal/clock"
	obsmetrics "github.com/hormisur/backoffice/internal/observability/metrics"
	userdomain "github.com/hormisur/backoffice/internal/user/domain"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// Mocks for dependencies

type mockAuditSvc struct{}

func (m *mockAuditSvc) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (m *mockAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type mockAuthzSvc struct{}

func (m *mockAuthzSvc) Authorize(ctx context.Context, actor, object, action string) error {
	return nil
}

type mockUserSvc struct {
	usersByRole map[string][]userdomain.User
}

func (m *mockUserSvc) Create(context.Context, userdomain.CreateUserRequest) (userdomain.User, error) {
	return userdomain.User{}, nil
}
func (m *mockUserSvc) List(context.Context, userdomain.ListUserRequest) (userdomain.ListUserResponse, error) {
	return userdomain.ListUserResponse{}, nil
}
func (m *mockUserSvc) GetByID(context.Context, userdomain.GetUserRequest) (userdomain.User, error) {
	return userdomain.User{}, nil
}
func (m *mockUserSvc) AssignRole(context.Context, userdomain.AssignRoleRequest) error {
	return nil
}
func (m *mockUserSvc) FindByRoles(ctx context.Context, roles []string) ([]userdomain.User, error) {
	var users []userdomain.User
	for _, role := range roles {
		users = append(users, m.usersByRole[role]...)
	}
	return users, nil
}
func (m *mockUserSvc) VerifyCredentials(ctx context.Context, email, password string) (userdomain.User, error) {
	return userdomain.User{}, nil
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "backoffice",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "backoffice",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "backoffice_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "backoffice",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "backoffice_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestIsJobEnabled(t *testing.T) {
	s := &Scheduler{cfg: Config{}}
	if !s.isJobEnabled("expiry_warning") {
		t.Fatal("empty EnabledJobs should enable every job")
	}

	s.cfg.EnabledJobs = []string{"expire_budgets"}
	if s.isJobEnabled("expiry_warning") {
		t.Fatal("expiry_warning should be disabled")
	}
	if !s.isJobEnabled("EXPIRE_BUDGETS") {
		t.Fatal("job names should match case-insensitively")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.RunInterval != 12*time.Hour {
		t.Fatalf("expected 12h interval, got %v", cfg.RunInterval)
	}
	if cfg.WarnBatchSize <= 0 || cfg.ExpireBatchSize <= 0 {
		t.Fatalf("expected positive batch sizes, got %+v", cfg)
	}

	cfg = Config{RunInterval: time.Hour, WarnBatchSize: 5}.withDefaults()
	if cfg.RunInterval != time.Hour {
		t.Fatalf("explicit interval overridden: %v", cfg.RunInterval)
	}
	if cfg.WarnBatchSize != 5 {
		t.Fatalf("explicit batch size overridden: %v", cfg.WarnBatchSize)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
