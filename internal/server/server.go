package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hormisur/backoffice/internal/audit"
	auditdomain "github.com/hormisur/backoffice/internal/audit/domain"
	"github.com/hormisur/backoffice/internal/authorization"
	"github.com/hormisur/backoffice/internal/budget"
	budgetdomain "github.com/hormisur/backoffice/internal/budget/domain"
	"github.com/hormisur/backoffice/internal/clock"
	"github.com/hormisur/backoffice/internal/config"
	"github.com/hormisur/backoffice/internal/notification"
	notificationdomain "github.com/hormisur/backoffice/internal/notification/domain"
	"github.com/hormisur/backoffice/internal/notification/liveevents"
	"github.com/hormisur/backoffice/internal/observability"
	obsmiddleware "github.com/hormisur/backoffice/internal/observability/logger"
	obsmetrics "github.com/hormisur/backoffice/internal/observability/metrics"
	obstracing "github.com/hormisur/backoffice/internal/observability/tracing"
	"github.com/hormisur/backoffice/internal/payment"
	paymentdomain "github.com/hormisur/backoffice/internal/payment/domain"
	"github.com/hormisur/backoffice/internal/providers/email"
	"github.com/hormisur/backoffice/internal/providers/pdf"
	"github.com/hormisur/backoffice/internal/user"
	userdomain "github.com/hormisur/backoffice/internal/user/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	budget.Module,
	payment.Module,
	notification.Module,
	user.Module,
	email.Module,
	pdf.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	clock           clock.Clock
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	budgetSvc       budgetdomain.Service
	paymentSvc      paymentdomain.Service
	notificationSvc notificationdomain.Service
	userSvc         userdomain.Service
	liveEvents      *liveevents.Hub
	pdfProvider     pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	Clock           clock.Clock
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	BudgetSvc       budgetdomain.Service
	PaymentSvc      paymentdomain.Service
	NotificationSvc notificationdomain.Service
	UserSvc         userdomain.Service
	LiveEvents      *liveevents.Hub `optional:"true"`
	PDFProvider     pdf.Provider    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		clock:           p.Clock,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		budgetSvc:       p.BudgetSvc,
		paymentSvc:      p.PaymentSvc,
		notificationSvc: p.NotificationSvc,
		userSvc:         p.UserSvc,
		liveEvents:      p.LiveEvents,
		pdfProvider:     p.PDFProvider,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")
	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.AuthRequired())

	budgets := api.Group("/budgets")
	budgets.POST("", s.RequireAction(authorization.ObjectBudget, authorization.ActionBudgetCreate), s.CreateBudget)
	budgets.GET("", s.RequireAction(authorization.ObjectBudget, authorization.ActionBudgetView), s.ListBudgets)
	budgets.GET("/:id", s.RequireAction(authorization.ObjectBudget, authorization.ActionBudgetView), s.GetBudget)
	budgets.POST("/:id/approve", s.RequireAction(authorization.ObjectBudget, authorization.ActionBudgetApprove), s.ApproveBudget)
	budgets.GET("/:id/pdf", s.RequireAction(authorization.ObjectBudget, authorization.ActionBudgetExport), s.ExportBudgetPDF)

	budgets.GET("/:id/payments", s.RequireAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListBudgetPayments)
	budgets.POST("/:id/payments", s.RequireAction(authorization.ObjectPayment, authorization.ActionPaymentSubmit), s.SubmitPayment)

	payments := api.Group("/payments")
	payments.POST("/:id/validate", s.RequireAction(authorization.ObjectPayment, authorization.ActionPaymentValidate), s.ValidatePayment)
	payments.POST("/:id/reject", s.RequireAction(authorization.ObjectPayment, authorization.ActionPaymentReject), s.RejectPayment)

	notifications := api.Group("/notifications")
	notifications.GET("", s.RequireAction(authorization.ObjectNotification, authorization.ActionNotificationView), s.ListNotifications)
	notifications.POST("/:id/read", s.RequireAction(authorization.ObjectNotification, authorization.ActionNotificationView), s.MarkNotificationRead)
	notifications.GET("/stream", s.RequireAction(authorization.ObjectNotification, authorization.ActionNotificationView), s.StreamNotifications)
	notifications.POST("/broadcast", s.RequireAction(authorization.ObjectNotification, authorization.ActionNotificationBroadcast), s.BroadcastNotification)

	auditLogs := api.Group("/audit-logs")
	auditLogs.GET("", s.RequireAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	users := api.Group("/users")
	users.POST("", s.RequireAction(authorization.ObjectUser, authorization.ActionUserManage), s.CreateUser)
	users.GET("", s.RequireAction(authorization.ObjectUser, authorization.ActionUserView), s.ListUsers)
	users.GET("/:id", s.RequireAction(authorization.ObjectUser, authorization.ActionUserView), s.GetUser)
	users.POST("/:id/roles", s.RequireAction(authorization.ObjectUser, authorization.ActionUserManage), s.AssignUserRole)
}
