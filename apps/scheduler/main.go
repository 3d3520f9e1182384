package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hormisur/backoffice/internal/audit"
	"github.com/hormisur/backoffice/internal/authorization"
	"github.com/hormisur/backoffice/internal/budget"
	"github.com/hormisur/backoffice/internal/clock"
	"github.com/hormisur/backoffice/internal/config"
	"github.com/hormisur/backoffice/internal/migration"
	"github.com/hormisur/backoffice/internal/notification"
	"github.com/hormisur/backoffice/internal/observability"
	"github.com/hormisur/backoffice/internal/payment"
	"github.com/hormisur/backoffice/internal/providers/email"
	"github.com/hormisur/backoffice/internal/scheduler"
	"github.com/hormisur/backoffice/internal/user"
	"github.com/hormisur/backoffice/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services the evaluator depends on
		authorization.Module,
		audit.Module,
		budget.Module,
		payment.Module,
		notification.Module,
		user.Module,
		email.Module,

		// No server module
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
