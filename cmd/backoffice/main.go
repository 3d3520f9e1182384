package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hormisur/backoffice/internal/clock"
	"github.com/hormisur/backoffice/internal/config"
	"github.com/hormisur/backoffice/internal/migration"
	"github.com/hormisur/backoffice/internal/observability"
	"github.com/hormisur/backoffice/internal/scheduler"
	"github.com/hormisur/backoffice/internal/server"
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
		server.Module,
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
