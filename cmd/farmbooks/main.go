package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/farmbooks/farmbooks/internal/clock"
	"github.com/farmbooks/farmbooks/internal/config"
	"github.com/farmbooks/farmbooks/internal/event"
	"github.com/farmbooks/farmbooks/internal/logger"
	"github.com/farmbooks/farmbooks/internal/migration"
	"github.com/farmbooks/farmbooks/internal/observability"
	"github.com/farmbooks/farmbooks/internal/posting"
	"github.com/farmbooks/farmbooks/internal/scheduler"
	"github.com/farmbooks/farmbooks/internal/server"
	"github.com/farmbooks/farmbooks/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		event.Module,
		posting.Module,
		scheduler.Module,
		server.Module,
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
