package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/countercore/tally/internal/clock"
	"github.com/countercore/tally/internal/config"
	"github.com/countercore/tally/internal/logger"
	"github.com/countercore/tally/internal/migration"
	"github.com/countercore/tally/internal/server"
	"github.com/countercore/tally/internal/telemetry"
	"github.com/countercore/tally/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		migration.Module,
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
