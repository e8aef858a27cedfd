package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/condopay/internal/clock"
	"github.com/smallbiznis/condopay/internal/config"
	"github.com/smallbiznis/condopay/internal/metricspush"
	"github.com/smallbiznis/condopay/internal/migration"
	"github.com/smallbiznis/condopay/internal/observability"
	"github.com/smallbiznis/condopay/internal/server"
	"github.com/smallbiznis/condopay/pkg/db"
	pkgredis "github.com/smallbiznis/condopay/pkg/redis"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		pkgredis.Module,
		clock.Module,
		migration.Module,
		metricspush.Module,

		// HTTP API, pulls in every domain module
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
