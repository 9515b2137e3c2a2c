package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payway/internal/checkout"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/gateway"
	"github.com/smallbiznis/payway/internal/method"
	"github.com/smallbiznis/payway/internal/migration"
	"github.com/smallbiznis/payway/internal/observability"
	"github.com/smallbiznis/payway/internal/order"
	"github.com/smallbiznis/payway/internal/profile"
	"github.com/smallbiznis/payway/internal/server"
	"github.com/smallbiznis/payway/internal/tokencache"
	"github.com/smallbiznis/payway/internal/txnlog"
	"github.com/smallbiznis/payway/internal/webhookjob"
	"github.com/smallbiznis/payway/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		db.Module,
		fx.Provide(
			RegisterSnowflake,
			RegisterRedis,
			fx.Annotate(
				func(cfg config.Config) string { return cfg.BaseURL },
				fx.ResultTags(`name:"base_url"`),
			),
		),

		// Payment domains
		order.Module,
		txnlog.Module,
		method.Module,
		profile.Module,
		tokencache.Module,
		gateway.Module,
		checkout.Module,
		webhookjob.Module,

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

// RegisterRedis returns nil when no address is configured; consumers treat a
// nil client as "redis-backed features off".
func RegisterRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
