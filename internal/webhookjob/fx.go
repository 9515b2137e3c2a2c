package webhookjob

import (
	"context"

	"github.com/redis/go-redis/v9"
	checkoutdomain "github.com/smallbiznis/payway/internal/checkout/domain"
	"github.com/smallbiznis/payway/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("webhookjob",
	fx.Provide(
		func(cfg config.Config, db *gorm.DB, rdb *redis.Client, log *zap.Logger) checkoutdomain.WebhookQueue {
			if !cfg.WebhookAsync || rdb == nil {
				return nil
			}
			return NewQueue(db, rdb, log)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, rdb *redis.Client, log *zap.Logger, svc checkoutdomain.Service) {
		if !cfg.WebhookAsync || rdb == nil {
			return
		}
		worker := NewWorker(db, rdb, log, svc)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error { return worker.Start(ctx) },
			OnStop:  func(ctx context.Context) error { return worker.Stop(ctx) },
		})
	}),
)
