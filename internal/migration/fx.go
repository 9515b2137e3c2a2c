package migration

import (
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/gateway/registry"
	methoddomain "github.com/smallbiznis/payway/internal/method/domain"
	"github.com/smallbiznis/payway/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, reg *registry.Registry, methods methoddomain.Repository, log *zap.Logger) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Embedded migrations target postgres; other dialects are for
			// local development and manage their schema externally.
			log.Warn("skipping automatic migrations", zap.String("db_type", cfg.DBType))
		}

		return seed.SyncPaymentMethods(conn, reg, methods, log)
	}),
)
