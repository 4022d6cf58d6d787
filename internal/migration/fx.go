package migration

import (
	"github.com/farmbooks/farmbooks/internal/config"
	"github.com/farmbooks/farmbooks/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		if cfg.DefaultTenantID != 0 {
			return seed.EnsureDefaultAccountMapping(conn, cfg.DefaultTenantID)
		}
		return nil
	}),
)
