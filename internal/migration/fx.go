package migration

import (
	"context"

	"github.com/railzwaylabs/tallybook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates on startup. Only the migrate entrypoints include it.
var Module = fx.Module("migrations",
	fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB, cfg config.Config, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return Run(ctx, conn, cfg.Database, log.Named("migration"))
			},
		})
	}),
)
