// Package app assembles the fx graphs shared by every entrypoint.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/tallybook/internal/bootstrap"
	"github.com/railzwaylabs/tallybook/internal/clock"
	"github.com/railzwaylabs/tallybook/internal/config"
	"github.com/railzwaylabs/tallybook/internal/lock"
	"github.com/railzwaylabs/tallybook/internal/migration"
	"github.com/railzwaylabs/tallybook/internal/observability"
	"github.com/railzwaylabs/tallybook/internal/payment"
	"github.com/railzwaylabs/tallybook/internal/redis"
	"github.com/railzwaylabs/tallybook/internal/scheduler"
	"github.com/railzwaylabs/tallybook/internal/server"
	"github.com/railzwaylabs/tallybook/internal/subscription"
	"github.com/railzwaylabs/tallybook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Base provides config, logging, ids, the database and the clock.
var Base = fx.Options(
	config.Module,
	observability.Module,
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	}),
	fx.Provide(RegisterSnowflake),
	db.Module,
	clock.Module,
)

// Billing adds the domain services behind the schema gate.
var Billing = fx.Options(
	Base,
	bootstrap.Module,
	fx.Invoke(bootstrap.EnforceSchemaGate),
	redis.Module,
	lock.Module,
	subscription.Module,
	payment.Module,
)

var API = fx.Options(
	server.Module,
	fx.Invoke(func(s *server.Server) {
		s.RegisterAPIRoutes()
	}),
	fx.Invoke(server.RunHTTP),
)

var Scheduler = fx.Options(
	scheduler.Module,
	fx.Invoke(scheduler.Start),
)

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Snowflake.NodeID)
}

// Migrate applies the embedded migrations and exits.
func Migrate() error {
	app := fx.New(Base, migration.Module)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	return app.Stop(context.Background())
}

// Run blocks until the process is signalled.
func Run(opts ...fx.Option) error {
	app := fx.New(Billing, fx.Options(opts...))
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

// RunOnce starts the billing graph, runs fn and stops the graph again.
func RunOnce(ctx context.Context, opts fx.Option, fn func(ctx context.Context) error) error {
	app := fx.New(Billing, opts)

	startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.WithoutCancel(ctx)) }()

	return fn(ctx)
}
