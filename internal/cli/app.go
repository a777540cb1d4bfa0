package cli

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clockwise/internal/attendance"
	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	"github.com/smallbiznis/clockwise/internal/employee"
	"github.com/smallbiznis/clockwise/internal/healthexport"
	"github.com/smallbiznis/clockwise/internal/lease"
	"github.com/smallbiznis/clockwise/internal/ledger"
	"github.com/smallbiznis/clockwise/internal/ledgerhealth"
	"github.com/smallbiznis/clockwise/internal/observability"
	"github.com/smallbiznis/clockwise/internal/schedule"
	"github.com/smallbiznis/clockwise/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

// coreModules is the infrastructure every command needs.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

// domainModules wires the ledger and attendance services without the HTTP
// server, which brings its own copy.
func domainModules() fx.Option {
	return fx.Options(
		ledger.Module,
		employee.Module,
		schedule.Module,
		attendance.Module,
		healthexport.Module,
		ledgerhealth.Module,
		lease.Module,
	)
}

// withApp starts a short-lived application, runs fn, then stops it. Values
// the command needs are pulled out through fx.Populate in options.
func withApp(ctx context.Context, options fx.Option, fn func(ctx context.Context) error) error {
	app := fx.New(coreModules(), options)
	if err := app.Err(); err != nil {
		return WrapExitError(ExitCommandError, "wire application", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return WrapExitError(ExitCommandError, "start application", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx)
}
