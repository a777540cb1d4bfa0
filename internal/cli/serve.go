package cli

import (
	"context"

	"github.com/smallbiznis/clockwise/internal/lease"
	"github.com/smallbiznis/clockwise/internal/migration"
	"github.com/smallbiznis/clockwise/internal/scheduler"
	"github.com/smallbiznis/clockwise/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type ServeOptions struct {
	*RootOptions
	SkipMigrate bool
	NoScheduler bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scheduler",
		Long: `Run the HTTP API together with the ledger_ingest and ledger_health
scheduler jobs until interrupted.

Example:
  clockwise serve
  clockwise serve --no-scheduler`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipMigrate, "skip-migrate", false, "do not apply schema migrations on start")
	cmd.Flags().BoolVar(&opts.NoScheduler, "no-scheduler", false, "serve the API without the background jobs")

	return cmd
}

func serveModules(opts *ServeOptions) fx.Option {
	options := []fx.Option{
		server.Module,
		lease.Module,
	}
	if !opts.SkipMigrate {
		options = append(options, migration.Module)
	}
	if !opts.NoScheduler {
		options = append(options, scheduler.Module)
	}
	return fx.Options(options...)
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	app := fx.New(coreModules(), serveModules(opts))
	if err := app.Err(); err != nil {
		return WrapExitError(ExitCommandError, "wire application", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return WrapExitError(ExitCommandError, "start application", err)
	}

	select {
	case <-ctx.Done():
	case <-app.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return WrapExitError(ExitFailure, "stop application", err)
	}
	return nil
}
