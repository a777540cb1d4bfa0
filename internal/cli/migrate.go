package cli

import (
	"context"

	"github.com/smallbiznis/clockwise/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	*RootOptions
	Down bool
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Apply pending schema migrations. Postgres uses the embedded SQL
migrations; mysql and sqlite are migrated from the models.

Example:
  clockwise migrate
  clockwise migrate --down`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), opts, opts.formatter(cmd))
		},
	}

	cmd.Flags().BoolVar(&opts.Down, "down", false, "revert the most recent migration (postgres only)")

	return cmd
}

func runMigrate(ctx context.Context, opts *MigrateOptions, out *OutputFormatter) error {
	var conn *gorm.DB
	return withApp(ctx, fx.Populate(&conn), func(ctx context.Context) error {
		if !opts.Down {
			if err := migration.Run(conn.WithContext(ctx)); err != nil {
				return WrapExitError(ExitFailure, "apply migrations", err)
			}
			return out.Success("schema up to date", map[string]string{"direction": "up"})
		}

		if conn.Dialector.Name() != "postgres" {
			return NewExitError(ExitCommandError, "--down is only supported on postgres")
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return WrapExitError(ExitCommandError, "open database", err)
		}
		if err := migration.Rollback(sqlDB); err != nil {
			return WrapExitError(ExitFailure, "rollback migration", err)
		}
		return out.Success("rolled back one migration", map[string]string{"direction": "down"})
	})
}
