package cli

import (
	"context"
	"fmt"

	ledgerhealthdomain "github.com/smallbiznis/clockwise/internal/ledgerhealth/domain"
	ledgerhealthservice "github.com/smallbiznis/clockwise/internal/ledgerhealth/service"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const (
	FailOnCritical = "critical"
	FailOnWarning  = "warning"
	FailOnNever    = "never"
)

type HealthCheckOptions struct {
	*RootOptions
	FailOn string
}

func NewHealthCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HealthCheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "health-check",
		Short: "Audit the ledger and record a health log",
		Long: `Audit the ledger for sequence gaps, broken hash links and processing
lag. The result is stored as a health log row and, when configured,
pushed as gauges.

The exit code is 1 when the status reaches --fail-on.

Example:
  clockwise health-check
  clockwise health-check --fail-on warning --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.FailOn {
			case FailOnCritical, FailOnWarning, FailOnNever:
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --fail-on %q", opts.FailOn))
			}
			return runHealthCheck(cmd.Context(), opts, opts.formatter(cmd))
		},
	}

	cmd.Flags().StringVar(&opts.FailOn, "fail-on", FailOnCritical, "status that fails the command (critical|warning|never)")

	return cmd
}

func runHealthCheck(ctx context.Context, opts *HealthCheckOptions, out *OutputFormatter) error {
	var monitor *ledgerhealthservice.Monitor
	options := fx.Options(
		domainModules(),
		fx.Populate(&monitor),
	)

	return withApp(ctx, options, func(ctx context.Context) error {
		entry, err := monitor.Check(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "ledger health check", err)
		}
		if err := out.Success(formatHealthLog(entry), entry); err != nil {
			return err
		}
		if failsOn(entry.Status, opts.FailOn) {
			return NewExitError(ExitFailure, fmt.Sprintf("ledger health is %s", entry.Status))
		}
		return nil
	})
}

func failsOn(status ledgerhealthdomain.Status, failOn string) bool {
	switch failOn {
	case FailOnWarning:
		return status == ledgerhealthdomain.StatusWarning || status == ledgerhealthdomain.StatusCritical
	case FailOnCritical:
		return status == ledgerhealthdomain.StatusCritical
	default:
		return false
	}
}

func formatHealthLog(entry ledgerhealthdomain.HealthLog) string {
	return fmt.Sprintf(
		"status=%s rows=%d gaps=%d hash_failures=%d unprocessed=%d stale=%d lag=%.0fs",
		entry.Status, entry.TotalRows, entry.GapCount, entry.HashFailureCount,
		entry.UnprocessedCount, entry.StaleUnprocessedCount, entry.ProcessingLagSeconds,
	)
}
