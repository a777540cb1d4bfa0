package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/clockwise/internal/attendance/materializer"
	"github.com/smallbiznis/clockwise/internal/lease"
	"github.com/smallbiznis/clockwise/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type IngestOptions struct {
	*RootOptions
	Limit int
}

func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Materialize unprocessed ledger rows",
		Long: `Materialize unprocessed ledger rows into attendance events and
recompute the affected daily summaries.

Without --limit the ledger is drained the same way the scheduler does it.
With --limit exactly one batch of at most that many rows is processed.

Example:
  clockwise ingest
  clockwise ingest --limit 200 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit < 0 {
				return NewExitError(ExitCommandError, "--limit must not be negative")
			}
			return runIngest(cmd.Context(), opts, opts.formatter(cmd))
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "process a single batch of at most this many rows")

	return cmd
}

func runIngest(ctx context.Context, opts *IngestOptions, out *OutputFormatter) error {
	var (
		mat    *materializer.Materializer
		sched  *scheduler.Scheduler
		locker *lease.Locker
		cfg    scheduler.Config
	)
	options := fx.Options(
		domainModules(),
		scheduler.Providers,
		fx.Populate(&mat, &sched, &locker, &cfg),
	)

	return withApp(ctx, options, func(ctx context.Context) error {
		if opts.Limit == 0 {
			if err := sched.IngestJob(ctx); err != nil {
				return WrapExitError(ExitFailure, "ingest ledger", err)
			}
			return out.Success("ledger drained", map[string]string{"status": "drained"})
		}

		var result materializer.Result
		err := locker.WithLease(ctx, scheduler.JobLedgerIngest, cfg.LeaseTTL, func(ctx context.Context) error {
			var runErr error
			result, runErr = mat.Run(ctx, opts.Limit)
			return runErr
		})
		if errors.Is(err, lease.ErrNotAcquired) {
			return WrapExitError(ExitFailure, "another consumer holds the ingest lease", err)
		}
		if printErr := out.Success(formatIngestResult(result), result); printErr != nil {
			return printErr
		}
		if err != nil {
			return WrapExitError(ExitFailure, "ingest batch", err)
		}
		return nil
	})
}

func formatIngestResult(r materializer.Result) string {
	return fmt.Sprintf(
		"total=%d duplicates=%d already_processed=%d inserted=%d conflicts=%d unmatched=%d marked=%d recomputed=%d skipped=%d",
		r.Stats.Total, r.Stats.Duplicates, r.Stats.AlreadyProcessed,
		r.Inserted, r.Conflicts, r.Unmatched, r.Marked, r.Recomputed, r.Skipped,
	)
}
