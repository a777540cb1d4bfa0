package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type SummarizeOptions struct {
	*RootOptions
	Employee string
	Date     string
	Finalize bool
}

func NewSummarizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SummarizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Recompute one employee's daily summary",
		Long: `Recompute the daily attendance summary of one employee from the
stored attendance events. Finalized days are left untouched.

Example:
  clockwise summarize --employee 1790123456789 --date 2026-03-02
  clockwise summarize --employee 1790123456789 --date 2026-03-02 --finalize`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			employeeID, err := snowflake.ParseString(strings.TrimSpace(opts.Employee))
			if err != nil || employeeID <= 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --employee %q", opts.Employee))
			}
			date, err := attendancedomain.ParseDate(strings.TrimSpace(opts.Date))
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --date %q: want YYYY-MM-DD", opts.Date))
			}
			return runSummarize(cmd.Context(), opts, employeeID, date, opts.formatter(cmd))
		},
	}

	cmd.Flags().StringVar(&opts.Employee, "employee", "", "employee id (required)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "calendar date YYYY-MM-DD (required)")
	cmd.Flags().BoolVar(&opts.Finalize, "finalize", false, "lock the summary for payroll after recomputing")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func runSummarize(ctx context.Context, opts *SummarizeOptions, employeeID snowflake.ID, date time.Time, out *OutputFormatter) error {
	var summaries attendancedomain.SummaryService
	options := fx.Options(
		domainModules(),
		fx.Populate(&summaries),
	)

	return withApp(ctx, options, func(ctx context.Context) error {
		result, err := summaries.Recompute(ctx, employeeID, date)
		if err != nil {
			return WrapExitError(ExitFailure, "recompute summary", err)
		}
		if opts.Finalize {
			finalized, err := summaries.Finalize(ctx, employeeID, date)
			if err != nil {
				return WrapExitError(ExitFailure, "finalize summary", err)
			}
			result.Summary = finalized
		}
		return out.Success(formatRecompute(employeeID, date, result), result)
	})
}

func formatRecompute(employeeID snowflake.ID, date time.Time, r attendancedomain.RecomputeResult) string {
	hours := "-"
	if r.Summary.TotalHoursWorked != nil {
		hours = fmt.Sprintf("%.2f", *r.Summary.TotalHoursWorked)
	}
	rules := "-"
	if len(r.Rules) > 0 {
		rules = strings.Join(r.Rules, ",")
	}
	return fmt.Sprintf(
		"employee=%s date=%s present=%t late=%t undertime=%t overtime=%t hours=%s rules=%s skipped=%t finalized=%t",
		employeeID, date.Format(time.DateOnly), r.Summary.IsPresent, r.Summary.IsLate, r.Summary.IsUndertime,
		r.Summary.IsOvertime, hours, rules, r.Skipped, r.Summary.IsFinalized,
	)
}
