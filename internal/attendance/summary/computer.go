// Package summary derives the daily attendance summary of an employee from
// their attendance events and work schedule.
package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/smallbiznis/clockwise/internal/attendance/rules"
	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	employeedomain "github.com/smallbiznis/clockwise/internal/employee/domain"
	obslogger "github.com/smallbiznis/clockwise/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clockwise/internal/observability/metrics"
	"github.com/smallbiznis/clockwise/internal/observability/tracing"
	scheduledomain "github.com/smallbiznis/clockwise/internal/schedule/domain"
	"github.com/smallbiznis/clockwise/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outcomeComputed  = "computed"
	outcomeFinalized = "skipped_finalized"
)

var tracer = otel.Tracer("clockwise/attendance")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Employees employeedomain.Directory
	Schedules scheduledomain.Resolver
	Events    attendancedomain.EventRepository
	Rules     *config.RulesConfigHolder `optional:"true"`
	Metrics   *obsmetrics.Metrics       `optional:"true"`
}

type Computer struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	employees employeedomain.Directory
	schedules scheduledomain.Resolver
	events    attendancedomain.EventRepository
	rules     *config.RulesConfigHolder
	metrics   *obsmetrics.Metrics
}

func NewComputer(p Params) attendancedomain.SummaryService {
	return &Computer{
		db:        p.DB,
		log:       p.Log.Named("attendance.summary"),
		genID:     p.GenID,
		clock:     p.Clock,
		employees: p.Employees,
		schedules: p.Schedules,
		events:    p.Events,
		rules:     p.Rules,
		metrics:   p.Metrics,
	}
}

// ComputeDailySummary returns the raw metrics for one employee-day without
// applying rules or storing anything.
func (c *Computer) ComputeDailySummary(ctx context.Context, employeeID snowflake.ID, date time.Time) (attendancedomain.DailyAttendanceSummary, error) {
	if date.IsZero() {
		return attendancedomain.DailyAttendanceSummary{}, attendancedomain.ErrInvalidDate
	}
	day := attendancedomain.Day(date)

	employee, err := c.employees.GetByID(ctx, employeeID)
	if err != nil {
		return attendancedomain.DailyAttendanceSummary{}, err
	}

	weekly, err := c.schedules.Resolve(ctx, employee.OrgUnitID, day)
	if err != nil {
		return attendancedomain.DailyAttendanceSummary{}, fmt.Errorf("resolve schedule: %w", err)
	}

	var events []attendancedomain.AttendanceEvent
	if weekly != nil {
		events, err = c.events.ListForDay(ctx, c.db, employeeID, day)
		if err != nil {
			return attendancedomain.DailyAttendanceSummary{}, err
		}
	}

	return Build(Input{
		EmployeeID: employeeID,
		Date:       day,
		Location:   c.rules.Get().Location(),
		Schedule:   weekly,
		Events:     events,
		ComputedAt: c.clock.Now(),
	}), nil
}

// Recompute computes, applies the rules and stores the summary. A finalized
// summary is returned untouched with Skipped set.
func (c *Computer) Recompute(ctx context.Context, employeeID snowflake.ID, date time.Time) (attendancedomain.RecomputeResult, error) {
	ctx, span := tracer.Start(ctx, "attendance.summary.recompute")
	defer span.End()
	span.SetAttributes(
		attribute.String("attendance.employee_id", employeeID.String()),
		attribute.String("attendance.date", attendancedomain.Day(date).Format(time.DateOnly)),
	)

	computed, err := c.ComputeDailySummary(ctx, employeeID, date)
	if err != nil {
		tracing.RecordError(span, err)
		return attendancedomain.RecomputeResult{}, err
	}

	engine := rules.New(rules.FromRules(c.rules.Get()))
	evaluated, fired := engine.Evaluate(computed)

	stored, err := c.upsert(ctx, evaluated)
	if errors.Is(err, attendancedomain.ErrSummaryFinalized) {
		c.metrics.RecordSummary(ctx, outcomeFinalized)
		obslogger.WithContext(ctx, c.log).Debug("summary is finalized, skipping recompute",
			zap.String("employee_id", employeeID.String()),
			zap.Time("date", attendancedomain.Day(date)),
		)
		return attendancedomain.RecomputeResult{Summary: stored, Skipped: true}, nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return attendancedomain.RecomputeResult{}, err
	}

	c.metrics.RecordSummary(ctx, outcomeComputed)
	return attendancedomain.RecomputeResult{Summary: stored, Rules: fired}, nil
}

// Finalize locks the summary against further recomputation, computing it
// first when it does not exist yet.
func (c *Computer) Finalize(ctx context.Context, employeeID snowflake.ID, date time.Time) (attendancedomain.DailyAttendanceSummary, error) {
	existing, err := c.Get(ctx, employeeID, date)
	if errors.Is(err, attendancedomain.ErrSummaryNotFound) {
		if _, err := c.Recompute(ctx, employeeID, date); err != nil {
			return attendancedomain.DailyAttendanceSummary{}, err
		}
		existing, err = c.Get(ctx, employeeID, date)
	}
	if err != nil {
		return attendancedomain.DailyAttendanceSummary{}, err
	}
	if existing.IsFinalized {
		return *existing, nil
	}

	now := c.clock.Now()
	err = c.db.WithContext(ctx).
		Model(&attendancedomain.DailyAttendanceSummary{}).
		Where("id = ? AND is_finalized = ?", existing.ID, false).
		Updates(map[string]any{
			"is_finalized": true,
			"finalized_at": now,
			"updated_at":   now,
		}).Error
	if err != nil {
		return attendancedomain.DailyAttendanceSummary{}, err
	}

	existing.IsFinalized = true
	existing.FinalizedAt = &now
	existing.UpdatedAt = now
	return *existing, nil
}

func (c *Computer) Get(ctx context.Context, employeeID snowflake.ID, date time.Time) (*attendancedomain.DailyAttendanceSummary, error) {
	if date.IsZero() {
		return nil, attendancedomain.ErrInvalidDate
	}
	var rows []attendancedomain.DailyAttendanceSummary
	err := c.db.WithContext(ctx).
		Where("employee_id = ? AND summary_date = ?", employeeID, attendancedomain.DateValue(date)).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, attendancedomain.ErrSummaryNotFound
	}
	return &rows[0], nil
}

// upsert stores summary unless the stored row is finalized, in which case it
// returns the stored row and ErrSummaryFinalized.
func (c *Computer) upsert(ctx context.Context, summary attendancedomain.DailyAttendanceSummary) (attendancedomain.DailyAttendanceSummary, error) {
	stored, err := c.upsertOnce(ctx, summary)
	if err != nil && db.IsDuplicateKeyErr(err) {
		// a concurrent recompute created the row first
		stored, err = c.upsertOnce(ctx, summary)
	}
	return stored, err
}

func (c *Computer) upsertOnce(ctx context.Context, summary attendancedomain.DailyAttendanceSummary) (attendancedomain.DailyAttendanceSummary, error) {
	var result attendancedomain.DailyAttendanceSummary
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []attendancedomain.DailyAttendanceSummary
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("employee_id = ? AND summary_date = ?", summary.EmployeeID, summary.SummaryDate).
			Limit(1).
			Find(&existing).Error
		if err != nil {
			return err
		}

		now := c.clock.Now()
		summary.UpdatedAt = now
		if len(existing) == 0 {
			summary.ID = c.genID.Generate()
			summary.CreatedAt = now
			result = summary
			return tx.Create(&result).Error
		}

		current := existing[0]
		if current.IsFinalized {
			result = current
			return attendancedomain.ErrSummaryFinalized
		}
		summary.ID = current.ID
		summary.CreatedAt = current.CreatedAt
		result = summary
		return tx.Save(&result).Error
	})
	return result, err
}
