package summary

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	attendancerepository "github.com/smallbiznis/clockwise/internal/attendance/repository"
	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	employeedomain "github.com/smallbiznis/clockwise/internal/employee/domain"
	employeeservice "github.com/smallbiznis/clockwise/internal/employee/service"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	scheduledomain "github.com/smallbiznis/clockwise/internal/schedule/domain"
	scheduleservice "github.com/smallbiznis/clockwise/internal/schedule/service"
	"github.com/smallbiznis/clockwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	employeeID = snowflake.ID(1001)
	orgUnitID  = snowflake.ID(10)
)

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	computer attendancedomain.SummaryService
	nextID   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenSQLite(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&employeedomain.Employee{
		ID:            employeeID,
		OrgUnitID:     orgUnitID,
		IdentityToken: "card-1",
		FullName:      "Ayu Lestari",
		Active:        true,
	}).Error)

	start := datatypes.NewTime(8, 0, 0, 0)
	end := datatypes.NewTime(17, 0, 0, 0)
	require.NoError(t, db.Create(&scheduledomain.WorkSchedule{
		ID:                   snowflake.ID(1),
		OrgUnitID:            orgUnitID,
		MondayStart:          &start,
		MondayEnd:            &end,
		TuesdayStart:         &start,
		TuesdayEnd:           &end,
		BreakDurationMinutes: 60,
		EffectiveFrom:        datatypes.Date(monday.AddDate(0, -1, 0)),
	}).Error)

	log := zap.NewNop()
	clk := clock.NewFakeClock(monday.Add(20 * time.Hour))
	return &fixture{
		db:    db,
		clock: clk,
		computer: NewComputer(Params{
			DB:        db,
			Log:       log,
			GenID:     node,
			Clock:     clk,
			Employees: employeeservice.NewDirectory(employeeservice.Params{DB: db, Log: log}),
			Schedules: scheduleservice.NewResolver(scheduleservice.Params{DB: db, Log: log}),
			Events:    attendancerepository.Provide(),
			Rules:     config.NewStaticRulesHolder(config.DefaultRulesConfig()),
		}),
		nextID: 5000,
	}
}

func (f *fixture) addEvent(t *testing.T, kind ledgerdomain.EventKind, at time.Time) {
	t.Helper()
	f.nextID++
	require.NoError(t, f.db.Create(&attendancedomain.AttendanceEvent{
		ID:         snowflake.ID(f.nextID),
		EmployeeID: employeeID,
		EventDate:  attendancedomain.DateValue(at),
		EventTime:  at,
		EventKind:  kind,
		Source:     attendancedomain.EventSourceManual,
	}).Error)
}

func TestComputeDailySummaryUnknownEmployee(t *testing.T) {
	f := newFixture(t)

	_, err := f.computer.ComputeDailySummary(context.Background(), snowflake.ID(42), monday)
	assert.ErrorIs(t, err, employeedomain.ErrEmployeeNotFound)
}

func TestRecomputeStoresEvaluatedSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addEvent(t, ledgerdomain.EventKindTimeIn, monday.Add(8*time.Hour+25*time.Minute))
	f.addEvent(t, ledgerdomain.EventKindBreakStart, monday.Add(12*time.Hour))
	f.addEvent(t, ledgerdomain.EventKindBreakEnd, monday.Add(13*time.Hour))
	f.addEvent(t, ledgerdomain.EventKindTimeOut, monday.Add(17*time.Hour))

	result, err := f.computer.Recompute(ctx, employeeID, monday)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, []string{"late", "undertime"}, result.Rules)

	stored, err := f.computer.Get(ctx, employeeID, monday)
	require.NoError(t, err)
	assert.True(t, stored.IsPresent)
	assert.True(t, stored.IsLate)
	require.NotNil(t, stored.LateMinutes)
	assert.Equal(t, 10, *stored.LateMinutes)
	assert.True(t, stored.IsUndertime)
	require.NotNil(t, stored.UndertimeMinutes)
	assert.Equal(t, 25, *stored.UndertimeMinutes)
	assert.Equal(t, 60, stored.BreakMinutes)

	// a second recompute updates the same row
	f.addEvent(t, ledgerdomain.EventKindTimeOut, monday.Add(18*time.Hour))
	result, err = f.computer.Recompute(ctx, employeeID, monday)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, result.Summary.ID)
	assert.True(t, result.Summary.IsOvertime)

	var count int64
	require.NoError(t, f.db.Model(&attendancedomain.DailyAttendanceSummary{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecomputeAbsentDay(t *testing.T) {
	f := newFixture(t)

	result, err := f.computer.Recompute(context.Background(), employeeID, monday)
	require.NoError(t, err)
	assert.False(t, result.Summary.IsPresent)
	assert.Nil(t, result.Summary.TimeIn)
	require.NotNil(t, result.Summary.TotalHoursWorked)
	assert.Zero(t, *result.Summary.TotalHoursWorked)
	assert.Equal(t, []string{"absent"}, result.Rules)
}

func TestRecomputeWithoutScheduleIsNotAnError(t *testing.T) {
	f := newFixture(t)
	before := monday.AddDate(0, -2, 0)

	result, err := f.computer.Recompute(context.Background(), employeeID, before)
	require.NoError(t, err)
	assert.False(t, result.Summary.IsPresent)
	assert.Nil(t, result.Summary.ScheduledStart)
}

func TestFinalizedSummaryIsNeverRecomputed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addEvent(t, ledgerdomain.EventKindTimeIn, monday.Add(8*time.Hour))

	finalized, err := f.computer.Finalize(ctx, employeeID, monday)
	require.NoError(t, err)
	assert.True(t, finalized.IsFinalized)
	require.NotNil(t, finalized.FinalizedAt)

	f.addEvent(t, ledgerdomain.EventKindTimeOut, monday.Add(17*time.Hour))
	result, err := f.computer.Recompute(ctx, employeeID, monday)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Nil(t, result.Summary.TimeOut)

	again, err := f.computer.Finalize(ctx, employeeID, monday)
	require.NoError(t, err)
	assert.Equal(t, finalized.ID, again.ID)
}

func TestGetMissingSummary(t *testing.T) {
	f := newFixture(t)

	_, err := f.computer.Get(context.Background(), employeeID, monday)
	assert.ErrorIs(t, err, attendancedomain.ErrSummaryNotFound)

	_, err = f.computer.Get(context.Background(), employeeID, time.Time{})
	assert.ErrorIs(t, err, attendancedomain.ErrInvalidDate)
}
