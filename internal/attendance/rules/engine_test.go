package rules

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) *time.Time {
	t := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	return &t
}

func atSecond(hour, minute, second int) *time.Time {
	t := *at(hour, minute)
	t = t.Add(time.Duration(second) * time.Second)
	return &t
}

func hours(v float64) *float64 { return &v }

func scheduled(s attendancedomain.DailyAttendanceSummary) attendancedomain.DailyAttendanceSummary {
	breakMinutes := 60
	s.ScheduledStart = at(8, 0)
	s.ScheduledEnd = at(17, 0)
	s.ScheduledBreakMinutes = &breakMinutes
	return s
}

func TestApplyWithinGrace(t *testing.T) {
	out := New(DefaultConfig()).Apply(scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 10)}))

	assert.True(t, out.IsPresent)
	assert.False(t, out.IsLate)
	assert.Nil(t, out.LateMinutes)
}

func TestApplyLate(t *testing.T) {
	out := New(DefaultConfig()).Apply(scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 25)}))

	assert.True(t, out.IsLate)
	require.NotNil(t, out.LateMinutes)
	assert.Equal(t, 10, *out.LateMinutes)
}

func TestApplyGraceBoundaryInclusive(t *testing.T) {
	out := New(DefaultConfig()).Apply(scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 15)}))

	assert.False(t, out.IsLate)
	assert.Nil(t, out.LateMinutes)
}

func TestApplyLateRoundsPartialMinutesUp(t *testing.T) {
	engine := New(DefaultConfig())
	cases := []struct {
		name    string
		arrival time.Duration
		want    int
	}{
		{"half a minute past grace", 15*time.Minute + 30*time.Second, 1},
		{"one second past grace", 15*time.Minute + time.Second, 1},
		{"just under ten minutes", 24*time.Minute + 59*time.Second, 10},
		{"exactly ten minutes", 25 * time.Minute, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			timeIn := day.Add(8*time.Hour + tc.arrival)
			out := engine.Apply(scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: &timeIn}))

			assert.True(t, out.IsLate)
			require.NotNil(t, out.LateMinutes)
			assert.Equal(t, tc.want, *out.LateMinutes)
		})
	}
}

func TestApplyAbsentShortCircuits(t *testing.T) {
	stale := 12
	in := scheduled(attendancedomain.DailyAttendanceSummary{
		TimeOut:          at(18, 0),
		TotalHoursWorked: hours(0),
		IsLate:           true,
		LateMinutes:      &stale,
		IsOvertime:       true,
	})

	out, fired := New(DefaultConfig()).Evaluate(in)

	assert.False(t, out.IsPresent)
	assert.False(t, out.IsLate)
	assert.False(t, out.IsUndertime)
	assert.False(t, out.IsOvertime)
	assert.Nil(t, out.LateMinutes)
	assert.Nil(t, out.UndertimeMinutes)
	assert.Equal(t, []string{RuleAbsent}, fired)
}

func TestApplyChecksAreIndependent(t *testing.T) {
	out, fired := New(DefaultConfig()).Evaluate(scheduled(attendancedomain.DailyAttendanceSummary{
		TimeIn:           at(8, 40),
		TimeOut:          at(16, 0),
		TotalHoursWorked: hours(6.33),
	}))

	assert.True(t, out.IsLate)
	assert.True(t, out.IsUndertime)
	assert.False(t, out.IsOvertime)
	require.NotNil(t, out.UndertimeMinutes)
	assert.Equal(t, 100, *out.UndertimeMinutes)
	assert.Equal(t, []string{RuleLate, RuleUndertime}, fired)
}

func TestApplyOvertimeThreshold(t *testing.T) {
	s := scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 0), TimeOut: at(17, 20)})

	assert.True(t, New(DefaultConfig()).Apply(s).IsOvertime)
	assert.False(t, New(Config{GracePeriod: 15 * time.Minute, OvertimeThreshold: 30 * time.Minute}).Apply(s).IsOvertime)
}

func TestApplyDoesNotTouchHours(t *testing.T) {
	in := scheduled(attendancedomain.DailyAttendanceSummary{
		TimeIn:           at(8, 0),
		TimeOut:          at(17, 0),
		TotalHoursWorked: hours(8),
		RegularHours:     hours(8),
		OvertimeHours:    hours(0),
	})
	out := New(DefaultConfig()).Apply(in)

	assert.Equal(t, in.TotalHoursWorked, out.TotalHoursWorked)
	assert.Equal(t, in.RegularHours, out.RegularHours)
	assert.Equal(t, in.OvertimeHours, out.OvertimeHours)
}

func TestRuleScenariosGolden(t *testing.T) {
	scenarios := []struct {
		name    string
		summary attendancedomain.DailyAttendanceSummary
	}{
		{"on_time_full_day", scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 0), TimeOut: at(17, 0), TotalHoursWorked: hours(8)})},
		{"within_grace", scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 10), TimeOut: at(17, 0), TotalHoursWorked: hours(8)})},
		{"grace_boundary", scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 15), TimeOut: at(17, 0), TotalHoursWorked: hours(8)})},
		{"late_by_seconds", scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: atSecond(8, 15, 30), TimeOut: at(17, 0), TotalHoursWorked: hours(7.74)})},
		{"late_and_short", scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 25), TimeOut: at(17, 0), TotalHoursWorked: hours(7.58)})},
		{"late_and_overtime", scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 40), TimeOut: at(18, 0), TotalHoursWorked: hours(8.33)})},
		{"left_early", scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 0), TimeOut: at(15, 0), TotalHoursWorked: hours(6)})},
		{"open_day", scheduled(attendancedomain.DailyAttendanceSummary{TimeIn: at(8, 5)})},
		{"absent", scheduled(attendancedomain.DailyAttendanceSummary{})},
		{"no_schedule", attendancedomain.DailyAttendanceSummary{TimeIn: at(9, 0), TimeOut: at(17, 0), TotalHoursWorked: hours(7)}},
	}

	engine := New(DefaultConfig())
	var buf bytes.Buffer
	for _, sc := range scenarios {
		out, fired := engine.Evaluate(sc.summary)
		rules := "-"
		if len(fired) > 0 {
			rules = strings.Join(fired, ",")
		}
		fmt.Fprintf(&buf, "%s: present=%t late=%t late_minutes=%s undertime=%t undertime_minutes=%s overtime=%t rules=%s\n",
			sc.name,
			out.IsPresent,
			out.IsLate,
			formatMinutes(out.LateMinutes),
			out.IsUndertime,
			formatMinutes(out.UndertimeMinutes),
			out.IsOvertime,
			rules,
		)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "rule_scenarios", buf.Bytes())
}

func formatMinutes(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
