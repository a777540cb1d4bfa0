// Package rules classifies a daily summary into presence, lateness,
// undertime and overtime.
package rules

import (
	"math"
	"time"

	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/smallbiznis/clockwise/internal/config"
)

const (
	RuleAbsent    = "absent"
	RuleLate      = "late"
	RuleUndertime = "undertime"
	RuleOvertime  = "overtime"
)

type Config struct {
	GracePeriod       time.Duration
	OvertimeThreshold time.Duration
}

func DefaultConfig() Config {
	return Config{
		GracePeriod:       15 * time.Minute,
		OvertimeThreshold: 0,
	}
}

// FromRules picks the engine settings out of the hot-reloadable rules config.
func FromRules(cfg config.RulesConfig) Config {
	return Config{
		GracePeriod:       cfg.GracePeriod,
		OvertimeThreshold: cfg.OvertimeThreshold,
	}
}

func (c Config) withDefaults() Config {
	if c.GracePeriod < 0 {
		c.GracePeriod = 0
	}
	if c.OvertimeThreshold < 0 {
		c.OvertimeThreshold = 0
	}
	return c
}

// Engine evaluates the rules under one config snapshot.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Apply returns summary with every rule flag recomputed. Schedule data comes
// from the summary's scheduled_* snapshot.
func (e *Engine) Apply(summary attendancedomain.DailyAttendanceSummary) attendancedomain.DailyAttendanceSummary {
	out, _ := e.Evaluate(summary)
	return out
}

// Evaluate is Apply plus the names of the rules that fired, in evaluation order.
func (e *Engine) Evaluate(summary attendancedomain.DailyAttendanceSummary) (attendancedomain.DailyAttendanceSummary, []string) {
	s := summary
	s.IsPresent = false
	s.IsLate = false
	s.IsUndertime = false
	s.IsOvertime = false
	s.LateMinutes = nil
	s.UndertimeMinutes = nil

	if s.TimeIn == nil {
		return s, []string{RuleAbsent}
	}
	s.IsPresent = true

	fired := make([]string, 0, 3)

	if s.ScheduledStart != nil {
		graceDeadline := s.ScheduledStart.Add(e.cfg.GracePeriod)
		if s.TimeIn.After(graceDeadline) {
			late := lateMinutes(s.TimeIn.Sub(*s.ScheduledStart), e.cfg.GracePeriod)
			s.IsLate = true
			s.LateMinutes = &late
			fired = append(fired, RuleLate)
		}
	}

	if s.TotalHoursWorked != nil && s.ScheduledStart != nil && s.ScheduledEnd != nil {
		scheduledHours := ScheduledHours(*s.ScheduledStart, *s.ScheduledEnd, s.ScheduledBreakMinutes)
		if *s.TotalHoursWorked < scheduledHours {
			under := int(math.Round((scheduledHours - *s.TotalHoursWorked) * 60))
			s.IsUndertime = true
			s.UndertimeMinutes = &under
			fired = append(fired, RuleUndertime)
		}
	}

	if s.TimeOut != nil && s.ScheduledEnd != nil {
		if s.TimeOut.After(s.ScheduledEnd.Add(e.cfg.OvertimeThreshold)) {
			s.IsOvertime = true
			fired = append(fired, RuleOvertime)
		}
	}

	return s, fired
}

// ScheduledHours is the planned working time of a window minus its break.
func ScheduledHours(start, end time.Time, breakMinutes *int) float64 {
	minutes := end.Sub(start).Minutes()
	if breakMinutes != nil {
		minutes -= float64(*breakMinutes)
	}
	return minutes / 60
}

// lateMinutes counts the started minutes past the grace period, so an
// arrival at 08:15:30 against 08:00 is one minute late.
func lateMinutes(sinceStart, grace time.Duration) int {
	if sinceStart < 0 {
		sinceStart = -sinceStart
	}
	over := sinceStart - grace
	if over <= 0 {
		return 0
	}
	return int((over + time.Minute - 1) / time.Minute)
}
