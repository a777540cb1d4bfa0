package summary

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/smallbiznis/clockwise/internal/attendance/rules"
	"github.com/smallbiznis/clockwise/internal/clock"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	scheduledomain "github.com/smallbiznis/clockwise/internal/schedule/domain"
)

// Input is everything Build needs for one employee-day.
type Input struct {
	EmployeeID snowflake.ID
	Date       time.Time
	Location   *time.Location
	Schedule   *scheduledomain.Weekly
	// Events must be ordered by event time.
	Events     []attendancedomain.AttendanceEvent
	ComputedAt time.Time
}

// Build reduces a day's events and schedule into raw time metrics. Rule
// flags are left unset; see rules.Engine.
func Build(in Input) attendancedomain.DailyAttendanceSummary {
	s := attendancedomain.DailyAttendanceSummary{
		EmployeeID:       in.EmployeeID,
		SummaryDate:      attendancedomain.DateValue(in.Date),
		ComputedAt:       in.ComputedAt,
		TotalHoursWorked: ptr(0.0),
	}
	if in.Schedule == nil {
		return s
	}

	window, hasWindow := in.Schedule.On(attendancedomain.Day(in.Date).Weekday())
	if hasWindow {
		midnight := clock.StartOfDay(in.Date, in.Location)
		start := midnight.Add(window.Start).UTC()
		end := midnight.Add(window.End).UTC()
		s.ScheduledStart = &start
		s.ScheduledEnd = &end
		s.ScheduledBreakMinutes = ptr(in.Schedule.BreakMinutes)
	}

	if len(in.Events) == 0 {
		return s
	}

	var (
		timeIn      *time.Time
		timeOut     *time.Time
		openBreaks  []time.Time
		breakTotal  time.Duration
		seqFrom     *int64
		seqTo       *int64
		deviceCount int
		verified    = true
	)
	for _, event := range in.Events {
		at := event.EventTime.UTC()
		switch event.EventKind {
		case ledgerdomain.EventKindTimeIn:
			if timeIn == nil {
				timeIn = &at
			}
		case ledgerdomain.EventKindTimeOut:
			timeOut = &at
		case ledgerdomain.EventKindBreakStart:
			openBreaks = append(openBreaks, at)
		case ledgerdomain.EventKindBreakEnd:
			if n := len(openBreaks); n > 0 {
				breakTotal += at.Sub(openBreaks[n-1])
				openBreaks = openBreaks[:n-1]
			}
		}

		if event.LedgerSequenceID != nil {
			seq := *event.LedgerSequenceID
			if seqFrom == nil || seq < *seqFrom {
				seqFrom = &seq
			}
			if seqTo == nil || seq > *seqTo {
				seqTo = &seq
			}
		}
		if event.Source == attendancedomain.EventSourceDevice {
			deviceCount++
			verified = verified && event.HashVerified
		}
	}

	s.TimeIn = timeIn
	s.TimeOut = timeOut
	s.BreakMinutes = int(math.Round(breakTotal.Minutes()))
	s.LedgerSequenceFrom = seqFrom
	s.LedgerSequenceTo = seqTo
	s.LedgerVerified = deviceCount > 0 && verified

	if timeIn == nil || timeOut == nil {
		s.TotalHoursWorked = nil
		return s
	}

	worked := round2((timeOut.Sub(*timeIn).Minutes() - float64(s.BreakMinutes)) / 60)
	worked = math.Max(0, worked)
	s.TotalHoursWorked = &worked

	regular, overtime := worked, 0.0
	if hasWindow {
		scheduledHours := rules.ScheduledHours(*s.ScheduledStart, *s.ScheduledEnd, s.ScheduledBreakMinutes)
		if worked > scheduledHours {
			regular = round2(scheduledHours)
			overtime = round2(worked - scheduledHours)
		}
	}
	s.RegularHours = &regular
	s.OvertimeHours = &overtime

	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr[T any](v T) *T {
	return &v
}
