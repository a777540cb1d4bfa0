package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecordEventRequest creates a manual or imported event.
type RecordEventRequest struct {
	EmployeeID string    `json:"employee_id"`
	EventTime  time.Time `json:"event_time"`
	EventKind  string    `json:"event_kind"`
	Source     string    `json:"source"`
	RecordedBy string    `json:"recorded_by"`
}

// CorrectEventRequest amends an existing event. Zero fields keep their value.
type CorrectEventRequest struct {
	EventID     string     `json:"-"`
	EventTime   *time.Time `json:"event_time"`
	EventKind   *string    `json:"event_kind"`
	Reason      string     `json:"reason"`
	CorrectedBy string     `json:"corrected_by"`
}

type Service interface {
	RecordManual(ctx context.Context, req RecordEventRequest) (*AttendanceEvent, error)
	Correct(ctx context.Context, req CorrectEventRequest) (*AttendanceEvent, error)
	ListForDay(ctx context.Context, employeeID snowflake.ID, date time.Time) ([]AttendanceEvent, error)
}

// RecomputeResult is the outcome of recomputing one (employee, date).
type RecomputeResult struct {
	Summary DailyAttendanceSummary `json:"summary"`
	Skipped bool                   `json:"skipped"`
	Rules   []string               `json:"rules"`
}

type SummaryService interface {
	ComputeDailySummary(ctx context.Context, employeeID snowflake.ID, date time.Time) (DailyAttendanceSummary, error)
	Recompute(ctx context.Context, employeeID snowflake.ID, date time.Time) (RecomputeResult, error)
	Finalize(ctx context.Context, employeeID snowflake.ID, date time.Time) (DailyAttendanceSummary, error)
	Get(ctx context.Context, employeeID snowflake.ID, date time.Time) (*DailyAttendanceSummary, error)
}

// DayKey identifies one employee-day.
type DayKey struct {
	EmployeeID snowflake.ID
	Date       time.Time
}

// Day normalizes any timestamp on a calendar date to midnight UTC of that date.
func Day(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}

// DateValue returns the column value for a calendar date.
func DateValue(date time.Time) datatypes.Date {
	return datatypes.Date(Day(date))
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	date, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}

var (
	ErrInvalidDate      = errors.New("invalid_date")
	ErrInvalidEventTime = errors.New("invalid_event_time")
	ErrInvalidSource    = errors.New("invalid_source")
	ErrInvalidReason    = errors.New("invalid_correction_reason")
	ErrInvalidEventID   = errors.New("invalid_event_id")
	ErrEventNotFound    = errors.New("attendance_event_not_found")
	ErrSummaryNotFound  = errors.New("summary_not_found")
	ErrSummaryFinalized = errors.New("summary_finalized")
	ErrNothingToCorrect = errors.New("nothing_to_correct")
)

// EventRepository persists attendance events. Every method takes the handle to
// run on so callers can compose it inside their own transactions.
type EventRepository interface {
	// InsertFromLedger inserts event unless an event for the same ledger
	// sequence already exists; it reports whether a row was written.
	InsertFromLedger(ctx context.Context, db *gorm.DB, event *AttendanceEvent) (bool, error)
	Insert(ctx context.Context, db *gorm.DB, event *AttendanceEvent) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AttendanceEvent, error)
	ListForDay(ctx context.Context, db *gorm.DB, employeeID snowflake.ID, date time.Time) ([]AttendanceEvent, error)
	Save(ctx context.Context, db *gorm.DB, event *AttendanceEvent) error
}
