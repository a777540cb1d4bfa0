// Package domain contains attendance events and the daily summaries derived
// from them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"gorm.io/datatypes"
)

type EventSource string

const (
	EventSourceDevice EventSource = "device"
	EventSourceManual EventSource = "manual"
	EventSourceImport EventSource = "import"
)

// Correction is one entry of an event's correction history.
type Correction struct {
	CorrectedAt  time.Time              `json:"corrected_at"`
	CorrectedBy  string                 `json:"corrected_by"`
	Reason       string                 `json:"reason"`
	PreviousTime time.Time              `json:"previous_time"`
	NewTime      time.Time              `json:"new_time"`
	PreviousKind ledgerdomain.EventKind `json:"previous_kind"`
	NewKind      ledgerdomain.EventKind `json:"new_kind"`
}

// AttendanceEvent is a verified scan or a manual entry for one employee.
// Events are corrected in place with history appended; they are never deleted.
// IsDeduplicated marks a scan collapsed into an earlier one. Duplicates are
// never materialized, so stored events carry false.
type AttendanceEvent struct {
	ID                snowflake.ID                    `gorm:"primaryKey" json:"id"`
	EmployeeID        snowflake.ID                    `gorm:"not null;index:ix_attendance_events_employee_date,priority:1" json:"employee_id"`
	EventDate         datatypes.Date                  `gorm:"not null;index:ix_attendance_events_employee_date,priority:2" json:"event_date"`
	EventTime         time.Time                       `gorm:"not null" json:"event_time"`
	EventKind         ledgerdomain.EventKind          `gorm:"type:text;not null" json:"event_kind"`
	LedgerSequenceID  *int64                          `gorm:"uniqueIndex:ux_attendance_events_ledger_sequence" json:"ledger_sequence_id,omitempty"`
	IsDeduplicated    bool                            `gorm:"not null;default:false" json:"is_deduplicated"`
	HashVerified      bool                            `gorm:"not null;default:false" json:"hash_verified"`
	Source            EventSource                     `gorm:"type:text;not null" json:"source"`
	CorrectedAt       *time.Time                      `json:"corrected_at,omitempty"`
	CorrectedBy       *string                         `gorm:"type:text" json:"corrected_by,omitempty"`
	CorrectionReason  *string                         `gorm:"type:text" json:"correction_reason,omitempty"`
	OriginalEventTime *time.Time                      `json:"original_event_time,omitempty"`
	Corrections       datatypes.JSONSlice[Correction] `gorm:"type:json" json:"corrections,omitempty"`
	CreatedAt         time.Time                       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time                       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (AttendanceEvent) TableName() string { return "attendance_events" }

// DailyAttendanceSummary is the per-employee, per-day attendance fact.
// Finalized rows are locked for payroll and are never recomputed.
type DailyAttendanceSummary struct {
	ID                    snowflake.ID   `gorm:"primaryKey" json:"id"`
	EmployeeID            snowflake.ID   `gorm:"not null;uniqueIndex:ux_daily_summaries_employee_date,priority:1" json:"employee_id"`
	SummaryDate           datatypes.Date `gorm:"not null;uniqueIndex:ux_daily_summaries_employee_date,priority:2" json:"summary_date"`
	TimeIn                *time.Time     `json:"time_in"`
	TimeOut               *time.Time     `json:"time_out"`
	BreakMinutes          int            `gorm:"not null;default:0" json:"break_minutes"`
	TotalHoursWorked      *float64       `json:"total_hours_worked"`
	RegularHours          *float64       `json:"regular_hours"`
	OvertimeHours         *float64       `json:"overtime_hours"`
	IsPresent             bool           `gorm:"not null;default:false" json:"is_present"`
	IsLate                bool           `gorm:"not null;default:false" json:"is_late"`
	IsUndertime           bool           `gorm:"not null;default:false" json:"is_undertime"`
	IsOvertime            bool           `gorm:"not null;default:false" json:"is_overtime"`
	LateMinutes           *int           `json:"late_minutes"`
	UndertimeMinutes      *int           `json:"undertime_minutes"`
	ScheduledStart        *time.Time     `json:"scheduled_start,omitempty"`
	ScheduledEnd          *time.Time     `json:"scheduled_end,omitempty"`
	ScheduledBreakMinutes *int           `json:"scheduled_break_minutes,omitempty"`
	LedgerSequenceFrom    *int64         `json:"ledger_sequence_from,omitempty"`
	LedgerSequenceTo      *int64         `json:"ledger_sequence_to,omitempty"`
	LedgerVerified        bool           `gorm:"not null;default:false" json:"ledger_verified"`
	IsFinalized           bool           `gorm:"not null;default:false" json:"is_finalized"`
	FinalizedAt           *time.Time     `json:"finalized_at,omitempty"`
	ComputedAt            time.Time      `gorm:"not null" json:"computed_at"`
	CreatedAt             time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (DailyAttendanceSummary) TableName() string { return "daily_attendance_summaries" }
