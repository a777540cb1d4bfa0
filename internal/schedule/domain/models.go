// Package domain holds versioned work schedules per organizational unit.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// WorkSchedule is one version of a unit's weekly schedule. The version with
// the latest effective_from that is not expired applies on a given date.
type WorkSchedule struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgUnitID            snowflake.ID    `gorm:"not null;index:ix_work_schedules_unit_effective,priority:1" json:"org_unit_id"`
	MondayStart          *datatypes.Time `json:"monday_start,omitempty"`
	MondayEnd            *datatypes.Time `json:"monday_end,omitempty"`
	TuesdayStart         *datatypes.Time `json:"tuesday_start,omitempty"`
	TuesdayEnd           *datatypes.Time `json:"tuesday_end,omitempty"`
	WednesdayStart       *datatypes.Time `json:"wednesday_start,omitempty"`
	WednesdayEnd         *datatypes.Time `json:"wednesday_end,omitempty"`
	ThursdayStart        *datatypes.Time `json:"thursday_start,omitempty"`
	ThursdayEnd          *datatypes.Time `json:"thursday_end,omitempty"`
	FridayStart          *datatypes.Time `json:"friday_start,omitempty"`
	FridayEnd            *datatypes.Time `json:"friday_end,omitempty"`
	SaturdayStart        *datatypes.Time `json:"saturday_start,omitempty"`
	SaturdayEnd          *datatypes.Time `json:"saturday_end,omitempty"`
	SundayStart          *datatypes.Time `json:"sunday_start,omitempty"`
	SundayEnd            *datatypes.Time `json:"sunday_end,omitempty"`
	BreakDurationMinutes int             `gorm:"not null;default:0" json:"break_duration_minutes"`
	EffectiveFrom        datatypes.Date  `gorm:"not null;index:ix_work_schedules_unit_effective,priority:2" json:"effective_from"`
	ExpiresAt            *datatypes.Date `json:"expires_at,omitempty"`
	CreatedAt            time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (WorkSchedule) TableName() string { return "work_schedules" }

// Window is a working window as offsets from local midnight.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Weekly is a WorkSchedule resolved into a per-weekday lookup table.
type Weekly struct {
	ScheduleID   snowflake.ID
	OrgUnitID    snowflake.ID
	Days         [7]*Window // indexed by time.Weekday
	BreakMinutes int
}

// Weekly converts the column-per-weekday row into a Weekly. A day is a
// working day only when both its start and end are set.
func (s WorkSchedule) Weekly() Weekly {
	pairs := [7][2]*datatypes.Time{
		time.Sunday:    {s.SundayStart, s.SundayEnd},
		time.Monday:    {s.MondayStart, s.MondayEnd},
		time.Tuesday:   {s.TuesdayStart, s.TuesdayEnd},
		time.Wednesday: {s.WednesdayStart, s.WednesdayEnd},
		time.Thursday:  {s.ThursdayStart, s.ThursdayEnd},
		time.Friday:    {s.FridayStart, s.FridayEnd},
		time.Saturday:  {s.SaturdayStart, s.SaturdayEnd},
	}

	weekly := Weekly{
		ScheduleID:   s.ID,
		OrgUnitID:    s.OrgUnitID,
		BreakMinutes: s.BreakDurationMinutes,
	}
	for day, pair := range pairs {
		if pair[0] == nil || pair[1] == nil {
			continue
		}
		weekly.Days[day] = &Window{
			Start: time.Duration(*pair[0]),
			End:   time.Duration(*pair[1]),
		}
	}
	return weekly
}

// On returns the window for weekday, if it is a working day.
func (w Weekly) On(day time.Weekday) (Window, bool) {
	if day < time.Sunday || day > time.Saturday || w.Days[day] == nil {
		return Window{}, false
	}
	return *w.Days[day], true
}

// Resolver finds the schedule that applies to a unit on a date. It returns
// nil without error when no schedule applies.
type Resolver interface {
	Resolve(ctx context.Context, orgUnitID snowflake.ID, date time.Time) (*Weekly, error)
}

var ErrInvalidOrgUnit = errors.New("invalid_org_unit")
