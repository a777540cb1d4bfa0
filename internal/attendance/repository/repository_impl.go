package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/smallbiznis/clockwise/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type eventRepo struct{}

func Provide() attendancedomain.EventRepository {
	return &eventRepo{}
}

func (r *eventRepo) InsertFromLedger(ctx context.Context, conn *gorm.DB, event *attendancedomain.AttendanceEvent) (bool, error) {
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ledger_sequence_id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *eventRepo) Insert(ctx context.Context, conn *gorm.DB, event *attendancedomain.AttendanceEvent) error {
	return conn.WithContext(ctx).Create(event).Error
}

func (r *eventRepo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*attendancedomain.AttendanceEvent, error) {
	var rows []attendancedomain.AttendanceEvent
	err := conn.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *eventRepo) ListForDay(ctx context.Context, conn *gorm.DB, employeeID snowflake.ID, date time.Time) ([]attendancedomain.AttendanceEvent, error) {
	var rows []attendancedomain.AttendanceEvent
	err := conn.WithContext(ctx).
		Where("employee_id = ? AND event_date = ?", employeeID, attendancedomain.DateValue(date)).
		Order("event_time ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *eventRepo) Save(ctx context.Context, conn *gorm.DB, event *attendancedomain.AttendanceEvent) error {
	return conn.WithContext(ctx).Save(event).Error
}
