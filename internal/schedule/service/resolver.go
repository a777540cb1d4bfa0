package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clockwise/internal/cache"
	scheduledomain "github.com/smallbiznis/clockwise/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cache cache.ScheduleCache `optional:"true"`
}

type Resolver struct {
	db    *gorm.DB
	log   *zap.Logger
	cache cache.ScheduleCache
}

func NewResolver(p Params) scheduledomain.Resolver {
	c := p.Cache
	if c == nil {
		c = cache.NewScheduleCache()
	}
	return &Resolver{
		db:    p.DB,
		log:   p.Log.Named("schedule.resolver"),
		cache: c,
	}
}

func (r *Resolver) Resolve(ctx context.Context, orgUnitID snowflake.ID, date time.Time) (*scheduledomain.Weekly, error) {
	if orgUnitID == 0 {
		return nil, scheduledomain.ErrInvalidOrgUnit
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	unitKey := orgUnitID.String()
	dateKey := day.Format(time.DateOnly)

	if weekly, ok := r.cache.GetWeekly(unitKey, dateKey); ok {
		return weekly, nil
	}

	var rows []scheduledomain.WorkSchedule
	err := r.db.WithContext(ctx).
		Where("org_unit_id = ? AND effective_from <= ? AND (expires_at IS NULL OR expires_at >= ?)", orgUnitID, day, day).
		Order("effective_from DESC").
		Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		r.log.Debug("no work schedule applies",
			zap.String("org_unit_id", unitKey),
			zap.String("date", dateKey),
		)
		r.cache.SetWeekly(unitKey, dateKey, nil)
		return nil, nil
	}

	weekly := rows[0].Weekly()
	r.cache.SetWeekly(unitKey, dateKey, &weekly)
	r.log.Debug("resolved work schedule",
		zap.String("org_unit_id", unitKey),
		zap.String("date", dateKey),
		zap.String("schedule_id", rows[0].ID.String()),
	)
	return &weekly, nil
}
