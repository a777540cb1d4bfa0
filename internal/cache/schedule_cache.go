package cache

import (
	"strings"
	"time"

	scheduledomain "github.com/smallbiznis/clockwise/internal/schedule/domain"
)

const (
	defaultScheduleTTL     = 5 * time.Minute
	defaultMissScheduleTTL = 30 * time.Second
)

// ScheduleCache stores resolved schedules per (org unit, date). A nil
// schedule is cached too, for a shorter time, so days without a schedule do
// not hit the database on every recompute.
type ScheduleCache interface {
	GetWeekly(orgUnitID, date string) (*scheduledomain.Weekly, bool)
	SetWeekly(orgUnitID, date string, weekly *scheduledomain.Weekly)
}

type scheduleCache struct {
	weekly  Cache[string, *scheduledomain.Weekly]
	ttl     time.Duration
	missTTL time.Duration
}

// NewScheduleCache returns an in-memory cache tuned for summary recomputes.
func NewScheduleCache() ScheduleCache {
	return &scheduleCache{
		weekly:  NewTTLCache[string, *scheduledomain.Weekly](),
		ttl:     defaultScheduleTTL,
		missTTL: defaultMissScheduleTTL,
	}
}

func (c *scheduleCache) GetWeekly(orgUnitID, date string) (*scheduledomain.Weekly, bool) {
	return c.weekly.Get(cacheKey(orgUnitID, date))
}

func (c *scheduleCache) SetWeekly(orgUnitID, date string, weekly *scheduledomain.Weekly) {
	ttl := c.ttl
	if weekly == nil {
		ttl = c.missTTL
	}
	c.weekly.Set(cacheKey(orgUnitID, date), weekly, ttl)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
