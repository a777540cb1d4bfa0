package schedule

import (
	"github.com/smallbiznis/clockwise/internal/cache"
	"github.com/smallbiznis/clockwise/internal/schedule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("schedule.resolver",
	fx.Provide(cache.NewScheduleCache),
	fx.Provide(service.NewResolver),
)
