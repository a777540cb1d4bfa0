package attendance

import (
	"github.com/smallbiznis/clockwise/internal/attendance/materializer"
	"github.com/smallbiznis/clockwise/internal/attendance/repository"
	"github.com/smallbiznis/clockwise/internal/attendance/service"
	"github.com/smallbiznis/clockwise/internal/attendance/summary"
	"go.uber.org/fx"
)

var Module = fx.Module("attendance.service",
	fx.Provide(repository.Provide),
	fx.Provide(summary.NewComputer),
	fx.Provide(service.NewService),
	fx.Provide(materializer.New),
)
