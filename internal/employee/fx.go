package employee

import (
	"github.com/smallbiznis/clockwise/internal/employee/service"
	"go.uber.org/fx"
)

var Module = fx.Module("employee.directory",
	fx.Provide(service.NewDirectory),
)
