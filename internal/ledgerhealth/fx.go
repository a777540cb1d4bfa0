package ledgerhealth

import (
	"github.com/smallbiznis/clockwise/internal/ledgerhealth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledgerhealth.monitor",
	fx.Provide(service.New),
)
