package healthexport

import (
	"github.com/smallbiznis/clockwise/internal/config"
	ledgerhealthdomain "github.com/smallbiznis/clockwise/internal/ledgerhealth/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("ledgerhealth.export",
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, pusher Pusher) ledgerhealthdomain.Exporter {
		if pusher == nil {
			return nil
		}
		return NewExporter(pusher, cfg.AppName, cfg.InstanceID)
	}),
)
