package scheduler

import (
	"context"

	"github.com/smallbiznis/clockwise/internal/attendance/materializer"
	ledgerhealthservice "github.com/smallbiznis/clockwise/internal/ledgerhealth/service"
	"go.uber.org/fx"
)

// Providers builds the scheduler without starting its loop.
var Providers = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(func(m *materializer.Materializer) Ingester { return m }),
	fx.Provide(func(m *ledgerhealthservice.Monitor) HealthChecker { return m }),
	fx.Provide(New),
)

var Module = fx.Module("scheduler",
	Providers,
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, sched *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
