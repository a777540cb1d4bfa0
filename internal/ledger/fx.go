package ledger

import (
	"github.com/smallbiznis/clockwise/internal/ledger/pipeline"
	"github.com/smallbiznis/clockwise/internal/ledger/poller"
	"github.com/smallbiznis/clockwise/internal/ledger/reconcile"
	"github.com/smallbiznis/clockwise/internal/ledger/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.pipeline",
	fx.Provide(repository.Provide),
	fx.Provide(poller.New),
	fx.Provide(reconcile.New),
	fx.Provide(pipeline.New),
)
