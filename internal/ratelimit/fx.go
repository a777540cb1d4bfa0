package ratelimit

import "go.uber.org/fx"

// Module expects the Redis client provided by the lease module.
var Module = fx.Module("rate.limit",
	fx.Provide(NewTokenBucket),
	fx.Provide(NewLimiter),
)
