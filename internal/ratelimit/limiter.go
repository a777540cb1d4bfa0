// Package ratelimit throttles the manual write paths of the API with Redis
// token buckets shared across instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/clockwise/internal/config"
)

const (
	keyHealthCheck  = "clockwise:ratelimit:health_check"
	keyManualEvent  = "clockwise:ratelimit:manual_event:%s"
	anonymousCaller = "anonymous"
)

var ErrRateLimited = errors.New("rate_limited")

type Limiter struct {
	bucket      *TokenBucket
	healthCheck Rule
	manualEvent Rule
}

var ErrRedisRequired = errors.New("rate limiting requires REDIS_ADDR")

// NewLimiter returns nil when rate limiting is disabled; a nil Limiter allows
// everything.
func NewLimiter(cfg config.Config, bucket *TokenBucket) (*Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	if bucket == nil {
		return nil, ErrRedisRequired
	}
	l := &Limiter{
		bucket:      bucket,
		healthCheck: Rule{Rate: cfg.RateLimit.HealthCheckRate, Burst: cfg.RateLimit.HealthCheckBurst},
		manualEvent: Rule{Rate: cfg.RateLimit.ManualEventRate, Burst: cfg.RateLimit.ManualEventBurst},
	}
	if !l.healthCheck.Valid() || !l.manualEvent.Valid() {
		return nil, fmt.Errorf("rate limit rules must be positive: %w", ErrInvalidRule)
	}
	return l, nil
}

// AllowHealthCheck throttles on-demand ledger audits, which scan the whole chain.
func (l *Limiter) AllowHealthCheck(ctx context.Context) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyHealthCheck, l.healthCheck)
}

// AllowManualEvent throttles manual event writes and corrections per caller.
func (l *Limiter) AllowManualEvent(ctx context.Context, caller string) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	caller = strings.ToLower(strings.TrimSpace(caller))
	if caller == "" {
		caller = anonymousCaller
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyManualEvent, caller), l.manualEvent)
}
