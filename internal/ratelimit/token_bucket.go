package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// tokenBucketScript refills from the Redis clock so every instance shares one
// bucket. Tokens are returned as a string to keep the fractional part.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), ts}
`

var (
	ErrEmptyKey    = errors.New("rate_limit_key_empty")
	ErrInvalidRule = errors.New("rate_limit_rule_invalid")
	errBadReply    = errors.New("rate_limit_bad_reply")
)

// Rule is a refill rate in tokens per second and a bucket capacity.
type Rule struct {
	Rate  float64
	Burst int
}

func (r Rule) Valid() bool {
	return r.Rate > 0 && r.Burst > 0
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type TokenBucket struct {
	client redis.UniversalClient
	script *redis.Script
}

func NewTokenBucket(client redis.UniversalClient) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow takes one token from the bucket at key.
func (t *TokenBucket) Allow(ctx context.Context, key string, rule Rule) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if !rule.Valid() {
		return Result{}, ErrInvalidRule
	}

	res, err := t.script.Run(ctx, t.client, []string{key},
		rule.Rate,
		rule.Burst,
		bucketTTL(rule).Milliseconds(),
	).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 3 {
		return Result{}, errBadReply
	}

	allowed := toInt(res[0]) == 1
	tokens := toFloat(res[1])

	var retryAfter time.Duration
	if !allowed {
		retryAfter = time.Duration((1 - tokens) / rule.Rate * float64(time.Second))
	}
	return Result{
		Allowed:    allowed,
		Limit:      rule.Burst,
		Remaining:  int(math.Floor(tokens)),
		RetryAfter: retryAfter,
	}, nil
}

// bucketTTL keeps an idle bucket for twice the time it needs to refill.
func bucketTTL(rule Rule) time.Duration {
	seconds := math.Ceil(float64(rule.Burst) / rule.Rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	case int64:
		return float64(val)
	default:
		return 0
	}
}
