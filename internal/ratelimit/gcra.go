package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// gcraScript implements the generic cell rate algorithm. The key holds the
// theoretical arrival time (TAT) in milliseconds; a request is admitted when
// it arrives no earlier than TAT minus the burst tolerance.
//
// ARGV: emission interval ms, burst.
// Returns {allowed, remaining, retry_after_ms}.
const gcraScript = `
local emission = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local tolerance = emission * burst

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local tat = tonumber(redis.call("GET", KEYS[1]))
if tat == nil or tat < now then
  tat = now
end

local next_tat = tat + emission
local allow_at = next_tat - tolerance
if now < allow_at then
  return {0, 0, allow_at - now}
end

redis.call("SET", KEYS[1], next_tat, "PX", next_tat - now)
return {1, math.floor((now - allow_at) / emission), 0}
`

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits at most burst requests at once per key, refilling one
// slot every 1/rate seconds. State lives in redis so every replica shares it.
type Limiter struct {
	client   redis.Scripter
	script   *redis.Script
	emission time.Duration
	burst    int
}

func NewLimiter(client redis.Scripter, rate float64, burst int) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("rate limiter needs a redis client")
	}
	if rate <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rate limiter rate %.3f and burst %d must be positive", rate, burst)
	}
	return &Limiter{
		client:   client,
		script:   redis.NewScript(gcraScript),
		emission: emissionInterval(rate),
		burst:    burst,
	}, nil
}

// Allow records one request for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("rate limiter key is empty")
	}
	vals, err := l.script.Run(ctx, l.client, []string{key}, l.emission.Milliseconds(), l.burst).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("rate limiter script returned %d values", len(vals))
	}
	return Decision{
		Allowed:    vals[0] == 1,
		Limit:      l.burst,
		Remaining:  int(vals[1]),
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// emissionInterval is the time one request "costs", at least 1ms.
func emissionInterval(rate float64) time.Duration {
	d := time.Duration(float64(time.Second) / rate)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}
