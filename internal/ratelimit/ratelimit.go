package ratelimit

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter is a Redis-backed token bucket shared across API replicas. The
// in-process limiter in the app package protects a single instance; this one
// enforces a global budget per client key.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// New returns a Limiter allowing limit requests per window for each key.
// prefix namespaces the Redis keys so independent limiters can share a server.
func New(rdb *redis.Client, limit int, window time.Duration, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Limiter{rdb: rdb, limit: limit, window: window, prefix: "rl:" + prefix + ":"}
}

// Allow consumes one token for key. A nil client or non-positive limit
// disables limiting entirely.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.rdb == nil || l.limit <= 0 {
		return true, nil
	}
	interval := l.window.Milliseconds() / int64(l.limit)
	if interval <= 0 {
		interval = 1
	}
	res, err := l.rdb.Eval(ctx, bucketScript, []string{l.prefix + key},
		l.limit, interval, time.Now().UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Middleware rejects requests with 429 once the caller identified by keyFunc
// has exhausted its tokens. Redis errors fail closed.
func (l *Limiter) Middleware(keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), keyFunc(c))
		if err != nil || !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.Next()
	}
}

// bucketScript refills tokens lazily based on elapsed time. State is a hash
// of remaining tokens plus the last refill timestamp, expired once a full
// bucket could have refilled.
const bucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = capacity
  ts = now
else
  local refill = math.floor((now - ts) / interval)
  if refill > 0 then
    tokens = math.min(tokens + refill, capacity)
    ts = ts + refill * interval
  end
end
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HMSET', key, 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', key, interval * capacity)
return allowed
`
