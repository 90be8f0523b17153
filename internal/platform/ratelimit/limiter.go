package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// 滑动窗口：ZSET 里每个成员是一次请求，score 为毫秒时间戳。
// 超限时撤回本次成员，并按最老成员算出还需等待多久。
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)
redis.call("ZADD", key, now, member)
local count = redis.call("ZCARD", key)
redis.call("PEXPIRE", key, window)

if count <= limit then
  return {1, 0}
end

redis.call("ZREM", key, member)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] ~= nil then
  local retryAfter = (tonumber(oldest[2]) + window) - now
  if retryAfter < 0 then retryAfter = 0 end
  return {0, retryAfter}
end
return {0, window}
`)

var memberSeq uint64

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // 仅在 Allowed=false 时有意义
}

type Limiter struct {
	client redis.Scripter
}

func NewLimiter(client redis.Scripter) *Limiter {
	return &Limiter{client: client}
}

// Allow 在 window 内最多放行 limit 次。
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	// 同一毫秒内可能有多次请求，member 加序列号保证唯一
	member := strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatUint(atomic.AddUint64(&memberSeq, 1), 10)

	res, err := slidingWindow.Run(ctx, l.client, []string{key}, time.Now().UnixMilli(), window.Milliseconds(), limit, member).Result()
	if err != nil {
		return Decision{}, err
	}

	arr, ok := res.([]any)
	if !ok || len(arr) < 2 {
		return Decision{}, fmt.Errorf("unexpected redis eval result: %T %v", res, res)
	}

	allowed, _ := arr[0].(int64)
	var retryAfterMs int64
	switch v := arr[1].(type) {
	case int64:
		retryAfterMs = v
	case string:
		retryAfterMs, _ = strconv.ParseInt(v, 10, 64)
	}

	return Decision{
		Allowed:    allowed == 1,
		RetryAfter: time.Duration(retryAfterMs) * time.Millisecond,
	}, nil
}

// RetryAfterSeconds 向上取整，用于 Retry-After 头。
func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int64((d.RetryAfter + time.Second - 1) / time.Second)
}
