package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"seostats.local/internal/mozscape"
	"seostats.local/internal/platform/metrics"
)

// Key 同一目标不同列组合的结果互不相同，列掩码必须进 key。
func Key(cols mozscape.Column, target string) string {
	return "ms:" + strconv.FormatUint(uint64(cols), 10) + ":" + target
}

// MetricsCache L1 ristretto + L2 Redis。
// client 为 nil 时只用本地缓存。
type MetricsCache struct {
	client redis.Cmdable
	local  *LocalCache
	ttl    time.Duration
}

func NewMetricsCache(client redis.Cmdable, local *LocalCache, ttl time.Duration) *MetricsCache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &MetricsCache{client: client, local: local, ttl: ttl}
}

// Get 未命中返回 ok=false、err=nil。
func (c *MetricsCache) Get(ctx context.Context, cols mozscape.Column, target string) (mozscape.MetricRecord, bool, error) {
	key := Key(cols, target)

	// L1
	if c.local != nil {
		if raw, ok := c.local.Get(key); ok {
			if rec, err := decode(raw); err == nil {
				metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
				return rec, true, nil
			}
			c.local.Del(key)
		}
		metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()
	}
	if c.client == nil {
		return nil, false, nil
	}

	// L2
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
		return nil, false, err
	}
	rec, err := decode(raw)
	if err != nil {
		// 脏数据当未命中处理
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
		slog.Warn("metrics cache: bad entry", "key", key, "err", err)
		return nil, false, nil
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()

	// 回填
	if c.local != nil {
		c.local.Set(key, raw)
	}
	return rec, true, nil
}

func (c *MetricsCache) Set(ctx context.Context, cols mozscape.Column, target string, rec mozscape.MetricRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := Key(cols, target)
	if c.local != nil {
		c.local.Set(key, raw)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

func (c *MetricsCache) Delete(ctx context.Context, cols mozscape.Column, target string) error {
	key := Key(cols, target)
	if c.local != nil {
		c.local.Del(key)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

func (c *MetricsCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}

func decode(raw []byte) (mozscape.MetricRecord, error) {
	var rec mozscape.MetricRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("null record")
	}
	return rec, nil
}
