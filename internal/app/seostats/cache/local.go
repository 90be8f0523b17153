package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache 进程内 L1，值是记录的 JSON。
type LocalCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewLocalCache maxItems 条目上限，maxCost 字节上限。
func NewLocalCache(maxItems int64, maxCost int64, ttl time.Duration) (*LocalCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LocalCache{cache: c, ttl: ttl}, nil
}

func (l *LocalCache) Get(key string) ([]byte, bool) {
	v, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Set 按字节数计 cost。ristretto 写入是异步的，立刻 Get 可能还读不到。
func (l *LocalCache) Set(key string, val []byte) {
	l.cache.SetWithTTL(key, val, int64(len(val)), l.ttl)
}

func (l *LocalCache) Del(key string) {
	l.cache.Del(key)
}

// Wait 等待缓冲区里的写入生效
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
