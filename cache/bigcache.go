package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/wyfcoding/fdpricer/config"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// BigCache 使用 allegro/bigcache 实现 Cache。
// BigCache 只支持全局 TTL, Set 的 expiration 参数被忽略。
type BigCache struct {
	cache *bigcache.BigCache
}

// NewBigCache 创建进程内缓存, ttl 为全局过期时间。
func NewBigCache(ttl time.Duration, cfg config.BigCacheConfig) (*BigCache, error) {
	bc := bigcache.DefaultConfig(ttl)
	if cfg.Shards > 0 {
		bc.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		bc.MaxEntrySize = cfg.MaxEntrySize
	}
	bc.HardMaxCacheSize = cfg.HardMaxMB
	bc.CleanWindow = time.Minute
	bc.Verbose = false

	cache, err := bigcache.New(context.Background(), bc)
	if err != nil {
		return nil, fmt.Errorf("init bigcache failed: %w", err)
	}
	return &BigCache{cache: cache}, nil
}

// Get 读取并反序列化到 value。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return xerrors.ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, value)
}

// Set 序列化后写入。
func (c *BigCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(key, data)
}

// Delete 删除一组键, 不存在的键被忽略。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Len 当前条目数。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close 释放底层资源。
func (c *BigCache) Close() error {
	return c.cache.Close()
}
