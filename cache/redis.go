package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/wyfcoding/fdpricer/config"
	"github.com/wyfcoding/fdpricer/logging"
	"github.com/wyfcoding/fdpricer/retry"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// RedisCache 使用 Redis 实现 Cache, 所有命令经过熔断器。
type RedisCache struct {
	client *redis.Client
	prefix string
	cb     *gobreaker.CircuitBreaker
	logger *logging.Logger
}

// NewRedisCache 创建 Redis 客户端并在 5 秒内完成连通性检查, 期间按退避策略重试。
func NewRedisCache(cfg config.RedisConfig, logger *logging.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := retry.Do(ctx, retry.DefaultConfig(), ping); err != nil {
		_ = client.Close()
		return nil, xerrors.New(xerrors.ErrUnavailable, 503001, "redis unavailable", cfg.Addr, err)
	}

	logger.Info("successfully connected to redis", "addr", cfg.Addr)
	return newRedisCache(client, cfg.KeyPrefix, logger), nil
}

func newRedisCache(client *redis.Client, prefix string, logger *logging.Logger) *RedisCache {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "surface-cache-redis",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		// 未命中不计为失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, xerrors.ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &RedisCache{client: client, prefix: prefix, cb: cb, logger: logger}
}

func (c *RedisCache) buildKey(key string) string {
	return c.prefix + key
}

// Get 读取并反序列化到 value, value 必须是指针。
func (c *RedisCache) Get(ctx context.Context, key string, value any) error {
	_, err := c.cb.Execute(func() (any, error) {
		data, err := c.client.Get(ctx, c.buildKey(key)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, xerrors.ErrCacheMiss
			}
			return nil, err
		}
		return nil, json.Unmarshal(data, value)
	})
	return err
}

// Set 序列化后写入, expiration 为 0 表示不过期。
func (c *RedisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	_, err = c.cb.Execute(func() (any, error) {
		return nil, c.client.Set(ctx, c.buildKey(key), data, expiration).Err()
	})
	return err
}

// Delete 删除一组键。
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	fullKeys := make([]string, len(keys))
	for i, key := range keys {
		fullKeys[i] = c.buildKey(key)
	}
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.client.Del(ctx, fullKeys...).Err()
	})
	return err
}

// Client 返回底层客户端, 供健康检查使用。
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close 关闭 Redis 客户端。
func (c *RedisCache) Close() error {
	c.logger.Info("closing redis cache connection")
	return c.client.Close()
}
