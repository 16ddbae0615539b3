// Package cache 提供了价格曲面缓存的抽象与实现: 进程内 BigCache、带熔断保护的 Redis
// 以及二者组合的多级缓存。所有实现未命中时返回 xerrors.ErrCacheMiss。
package cache

import (
	"context"
	"time"
)

// Cache 定义缓存接口, value 以 JSON 序列化存储。
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
