package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/fdpricer/logging"
	"github.com/wyfcoding/fdpricer/xerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MultiLevelCache 多级缓存 (L1: 本地, L2: 分布式)。
type MultiLevelCache struct {
	l1     Cache
	l2     Cache
	tracer trace.Tracer
	logger *logging.Logger
}

// NewMultiLevelCache 组合两级缓存。
func NewMultiLevelCache(l1, l2 Cache, logger *logging.Logger) *MultiLevelCache {
	return &MultiLevelCache{
		l1:     l1,
		l2:     l2,
		tracer: otel.Tracer("github.com/wyfcoding/fdpricer/cache"),
		logger: logger,
	}
}

// Get 先查 L1, 再查 L2, L2 命中时回填 L1。
// L2 故障 (含熔断打开) 按未命中处理, 由调用方重新计算。
func (c *MultiLevelCache) Get(ctx context.Context, key string, value any) error {
	ctx, span := c.tracer.Start(ctx, "MultiLevelCache.Get", trace.WithAttributes(
		attribute.String("cache.key", key),
	))
	defer span.End()

	if err := c.l1.Get(ctx, key, value); err == nil {
		span.SetAttributes(attribute.String("cache.hit", "L1"))
		return nil
	}

	err := c.l2.Get(ctx, key, value)
	if err == nil {
		span.SetAttributes(attribute.String("cache.hit", "L2"))
		if err := c.l1.Set(ctx, key, value, 0); err != nil {
			c.logger.ErrorContext(ctx, "failed to backfill L1 cache", "key", key, "error", err)
		}
		return nil
	}
	if !errors.Is(err, xerrors.ErrCacheMiss) {
		c.logger.WarnContext(ctx, "L2 cache lookup failed", "key", key, "error", err)
	}

	span.SetAttributes(attribute.String("cache.hit", "miss"))
	return xerrors.ErrCacheMiss
}

// Set 先写 L2 再写 L1。L2 失败时仍写入 L1 并返回错误。
func (c *MultiLevelCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "MultiLevelCache.Set", trace.WithAttributes(
		attribute.String("cache.key", key),
	))
	defer span.End()

	l2Err := c.l2.Set(ctx, key, value, expiration)
	if err := c.l1.Set(ctx, key, value, expiration); err != nil {
		c.logger.ErrorContext(ctx, "failed to set L1 cache", "key", key, "error", err)
	}
	if l2Err != nil {
		span.RecordError(l2Err)
		span.SetStatus(codes.Error, "failed to set L2")
		return fmt.Errorf("failed to set L2: %w", l2Err)
	}
	return nil
}

// Delete 从两级缓存中删除。
func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	if err := c.l1.Delete(ctx, keys...); err != nil {
		c.logger.ErrorContext(ctx, "failed to delete from L1 cache", "keys", keys, "error", err)
	}
	return c.l2.Delete(ctx, keys...)
}

// Close 关闭两级缓存, 返回最后一个错误。
func (c *MultiLevelCache) Close() error {
	var err error
	if l1Err := c.l1.Close(); l1Err != nil {
		c.logger.Error("failed to close L1 cache", "error", l1Err)
		err = l1Err
	}
	if l2Err := c.l2.Close(); l2Err != nil {
		c.logger.Error("failed to close L2 cache", "error", l2Err)
		err = l2Err
	}
	return err
}
