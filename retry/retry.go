// Package retry 提供带抖动的指数退避重试。
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config 重试策略。MaxRetries 为首次调用之外的最大重试次数。
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64 // 相对抖动幅度, 0.1 表示 ±10%
	MaxRetries     int
}

// DefaultConfig 返回启动期探测依赖使用的默认策略。
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// Do 执行 fn 直到成功、次数耗尽或 ctx 取消。
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	return DoIf(ctx, cfg, fn, func(error) bool { return true })
}

// DoIf 仅在 shouldRetry 返回 true 时重试。
func DoIf(ctx context.Context, cfg Config, fn func(ctx context.Context) error, shouldRetry func(error) bool) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= max(cfg.MaxRetries, 0); attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxRetries || !shouldRetry(lastErr) {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		next := float64(backoff) * cfg.Multiplier
		if cfg.Jitter > 0 {
			next += (rand.Float64()*2 - 1) * cfg.Jitter * next
		}
		backoff = time.Duration(next)
		if cfg.MaxBackoff > 0 {
			backoff = min(backoff, cfg.MaxBackoff)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", max(cfg.MaxRetries, 0)+1, lastErr)
}
