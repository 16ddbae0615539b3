// Package limiter 提供基于令牌桶的本地限流器。
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter 全局共享一个令牌桶, key 被忽略。
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter 创建全局令牌桶, r 为每秒令牌数, b 为突发容量。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{
		limiter: rate.NewLimiter(r, b),
	}
}

// Allow 尝试获取一个令牌。
func (l *LocalLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return l.limiter.Allow(), nil
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter 为每个 key (通常是客户端 IP) 维护独立的令牌桶,
// 超过 idle 未访问的桶在下一次清理时被回收。
type KeyedLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	r        rate.Limit
	b        int
	idle     time.Duration
	lastScan time.Time
	now      func() time.Time
}

// NewKeyedLimiter 创建按 key 隔离的限流器。
func NewKeyedLimiter(r rate.Limit, b int, idle time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		buckets: make(map[string]*bucket),
		r:       r,
		b:       b,
		idle:    idle,
		now:     time.Now,
	}
}

// Allow 尝试为 key 获取一个令牌。
func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.idle > 0 && now.Sub(l.lastScan) > l.idle {
		for k, bk := range l.buckets {
			if now.Sub(bk.lastSeen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastScan = now
	}

	bk, ok := l.buckets[key]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(l.r, l.b)}
		l.buckets[key] = bk
	}
	bk.lastSeen = now
	return bk.limiter.AllowN(now, 1), nil
}

// SetLimit 更新速率与突发容量, 已存在的桶立即生效。
func (l *KeyedLimiter) SetLimit(r rate.Limit, b int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r, l.b = r, b
	now := l.now()
	for _, bk := range l.buckets {
		bk.limiter.SetLimitAt(now, r)
		bk.limiter.SetBurstAt(now, b)
	}
}

// Len 当前维护的桶数量。
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
