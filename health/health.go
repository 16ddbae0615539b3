// Package health 提供依赖健康检查: 每个 Checker 探测一个依赖, Run 并发执行全部检查并汇总。
package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"
)

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// Checker 定义健康检查函数原型。
type Checker func(ctx context.Context) error

// RedisChecker 返回 Redis 健康检查函数。
func RedisChecker(client redis.UniversalClient) Checker {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis client is nil")
		}
		return client.Ping(ctx).Err()
	}
}

// SolverChecker 执行一次小规模求解, 结果必须是有限数。
func SolverChecker(solve func() (float64, error)) Checker {
	return func(_ context.Context) error {
		v, err := solve()
		if err != nil {
			return err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("solver returned non-finite value %v", v)
		}
		return nil
	}
}

// Report 汇总结果, Checks 中通过的依赖记为 "ok"。
type Report struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Healthy 是否全部通过。
func (r Report) Healthy() bool { return r.Status == StatusUp }

// Failed 返回未通过的依赖名, 按字母序。
func (r Report) Failed() []string {
	var out []string
	for name, msg := range r.Checks {
		if msg != "ok" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Run 并发执行全部检查, 每项检查受 timeout 约束。
func Run(ctx context.Context, checkers map[string]Checker, timeout time.Duration) Report {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	rep := Report{
		Status:    StatusUp,
		Checks:    make(map[string]string, len(checkers)),
		Timestamp: time.Now().Unix(),
	}

	var (
		mu sync.Mutex
		wg conc.WaitGroup
	)
	for name, check := range checkers {
		wg.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			msg := "ok"
			if err := check(cctx); err != nil {
				msg = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			rep.Checks[name] = msg
			if msg != "ok" {
				rep.Status = StatusDown
			}
		})
	}
	wg.Wait()
	return rep
}
