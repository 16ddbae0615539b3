package health

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRunAggregates(t *testing.T) {
	rep := Run(context.Background(), map[string]Checker{
		"a": func(context.Context) error { return nil },
		"b": func(context.Context) error { return errors.New("boom") },
		"c": SolverChecker(func() (float64, error) { return math.NaN(), nil }),
		"d": SolverChecker(func() (float64, error) { return 1.5, nil }),
	}, time.Second)

	if rep.Healthy() {
		t.Fatalf("expected DOWN, got %+v", rep)
	}
	if rep.Checks["a"] != "ok" || rep.Checks["d"] != "ok" || rep.Checks["b"] != "boom" {
		t.Errorf("unexpected checks %v", rep.Checks)
	}
	failed := rep.Failed()
	if len(failed) != 2 || failed[0] != "b" || failed[1] != "c" {
		t.Errorf("expected [b c], got %v", failed)
	}
}

func TestRunEmptyIsUp(t *testing.T) {
	if rep := Run(context.Background(), nil, 0); !rep.Healthy() {
		t.Errorf("expected UP without checkers, got %+v", rep)
	}
}

func TestRunTimeout(t *testing.T) {
	rep := Run(context.Background(), map[string]Checker{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, 10*time.Millisecond)
	if rep.Healthy() {
		t.Errorf("expected timeout to mark the check DOWN")
	}
}

func TestRedisChecker(t *testing.T) {
	if err := RedisChecker(nil)(context.Background()); err == nil {
		t.Errorf("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	if err := RedisChecker(client)(context.Background()); err == nil {
		t.Errorf("expected error for unreachable redis")
	}
}
