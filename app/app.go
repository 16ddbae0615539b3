// Package app 提供了应用程序的生命周期管理: 启动服务器、监听退出信号、
// 等待服务器优雅关闭并按相反顺序执行清理钩子。
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// App 是应用程序的核心容器。
type App struct {
	name   string
	logger *slog.Logger
	opts   options
}

// New 创建一个新的应用程序实例。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{shutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{name: name, logger: logger, opts: o}
}

// Run 启动应用并阻塞, 直到收到 SIGINT/SIGTERM、ctx 被取消或任一服务器异常退出。
// 返回服务器错误与清理错误的合并结果。
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("application starting", "name", a.name, "pid", os.Getpid())

	started := 0
	var startErr error
	for _, h := range a.opts.hooks {
		if h.OnStart != nil {
			if err := h.OnStart(ctx); err != nil {
				a.logger.Error("failed to start component", "name", h.Name, "error", err)
				startErr = err
				break
			}
		}
		started++
	}

	var serveErr error
	if startErr == nil {
		serveErr = a.serve(ctx, stop)
	}

	a.logger.Info("shutting down application", "name", a.name)
	stopCtx, cancel := context.WithTimeout(context.Background(), a.opts.shutdownTimeout)
	defer cancel()
	stopErr := a.stopHooks(stopCtx, a.opts.hooks[:started])

	if err := errors.Join(startErr, serveErr, stopErr); err != nil {
		return err
	}
	a.logger.Info("application shut down gracefully")
	return nil
}

// serve 运行全部服务器; 任一服务器出错时取消 ctx 以关闭其余服务器。
func (a *App) serve(ctx context.Context, cancel context.CancelFunc) error {
	errs := make(chan error, len(a.opts.servers))
	for _, srv := range a.opts.servers {
		go func() {
			err := srv.Start(ctx)
			if err != nil {
				a.logger.Error("server exited with error", "error", err)
				cancel()
			}
			errs <- err
		}()
	}

	var joined error
	for range a.opts.servers {
		joined = errors.Join(joined, <-errs)
	}
	if len(a.opts.servers) == 0 {
		<-ctx.Done()
	}
	return joined
}

func (a *App) stopHooks(ctx context.Context, hooks []Hook) error {
	var joined error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if h.OnStop == nil {
			continue
		}
		a.logger.Info("stopping component", "name", h.Name)
		if err := h.OnStop(ctx); err != nil {
			a.logger.Error("failed to stop component", "name", h.Name, "error", err)
			joined = errors.Join(joined, err)
		}
	}
	return joined
}
