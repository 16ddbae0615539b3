package app

import (
	"context"
	"time"
)

// Server 由 App 管理的服务器, Start 阻塞直到 ctx 取消并完成优雅关闭。
type Server interface {
	Start(ctx context.Context) error
}

// Hook 生命周期钩子, 启动时按注册顺序执行 OnStart, 关闭时按相反顺序执行 OnStop。
type Hook struct {
	Name    string
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Option 是一个函数类型，用于配置应用程序选项。
type Option func(*options)

type options struct {
	servers         []Server
	hooks           []Hook
	shutdownTimeout time.Duration
}

// WithServer 添加一个或多个服务器。
func WithServer(servers ...Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithHook 添加生命周期钩子。
func WithHook(h Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, h)
	}
}

// WithCleanup 添加只在关闭时执行的清理函数, 例如关闭缓存连接或刷新追踪数据。
func WithCleanup(name string, cleanup func(ctx context.Context) error) Option {
	return WithHook(Hook{Name: name, OnStop: cleanup})
}

// WithShutdownTimeout 设置执行清理钩子的总超时, 默认 10 秒。
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}
