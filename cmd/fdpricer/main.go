package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/wyfcoding/fdpricer/algorithm/pde"
	"github.com/wyfcoding/fdpricer/app"
	"github.com/wyfcoding/fdpricer/cache"
	"github.com/wyfcoding/fdpricer/config"
	"github.com/wyfcoding/fdpricer/health"
	"github.com/wyfcoding/fdpricer/internal/pricing/application"
	httphandler "github.com/wyfcoding/fdpricer/internal/pricing/interfaces/http"
	"github.com/wyfcoding/fdpricer/limiter"
	"github.com/wyfcoding/fdpricer/logging"
	"github.com/wyfcoding/fdpricer/metrics"
	"github.com/wyfcoding/fdpricer/middleware"
	"github.com/wyfcoding/fdpricer/server"
	"github.com/wyfcoding/fdpricer/tracing"
	"golang.org/x/time/rate"
)

const serviceName = "fdpricer"

func main() {
	confPath := flag.String("conf", "configs/fdpricer.toml", "path to config file")
	flag.Parse()

	if err := run(*confPath); err != nil {
		slog.Error("fdpricer exited with error", "error", err)
		os.Exit(1)
	}
}

func run(confPath string) error {
	// .env 中的 APP_ 变量可覆盖配置文件
	if err := godotenv.Load(); err == nil {
		slog.Info(".env loaded")
	}

	var cfg config.Config
	if err := config.Load(confPath, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.InitLogger(logging.Config{
		Service:    cfg.Server.Name,
		Module:     "main",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Console:    cfg.Log.Console,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	config.PrintWithMask(&cfg)
	config.RegisterReloadHook(func(next *config.Config) {
		logger.SetLevel(next.Log.Level)
		logger.Info("log level reloaded", "level", next.Log.Level)
	})

	m := metrics.NewMetrics(cfg.Server.Name)
	m.SetVersion(cfg.Server.Name, cfg.Version)

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.Server.Name
	}
	shutdownTracer, err := tracing.InitTracer(context.Background(), cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	opts := []app.Option{app.WithCleanup("tracer", shutdownTracer)}

	checkers := map[string]health.Checker{}
	svcOpts := []application.Option{application.WithMetrics(m), application.WithLogger(logger)}
	if cfg.Cache.Enabled {
		surfaceCache, closeCache, err := newSurfaceCache(cfg.Cache, logger, checkers)
		if err != nil {
			return err
		}
		svcOpts = append(svcOpts, application.WithCache(surfaceCache, cfg.Cache.TTL))
		opts = append(opts, app.WithCleanup("surface-cache", func(context.Context) error { return closeCache() }))
	}
	svc := application.NewPricingService(cfg.Engine, cfg.Batch, svcOpts...)

	// 小网格欧式求解作为引擎自检
	checkers["solver"] = health.SolverChecker(func() (float64, error) {
		return svc.Engine().PriceEuropean(pde.Params{
			OptionType: "put", Spot: 100, Strike: 100, Rate: 0.05, Volatility: 0.2,
			Maturity: 1, StockSteps: 20, TimeSteps: 20,
		})
	})

	engine := newEngine(&cfg, logger, m)
	httphandler.NewPricingHandler(svc, cfg.Server.Name, checkers).RegisterRoutes(engine)

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Addr, cfg.Server.HTTP.Port)
	srv := server.NewGinServer(engine, addr, server.Options{
		ReadTimeout:       cfg.Server.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:       cfg.Server.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.HTTP.MaxHeaderBytes,
	}, logger.Logger)
	opts = append(opts, app.WithServer(srv))

	return app.New(serviceName, logger.Logger, opts...).Run(context.Background())
}

// newSurfaceCache 组装曲面缓存: BigCache 为一级, 启用 Redis 时组合为两级。
// Redis 不可用时降级为单级缓存并继续启动。
func newSurfaceCache(cfg config.CacheConfig, logger *logging.Logger, checkers map[string]health.Checker) (cache.Cache, func() error, error) {
	l1, err := cache.NewBigCache(cfg.TTL, cfg.BigCache)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Redis.Enabled {
		return l1, l1.Close, nil
	}

	l2, err := cache.NewRedisCache(cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis surface cache unavailable, using local cache only", "addr", cfg.Redis.Addr, "error", err)
		return l1, l1.Close, nil
	}
	checkers["redis"] = health.RedisChecker(l2.Client())
	ml := cache.NewMultiLevelCache(l1, l2, logger)
	return ml, ml.Close, nil
}

func newEngine(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) *gin.Engine {
	if cfg.Server.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	mw := []gin.HandlerFunc{
		middleware.RequestID(),
		middleware.Recovery(logger.Logger),
	}
	if cfg.Tracing.Enabled {
		mw = append(mw, middleware.TracingMiddleware(cfg.Server.Name))
	}
	mw = append(mw,
		middleware.Logger(logger.Logger, cfg.Log.SlowThreshold),
		middleware.HTTPMetricsMiddleware(m, cfg.Metrics.Path, "/health"),
		middleware.MaxBodyBytes(cfg.Server.HTTP.MaxBodyBytes),
		middleware.Timeout(cfg.Server.HTTP.Timeout),
	)
	if cfg.RateLimit.Enabled {
		kl := limiter.NewKeyedLimiter(rate.Limit(cfg.RateLimit.Rate), cfg.RateLimit.Burst, 10*time.Minute)
		config.RegisterReloadHook(func(next *config.Config) {
			kl.SetLimit(rate.Limit(next.RateLimit.Rate), next.RateLimit.Burst)
			logger.Info("rate limit reloaded", "rate", next.RateLimit.Rate, "burst", next.RateLimit.Burst)
		})
		mw = append(mw, middleware.RateLimitMiddleware(kl))
	}

	engine := server.NewGinEngine(mw...)
	if cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	return engine
}
