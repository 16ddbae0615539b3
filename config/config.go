// Package config 提供了统一的配置加载与管理能力.
// 配置文件为 TOML, 支持 APP_ 前缀的环境变量覆盖, 加载后经 validator 校验,
// 文件变更时自动重新加载并触发已注册的回调.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 全局顶级配置结构.
type Config struct {
	Version   string          `mapstructure:"version"   toml:"version"`
	Server    ServerConfig    `mapstructure:"server"    toml:"server"`
	Log       LogConfig       `mapstructure:"log"       toml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   toml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
	Engine    EngineConfig    `mapstructure:"engine"    toml:"engine"`
	Cache     CacheConfig     `mapstructure:"cache"     toml:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" toml:"ratelimit"`
	Batch     BatchConfig     `mapstructure:"batch"     toml:"batch"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	HTTP        struct {
		Addr              string        `mapstructure:"addr"                toml:"addr"`
		Port              int           `mapstructure:"port"                toml:"port"                validate:"required,min=1,max=65535"`
		Timeout           time.Duration `mapstructure:"timeout"             toml:"timeout"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
		MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    toml:"max_header_bytes"`
		MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      toml:"max_body_bytes"`
	} `mapstructure:"http" toml:"http"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level         string        `mapstructure:"level"          toml:"level"          validate:"omitempty,oneof=debug info warn error"`
	File          string        `mapstructure:"file"           toml:"file"`           // 日志文件路径。
	Console       bool          `mapstructure:"console"        toml:"console"`        // 写文件时是否同时输出到 stdout。
	MaxSize       int           `mapstructure:"max_size"       toml:"max_size"`       // 单个文件最大大小 (MB)。
	MaxBackups    int           `mapstructure:"max_backups"    toml:"max_backups"`    // 最大备份数。
	MaxAge        int           `mapstructure:"max_age"        toml:"max_age"`        // 最大保留天数。
	Compress      bool          `mapstructure:"compress"       toml:"compress"`       // 是否启用压缩。
	SlowThreshold time.Duration `mapstructure:"slow_threshold" toml:"slow_threshold"` // HTTP 慢请求阈值。
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"min=0,max=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// EngineConfig 有限差分引擎参数与网格上限.
type EngineConfig struct {
	PenaltyLambda    float64 `mapstructure:"penalty_lambda"    toml:"penalty_lambda"    validate:"gt=0"`
	PenaltyTolerance float64 `mapstructure:"penalty_tolerance" toml:"penalty_tolerance" validate:"gt=0"`
	MaxIterations    int     `mapstructure:"max_iterations"    toml:"max_iterations"    validate:"min=1"`
	MaxStockSteps    int     `mapstructure:"max_stock_steps"   toml:"max_stock_steps"   validate:"min=2"`
	MaxTimeSteps     int     `mapstructure:"max_time_steps"    toml:"max_time_steps"    validate:"min=1"`
}

// CacheConfig 价格曲面缓存配置: 进程内 BigCache 为一级, Redis 为可选二级.
type CacheConfig struct {
	Enabled  bool           `mapstructure:"enabled"   toml:"enabled"`
	TTL      time.Duration  `mapstructure:"ttl"       toml:"ttl"`
	BigCache BigCacheConfig `mapstructure:"bigcache"  toml:"bigcache"`
	Redis    RedisConfig    `mapstructure:"redis"     toml:"redis"`
}

// BigCacheConfig 定义本地 BigCache 的分片与容量参数.
type BigCacheConfig struct {
	Shards       int `mapstructure:"shards"         toml:"shards"`
	MaxEntrySize int `mapstructure:"max_entry_size" toml:"max_entry_size"` // 单条最大字节数
	HardMaxMB    int `mapstructure:"hard_max_mb"    toml:"hard_max_mb"`
}

// RedisConfig 定义 Redis 连接与池化参数.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"       toml:"enabled"`
	Addr         string        `mapstructure:"addr"          toml:"addr"          validate:"required_if=Enabled true"`
	Password     string        `mapstructure:"password"      toml:"password"`
	DB           int           `mapstructure:"db"            toml:"db"`
	PoolSize     int           `mapstructure:"pool_size"     toml:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"    toml:"key_prefix"`
}

// RateLimitConfig 定义令牌桶限流参数.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled" toml:"enabled"`
	Rate    float64 `mapstructure:"rate"    toml:"rate"    validate:"min=0"`
	Burst   int     `mapstructure:"burst"   toml:"burst"   validate:"min=0"`
}

// BatchConfig 批量定价的并发与规模上限.
type BatchConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency" toml:"max_concurrency" validate:"min=1"`
	MaxItems       int `mapstructure:"max_items"       toml:"max_items"       validate:"min=1"`
}

// SetDefaults 写入未在配置文件中出现的默认值.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "fdpricer")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.timeout", 30*time.Second)
	v.SetDefault("server.http.read_header_timeout", 5*time.Second)
	v.SetDefault("server.http.max_body_bytes", 1<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.slow_threshold", 2*time.Second)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.sampler_ratio", 1.0)
	v.SetDefault("engine.penalty_lambda", 1e3)
	v.SetDefault("engine.penalty_tolerance", 1e-6)
	v.SetDefault("engine.max_iterations", 500)
	v.SetDefault("engine.max_stock_steps", 2000)
	v.SetDefault("engine.max_time_steps", 2000)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.bigcache.shards", 64)
	v.SetDefault("cache.bigcache.max_entry_size", 1<<16)
	v.SetDefault("cache.bigcache.hard_max_mb", 256)
	v.SetDefault("cache.redis.key_prefix", "fdpricer:surface:")
	v.SetDefault("ratelimit.rate", 50.0)
	v.SetDefault("ratelimit.burst", 100)
	v.SetDefault("batch.max_concurrency", 4)
	v.SetDefault("batch.max_items", 64)
}

var (
	vInstance = viper.New()
	hooksMu   sync.Mutex
	onReload  []func(*Config)
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	hooksMu.Lock()
	defer hooksMu.Unlock()
	onReload = append(onReload, hook)
}

// Load 读取、校验配置并开启文件监听.
func Load(path string, conf *Config) error {
	if err := load(vInstance, path, conf); err != nil {
		return err
	}

	validate := validator.New()
	vInstance.WatchConfig()
	vInstance.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		var next Config
		if err := vInstance.Unmarshal(&next); err != nil {
			slog.Error("reload config unmarshal failed", "error", err)
			return
		}
		if err := validate.Struct(&next); err != nil {
			slog.Error("reload config validation failed, keeping previous config", "error", err)
			return
		}
		slog.Info("config hot-reloaded and validated successfully")

		hooksMu.Lock()
		hooks := append([]func(*Config){}, onReload...)
		hooksMu.Unlock()
		for _, hook := range hooks {
			hook(&next)
		}
	})

	return nil
}

// LoadFile 只读取并校验配置, 不开启监听.
func LoadFile(path string, conf *Config) error {
	return load(viper.New(), path, conf)
}

func load(v *viper.Viper, path string, conf *Config) error {
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}
	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := validator.New().Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)

		return
	}

	var configMap map[string]any
	if unmarshalErr := json.Unmarshal(data, &configMap); unmarshalErr != nil {
		slog.Error("failed to unmarshal config for masking", "error", unmarshalErr)

		return
	}

	mask(configMap)

	maskedJSON, marshalErr := json.MarshalIndent(configMap, "  ", "  ")
	if marshalErr != nil {
		slog.Error("failed to marshal masked config", "error", marshalErr)

		return
	}

	slog.Info("Current effective configuration", "config", string(maskedJSON))
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)

			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"

				break
			}
		}
	}
}

// GetViper 返回底层的 Viper 实例.
func GetViper() *viper.Viper {
	return vInstance
}
