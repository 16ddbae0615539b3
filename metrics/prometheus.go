// Package metrics 封装了基于 Prometheus 的指标注册表, 预置 HTTP 与定价引擎两类指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了独立的 Prometheus 注册表及预定义的监控指标。
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec   // HTTP 请求总量 (维度: method, path, status)
	HTTPRequestDuration *prometheus.HistogramVec // HTTP 请求耗时分布

	SolveDuration     *prometheus.HistogramVec // 曲面求解耗时 (维度: method, option_type)
	PenaltyIterations prometheus.Histogram     // 单次求解中单步最大迭代次数
	SolveFailures     *prometheus.CounterVec   // 求解失败 (维度: reason)
	CacheLookups      *prometheus.CounterVec   // 曲面缓存查询 (维度: result)
	BatchSize         prometheus.Histogram     // 批量定价请求条数

	BuildInfo *prometheus.GaugeVec
}

// NewMetrics 初始化并返回一个新的指标采集器, 同时注册 Go 运行时与进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.SolveDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pde_solve_duration_seconds",
		Help:    "Finite-difference surface solve latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"method", "option_type"})

	m.PenaltyIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pde_penalty_max_step_iterations",
		Help:    "Largest number of penalty iterations used by a single time step",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50, 100, 500},
	})
	reg.MustRegister(m.PenaltyIterations)

	m.SolveFailures = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pde_solve_failures_total",
		Help: "Total number of failed surface solves",
	}, []string{"reason"})

	m.CacheLookups = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pde_surface_cache_lookups_total",
		Help: "Surface cache lookups by result",
	}, []string{"result"})

	m.BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_batch_size",
		Help:    "Number of contracts in a batch pricing request",
		Buckets: prometheus.LinearBuckets(1, 8, 8),
	})
	reg.MustRegister(m.BatchSize)

	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build information for the service",
	}, []string{"service", "version"})
	m.BuildInfo.WithLabelValues(serviceName, "unknown").Set(1)

	return m
}

// SetVersion 更新构建信息中的版本号。
func (m *Metrics) SetVersion(serviceName, version string) {
	m.BuildInfo.Reset()
	m.BuildInfo.WithLabelValues(serviceName, version).Set(1)
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Registry 返回内部注册表, 便于测试读取指标。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
