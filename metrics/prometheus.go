package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义的模拟与定价指标。
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	BuildInfo *prometheus.GaugeVec

	PathsSimulated      *prometheus.CounterVec   // 已模拟的情景路径数 (维度: stage)
	LSMDateDuration     *prometheus.HistogramVec // 反向归纳中单个日期的耗时 (维度: instrument)
	ExercisesTotal      *prometheus.CounterVec   // 行权决策次数 (维度: instrument)
	RegressionFallbacks *prometheus.CounterVec   // 退化为零回归器的次数 (维度: instrument, regressor)
	InstrumentDuration  *prometheus.HistogramVec // 单个产品的定价耗时 (维度: instrument, type)
	ProfilesPublished   *prometheus.CounterVec   // 已发布的敞口曲线 (维度: status)
}

// NewMetrics 初始化并返回一个新的指标采集器。
// 它会自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.PathsSimulated = m.NewCounterVec(prometheus.CounterOpts{
		Name: "exposure_paths_simulated_total",
		Help: "Number of scenario paths generated",
	}, []string{"stage"})

	m.LSMDateDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exposure_lsm_date_duration_seconds",
		Help:    "Time spent on one date of the backward induction",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"instrument"})

	m.ExercisesTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "exposure_lsm_exercises_total",
		Help: "Number of exercise decisions taken during backward induction",
	}, []string{"instrument"})

	m.RegressionFallbacks = m.NewCounterVec(prometheus.CounterOpts{
		Name: "exposure_lsm_regression_fallbacks_total",
		Help: "Number of degenerate regressions replaced by the zero regressor",
	}, []string{"instrument", "regressor"})

	m.InstrumentDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exposure_instrument_duration_seconds",
		Help:    "Time spent valuing one instrument across all scenarios",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"instrument", "type"})

	m.ProfilesPublished = m.NewCounterVec(prometheus.CounterOpts{
		Name: "exposure_profiles_published_total",
		Help: "Number of exposure profiles published",
	}, []string{"status"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
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

// Registry 返回内部注册中心，用于测试与聚合采集。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile 以 node_exporter textfile 格式写出当前全部指标，适用于批处理任务结束时落盘。
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExposeHttp 在指定端口启动一个独立的 HTTP 服务器用于暴露指标数据。
// 返回一个清理函数用于优雅关闭该服务器。
func (m *Metrics) ExposeHttp(port string) func() {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
