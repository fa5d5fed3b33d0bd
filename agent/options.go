package agent

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 选项结构
type options struct {
	logger   clog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

func defaultOptions() *options {
	return &options{
		logger:   clog.Noop(),
		gatherer: prometheus.DefaultGatherer,
	}
}

// WithLogger 注入日志记录器
// 组件内部会自动追加 "agent" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("agent")
		}
	}
}

// WithMetrics 注入指标集合，记录心跳与重连统计
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithGatherer 指定 /metrics 端点使用的 Prometheus Gatherer
// 默认使用 prometheus.DefaultGatherer
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *options) {
		if g != nil {
			o.gatherer = g
		}
	}
}
