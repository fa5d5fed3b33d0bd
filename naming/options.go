package naming

import (
	"net/http"

	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 选项结构
type options struct {
	logger  clog.Logger
	httpc   *http.Client
	metrics *metrics.Metrics
}

// WithLogger 注入日志记录器
// 组件内部会自动追加 "naming" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("naming")
		}
	}
}

// WithHTTPClient 注入自定义 HTTP 客户端
// 默认使用不带全局超时的 http.Client，超时由每次请求的 Context 控制
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpc = c
		}
	}
}

// WithMetrics 注入指标集合，记录请求次数与耗时
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
