// Package metrics 提供基于 Prometheus 的指标采集。
//
// 指标通过注入的 prometheus.Registerer 注册，便于测试中使用独立的
// Registry，避免全局状态污染。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// 常见的标签
	LabelOperation = "operation"
	LabelOutcome   = "outcome"

	// 常见的结果
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics 注册中心客户端与 Agent 的指标集合
type Metrics struct {
	// RequestsTotal 按操作与结果统计的注册中心请求总数
	RequestsTotal *prometheus.CounterVec

	// RequestDuration 按操作统计的请求耗时
	RequestDuration *prometheus.HistogramVec

	// TokenRefreshTotal 登录换取 Token 的次数
	TokenRefreshTotal *prometheus.CounterVec

	// HeartbeatTotal 心跳发送结果统计
	HeartbeatTotal *prometheus.CounterVec

	// ReconnectTotal Agent 重新注册的次数
	ReconnectTotal prometheus.Counter
}

// New 创建并注册指标集合
//
// reg 为 nil 时使用 prometheus.DefaultRegisterer。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naming_requests_total",
				Help: "Total number of naming API requests",
			},
			[]string{LabelOperation, LabelOutcome},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "naming_request_duration_seconds",
				Help:    "Duration of naming API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{LabelOperation},
		),
		TokenRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naming_token_refresh_total",
				Help: "Total number of login token refreshes",
			},
			[]string{LabelOutcome},
		),
		HeartbeatTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_heartbeat_total",
				Help: "Total number of heartbeats sent by the agent",
			},
			[]string{LabelOutcome},
		),
		ReconnectTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_reconnect_total",
				Help: "Total number of agent re-registrations",
			},
		),
	}
}

// ObserveRequest 记录一次请求的结果与耗时
func (m *Metrics) ObserveRequest(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.RequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(seconds)
}
