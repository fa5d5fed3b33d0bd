// Package agent 提供实例注册与心跳续约的运行时。
//
// naming 客户端本身不调度任何周期行为，agent 是承担这部分职责的
// 调用方：启动时注册实例，按固定间隔发送心跳，根据心跳结果决定
// 是否重新注册，退出时注销实例。同时暴露 /health、/status 与
// /metrics 三个 HTTP 端点供外部探活。
//
// ## 基本使用
//
//	client, _ := naming.New(&naming.Config{ServerAddr: server})
//	a, _ := agent.New(client, &agent.Config{
//	    ServiceName: "demo-service",
//	    Ip:          "203.0.113.10",
//	    Port:        11434,
//	}, agent.WithLogger(logger))
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	err := a.Run(ctx) // 阻塞至 ctx 取消，随后优雅注销
package agent

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/metrics"
	"github.com/ceyewan/beacon/naming"
	"github.com/ceyewan/beacon/xerrors"
)

// Config Agent 配置
type Config struct {
	// ServiceName/Ip/Port 注册的实例三元组
	ServiceName string
	Ip          string
	Port        int

	// GroupName/ClusterName 可选的分组与集群
	GroupName   string
	ClusterName string

	// Weight 实例权重，默认 1.0
	Weight float64

	// Metadata 注册与心跳携带的元数据
	Metadata map[string]string

	// HeartbeatInterval 心跳间隔，默认 5s
	HeartbeatInterval time.Duration

	// InitialReconnectDelay/MaxReconnectDelay 注册失败的退避区间，
	// 默认 5s 起倍增，上限 5m
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration

	// FailureThreshold 连续心跳失败多少次后尝试重新注册，默认 3
	FailureThreshold int

	// ListenAddr 健康服务监听地址（如 ":11434"），为空不启动
	ListenAddr string
}

// validate 验证配置并填充默认值
func (c *Config) validate() error {
	if c.ServiceName == "" || c.Ip == "" {
		return xerrors.New("service name and ip are required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return xerrors.Wrapf(xerrors.New("invalid port"), "port %d out of range [1,65535]", c.Port)
	}
	if c.Weight == 0 {
		c.Weight = 1.0
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.InitialReconnectDelay == 0 {
		c.InitialReconnectDelay = 5 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 5 * time.Minute
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	return nil
}

// Stats Agent 运行统计，随 /status 端点对外暴露
type Stats struct {
	SessionID   string    `json:"session_id"`
	Service     string    `json:"service"`
	Connected   bool      `json:"connected"`
	StartedAt   time.Time `json:"started_at"`
	LastBeat    time.Time `json:"last_beat,omitzero"`
	BeatSuccess uint64    `json:"beat_success"`
	BeatFailure uint64    `json:"beat_failure"`
	Reconnects  uint64    `json:"reconnects"`
}

// Agent 注册与心跳运行时
type Agent struct {
	cfg     *Config
	client  naming.Client
	logger  clog.Logger
	metrics *metrics.Metrics
	opts    *options

	mu    sync.Mutex
	stats Stats
}

// New 创建 Agent
func New(client naming.Client, cfg *Config, opts ...Option) (*Agent, error) {
	if client == nil {
		return nil, xerrors.New("naming client is required")
	}
	if cfg == nil {
		return nil, xerrors.New("config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := defaultOptions()
	for _, o := range opts {
		o(opt)
	}

	return &Agent{
		cfg:     cfg,
		client:  client,
		logger:  opt.logger,
		metrics: opt.metrics,
		opts:    opt,
		stats: Stats{
			SessionID: uuid.NewString(),
			Service:   cfg.ServiceName,
		},
	}, nil
}

// Stats 返回当前统计的副本
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Run 阻塞运行：注册、心跳循环、优雅退出
//
// ctx 取消后注销实例并关闭健康服务；注销时遇到 not_found 按幂等
// 成功处理。
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	a.stats.StartedAt = time.Now()
	a.mu.Unlock()

	if err := a.registerWithBackoff(ctx); err != nil {
		return err
	}

	var srv *http.Server
	if a.cfg.ListenAddr != "" {
		srv = &http.Server{Addr: a.cfg.ListenAddr, Handler: a.router()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("health server exited", clog.Error(err))
			}
		}()
		a.logger.Info("health server started", clog.String("addr", a.cfg.ListenAddr))
	}

	a.heartbeatLoop(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	a.deregister(shutdownCtx)

	a.logger.Info("agent stopped")
	return nil
}

// registerWithBackoff 注册实例，失败时按倍增退避重试，直到成功或 ctx 取消
func (a *Agent) registerWithBackoff(ctx context.Context) error {
	delay := a.cfg.InitialReconnectDelay
	for {
		if err := a.register(ctx); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		} else {
			a.logger.Warn("registration failed, will retry",
				clog.Duration("retry_after", delay),
				clog.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > a.cfg.MaxReconnectDelay {
			delay = a.cfg.MaxReconnectDelay
		}
	}
}

// register 执行一次注册并更新连接状态
func (a *Agent) register(ctx context.Context) error {
	reg := naming.NewRegistration(a.cfg.ServiceName, a.cfg.Ip, a.cfg.Port)
	reg.Weight = a.cfg.Weight
	reg.GroupName = a.cfg.GroupName
	reg.ClusterName = a.cfg.ClusterName
	reg.Metadata = a.cfg.Metadata

	if err := a.client.Register(ctx, reg); err != nil {
		a.setConnected(false)
		return err
	}
	a.setConnected(true)
	return nil
}

// heartbeatLoop 心跳循环，ctx 取消后返回
func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		res, err := a.client.SendBeat(ctx, &naming.Beat{
			ServiceName: a.cfg.ServiceName,
			Ip:          a.cfg.Ip,
			Port:        a.cfg.Port,
			GroupName:   a.cfg.GroupName,
			ClusterName: a.cfg.ClusterName,
			Weight:      a.cfg.Weight,
			Metadata:    a.cfg.Metadata,
		})

		switch {
		case err == nil:
			failures = 0
			a.recordBeat(nil)
			// 服务端要求完整心跳时重新注册一次
			if !res.LightBeatEnabled {
				a.reregister(ctx, "light beat disabled")
			}

		case xerrors.HasCode(err, naming.CodeNotFound):
			// 实例在服务端过期，立即重新注册
			a.recordBeat(err)
			a.reregister(ctx, "instance expired")

		default:
			failures++
			a.recordBeat(err)
			a.logger.Warn("heartbeat failed",
				clog.Int("consecutive_failures", failures),
				clog.Error(err))
			if failures >= a.cfg.FailureThreshold {
				a.reregister(ctx, "failure threshold reached")
				failures = 0
			}
		}
	}
}

// reregister 尝试一次重新注册，失败只记录日志，留给下一轮心跳处理
func (a *Agent) reregister(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	a.logger.Info("re-registering instance", clog.String("reason", reason))

	if err := a.register(ctx); err != nil {
		a.logger.Error("re-registration failed", clog.Error(err))
		return
	}

	a.mu.Lock()
	a.stats.Reconnects++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.ReconnectTotal.Inc()
	}
}

// deregister 注销实例，not_found 按幂等成功处理
func (a *Agent) deregister(ctx context.Context) {
	err := a.client.Deregister(ctx, &naming.Deregistration{
		ServiceName: a.cfg.ServiceName,
		Ip:          a.cfg.Ip,
		Port:        a.cfg.Port,
		GroupName:   a.cfg.GroupName,
		ClusterName: a.cfg.ClusterName,
	})
	if err != nil && !xerrors.HasCode(err, naming.CodeNotFound) {
		a.logger.Error("deregistration failed", clog.Error(err))
		return
	}
	a.setConnected(false)
}

func (a *Agent) setConnected(connected bool) {
	a.mu.Lock()
	a.stats.Connected = connected
	a.mu.Unlock()
}

func (a *Agent) recordBeat(err error) {
	a.mu.Lock()
	if err == nil {
		a.stats.BeatSuccess++
		a.stats.LastBeat = time.Now()
		a.stats.Connected = true
	} else {
		a.stats.BeatFailure++
		a.stats.Connected = false
	}
	a.mu.Unlock()

	if a.metrics != nil {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeError
		}
		a.metrics.HeartbeatTotal.WithLabelValues(outcome).Inc()
	}
}
