// Package naming 提供 Nacos 命名服务的 HTTP 客户端。
//
// naming 组件将注册中心的实例管理接口封装为类型化的操作：
// - 实例列表与服务详情查询
// - 实例注册（upsert 语义）、注销
// - 心跳发送与轻量心跳标志解析
// - 凭证登录与 accessToken 缓存（401/403 时刷新并重试一次）
//
// ## 基本使用
//
//	client, _ := naming.New(&naming.Config{
//		ServerAddr: "http://nacos.example.com:8848",
//	}, naming.WithLogger(logger))
//
//	// 注册实例
//	reg := naming.NewRegistration("demo-service", "192.168.1.100", 8080)
//	reg.Metadata = map[string]string{"walletAddress": wallet}
//	err := client.Register(ctx, reg)
//
//	// 查询实例列表
//	snap, err := client.ListInstances(ctx, "demo-service", nil)
//
//	// 心跳（周期调度由调用方负责，见 agent 包）
//	res, err := client.SendBeat(ctx, &naming.Beat{
//		ServiceName: "demo-service", Ip: "192.168.1.100", Port: 8080,
//	})
//
// ## 错误模型
//
// 所有失败都映射到四类哨兵错误之一（ErrTransport、ErrProtocol、
// ErrDecode、ErrConfig），可用 xerrors.Is 判断；细分原因通过
// xerrors.GetCode 提取（timeout、not_found、unauthorized、conflict）。
// 客户端从不把错误降级为默认值，也不做认证刷新以外的任何重试。
//
// ## 设计原则
//
// - **同步调用**：每个操作阻塞至 HTTP 交互完成或超时，无后台协程
// - **显式依赖**：通过构造函数注入配置与选项
// - **可观测性**：集成 clog 与 metrics，提供日志和指标能力
package naming

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/metrics"
	"github.com/ceyewan/beacon/xerrors"
)

const (
	instancePath     = "/nacos/v1/ns/instance"
	instanceListPath = "/nacos/v1/ns/instance/list"
	servicePath      = "/nacos/v1/ns/service"
	beatPath         = "/nacos/v1/ns/instance/beat"
	loginPath        = "/nacos/v1/auth/login"

	userAgent = "beacon-naming/1.0"
)

// 服务端在 HTTP 200 的心跳响应里用业务码表达实例缺失
const beatCodeNotFound = 20404

// New 创建 Client 实例
//
// 参数:
//   - cfg: 客户端配置，ServerAddr 必填
//   - opts: 可选参数 (Logger, HTTPClient, Metrics)
//
// 使用示例:
//
//	client, _ := naming.New(&naming.Config{
//	    ServerAddr: "nacos.example.com:8848",
//	    Username:   "nacos",
//	    Password:   "nacos",
//	}, naming.WithLogger(logger))
func New(cfg *Config, opts ...Option) (Client, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Noop()
	}
	if opt.httpc == nil {
		// 超时由每次请求的 Context 控制，客户端本身不设全局超时
		opt.httpc = &http.Client{}
	}

	c := &client{
		cfg:     cfg,
		httpc:   opt.httpc,
		logger:  opt.logger,
		metrics: opt.metrics,
	}

	if cfg.hasCredentials() {
		c.tokens = &tokenSource{
			cfg:     cfg,
			httpc:   opt.httpc,
			logger:  opt.logger.WithNamespace("auth"),
			metrics: opt.metrics,
		}
	}

	return c, nil
}

// client Client 接口的 HTTP 实现
type client struct {
	cfg     *Config
	httpc   *http.Client
	logger  clog.Logger
	metrics *metrics.Metrics
	tokens  *tokenSource // 未配置凭证时为 nil
}

// ListInstances 查询服务实例列表
func (c *client) ListInstances(ctx context.Context, serviceName string, query *Query) (*Snapshot, error) {
	if serviceName == "" {
		return nil, xerrors.Wrap(ErrConfig, "service name is required")
	}

	params := url.Values{}
	params.Set("serviceName", serviceName)
	if query != nil {
		if query.GroupName != "" {
			params.Set("groupName", query.GroupName)
		}
		if query.Clusters != "" {
			params.Set("clusters", query.Clusters)
		}
		if query.HealthyOnly {
			params.Set("healthyOnly", "true")
		}
	}

	body, err := c.do(ctx, "list_instances", http.MethodGet, instanceListPath, params)
	if err != nil {
		c.logger.Error("failed to list instances",
			clog.String("service_name", serviceName),
			clog.Error(err))
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, decodeError(err)
	}
	if snap.Name == "" && snap.Hosts == nil {
		return nil, xerrors.Wrap(ErrDecode, "instance list response missing name and hosts")
	}

	c.logger.Debug("instances listed",
		clog.String("service_name", serviceName),
		clog.Int("count", len(snap.Hosts)))

	return &snap, nil
}

// GetService 查询服务元信息
func (c *client) GetService(ctx context.Context, serviceName, groupName string) (*ServiceDetail, error) {
	if serviceName == "" {
		return nil, xerrors.Wrap(ErrConfig, "service name is required")
	}

	params := url.Values{}
	params.Set("serviceName", serviceName)
	if groupName != "" {
		params.Set("groupName", groupName)
	}

	body, err := c.do(ctx, "get_service", http.MethodGet, servicePath, params)
	if err != nil {
		c.logger.Error("failed to get service detail",
			clog.String("service_name", serviceName),
			clog.Error(err))
		return nil, err
	}

	var detail ServiceDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, decodeError(err)
	}
	if detail.Name == "" {
		return nil, xerrors.Wrap(ErrDecode, "service detail response missing name")
	}

	return &detail, nil
}

// Register 注册服务实例，重复注册按 upsert 处理
func (c *client) Register(ctx context.Context, reg *Registration) error {
	if reg == nil {
		return xerrors.Wrap(ErrConfig, "registration is required")
	}
	if err := validateInstanceKey(reg.ServiceName, reg.Ip, reg.Port); err != nil {
		return err
	}

	weight := reg.Weight
	if weight == 0 {
		weight = 1.0
	}

	params := url.Values{}
	params.Set("serviceName", reg.ServiceName)
	params.Set("ip", reg.Ip)
	params.Set("port", strconv.Itoa(reg.Port))
	params.Set("weight", strconv.FormatFloat(weight, 'f', -1, 64))
	params.Set("healthy", strconv.FormatBool(reg.Healthy))
	params.Set("enabled", strconv.FormatBool(reg.Enabled))
	params.Set("ephemeral", strconv.FormatBool(reg.Ephemeral))
	if reg.ClusterName != "" {
		params.Set("clusterName", reg.ClusterName)
	}
	if reg.GroupName != "" {
		params.Set("groupName", reg.GroupName)
	}
	if len(reg.Metadata) > 0 {
		md, err := json.Marshal(reg.Metadata)
		if err != nil {
			return xerrors.Wrap(err, "marshal metadata")
		}
		params.Set("metadata", string(md))
	}

	if _, err := c.do(ctx, "register", http.MethodPost, instancePath, params); err != nil {
		c.logger.Error("failed to register instance",
			clog.String("service_name", reg.ServiceName),
			clog.String("ip", reg.Ip),
			clog.Int("port", reg.Port),
			clog.Error(err))
		return err
	}

	c.logger.Info("instance registered",
		clog.String("service_name", reg.ServiceName),
		clog.String("ip", reg.Ip),
		clog.Int("port", reg.Port),
		clog.Float64("weight", weight),
		clog.Bool("ephemeral", reg.Ephemeral))

	return nil
}

// Deregister 注销服务实例
//
// 实例不存在时错误链带 not_found 错误码，按幂等语义使用的调用方
// 可以据此忽略该错误。
func (c *client) Deregister(ctx context.Context, dereg *Deregistration) error {
	if dereg == nil {
		return xerrors.Wrap(ErrConfig, "deregistration is required")
	}
	if err := validateInstanceKey(dereg.ServiceName, dereg.Ip, dereg.Port); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("serviceName", dereg.ServiceName)
	params.Set("ip", dereg.Ip)
	params.Set("port", strconv.Itoa(dereg.Port))
	if dereg.ClusterName != "" {
		params.Set("clusterName", dereg.ClusterName)
	}
	if dereg.GroupName != "" {
		params.Set("groupName", dereg.GroupName)
	}

	if _, err := c.do(ctx, "deregister", http.MethodDelete, instancePath, params); err != nil {
		c.logger.Error("failed to deregister instance",
			clog.String("service_name", dereg.ServiceName),
			clog.String("ip", dereg.Ip),
			clog.Int("port", dereg.Port),
			clog.Error(err))
		return err
	}

	c.logger.Info("instance deregistered",
		clog.String("service_name", dereg.ServiceName),
		clog.String("ip", dereg.Ip),
		clog.Int("port", dereg.Port))

	return nil
}

// SendBeat 发送一次心跳
func (c *client) SendBeat(ctx context.Context, beat *Beat) (*BeatResult, error) {
	if beat == nil {
		return nil, xerrors.Wrap(ErrConfig, "beat is required")
	}
	if err := validateInstanceKey(beat.ServiceName, beat.Ip, beat.Port); err != nil {
		return nil, err
	}

	weight := beat.Weight
	if weight == 0 {
		weight = 1.0
	}

	beatInfo := map[string]any{
		"serviceName": qualifiedServiceName(beat.GroupName, beat.ServiceName),
		"ip":          beat.Ip,
		"port":        beat.Port,
		"cluster":     beat.ClusterName,
		"weight":      weight,
		"scheduled":   true,
	}
	if len(beat.Metadata) > 0 {
		beatInfo["metadata"] = beat.Metadata
	}
	beatJSON, err := json.Marshal(beatInfo)
	if err != nil {
		return nil, xerrors.Wrap(err, "marshal beat")
	}

	params := url.Values{}
	params.Set("serviceName", beat.ServiceName)
	params.Set("ip", beat.Ip)
	params.Set("port", strconv.Itoa(beat.Port))
	if beat.ClusterName != "" {
		params.Set("clusterName", beat.ClusterName)
	}
	if beat.GroupName != "" {
		params.Set("groupName", beat.GroupName)
	}
	params.Set("beat", string(beatJSON))

	body, err := c.do(ctx, "send_beat", http.MethodPut, beatPath, params)
	if err != nil {
		c.logger.Warn("heartbeat failed",
			clog.String("service_name", beat.ServiceName),
			clog.String("ip", beat.Ip),
			clog.Int("port", beat.Port),
			clog.Error(err))
		return nil, err
	}

	var res struct {
		ClientBeatInterval int64 `json:"clientBeatInterval"`
		Code               int   `json:"code"`
		LightBeatEnabled   bool  `json:"lightBeatEnabled"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, decodeError(err)
	}

	if res.Code == beatCodeNotFound {
		return nil, xerrors.WithCode(&ServerError{
			Status:  http.StatusNotFound,
			Message: "instance not found, re-registration required",
		}, CodeNotFound)
	}

	c.logger.Debug("heartbeat sent",
		clog.String("service_name", beat.ServiceName),
		clog.Bool("light_beat", res.LightBeatEnabled))

	return &BeatResult{
		ClientBeatInterval: time.Duration(res.ClientBeatInterval) * time.Millisecond,
		LightBeatEnabled:   res.LightBeatEnabled,
		Code:               res.Code,
	}, nil
}

// do 执行一次命名服务请求并记录指标
//
// 收到 401/403 时失效缓存的 Token，用新 Token 精确重试一次；
// 第二次失败原样上抛。
func (c *client) do(ctx context.Context, op, method, path string, params url.Values) ([]byte, error) {
	start := time.Now()

	body, err := c.doOnce(ctx, method, path, params)
	if err != nil && c.tokens != nil && xerrors.GetCode(err) == CodeUnauthorized {
		c.logger.Warn("request unauthorized, refreshing token",
			clog.String("path", path))
		c.tokens.invalidate()
		body, err = c.doOnce(ctx, method, path, params)
	}

	c.metrics.ObserveRequest(op, time.Since(start).Seconds(), err)
	return body, err
}

// doOnce 构建并发送单个 HTTP 请求
//
// GET/DELETE 以查询参数传参，POST/PUT 以表单编码传参，与服务端的
// v1 接口约定一致。
func (c *client) doOnce(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	values := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			values.Add(k, v)
		}
	}
	if c.tokens != nil {
		token, err := c.tokens.token(ctx)
		if err != nil {
			return nil, err
		}
		values.Set("accessToken", token)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := c.cfg.ServerAddr + path
	var req *http.Request
	var err error
	switch method {
	case http.MethodPost, http.MethodPut:
		req, err = http.NewRequestWithContext(reqCtx, method, endpoint,
			strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		req, err = http.NewRequestWithContext(reqCtx, method,
			endpoint+"?"+values.Encode(), nil)
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newServerError(resp.StatusCode, string(data))
	}
	return data, nil
}

// validateInstanceKey 校验实例三元组，端口范围之外不做任何预检
func validateInstanceKey(serviceName, ip string, port int) error {
	if serviceName == "" {
		return xerrors.Wrap(ErrConfig, "service name is required")
	}
	if ip == "" {
		return xerrors.Wrap(ErrConfig, "ip is required")
	}
	if port < 1 || port > 65535 {
		return xerrors.Wrapf(ErrConfig, "port %d out of range [1,65535]", port)
	}
	return nil
}

// qualifiedServiceName 心跳负载里使用 group@@service 形式的全限定名
func qualifiedServiceName(groupName, serviceName string) string {
	if groupName == "" {
		return serviceName
	}
	return groupName + "@@" + serviceName
}

// classifyTransport 将网络层错误映射为 ErrTransport，超时附加 timeout 码
func classifyTransport(err error) error {
	wrapped := fmt.Errorf("%w: %w", ErrTransport, err)

	var netErr net.Error
	if xerrors.Is(err, context.DeadlineExceeded) ||
		(xerrors.As(err, &netErr) && netErr.Timeout()) {
		return xerrors.WithCode(wrapped, CodeTimeout)
	}
	return wrapped
}

// decodeError 将 JSON 解析错误映射为 ErrDecode
func decodeError(err error) error {
	return fmt.Errorf("%w: %w", ErrDecode, err)
}
