// Package netcheck 提供注册中心连通性的启动前诊断。
//
// 覆盖排障脚本常用的检查项：DNS 解析、TCP 连通、HTTP 探测、
// 本地端口占用以及注册中心健康端点探测。诊断器独立于 naming
// 客户端，属于可选的启动前协作者，失败与否由调用方决定如何处置。
package netcheck

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ceyewan/beacon/clog"
)

// 健康端点探测顺序：部分网关没有 /nacos 前缀
var healthPaths = []string{
	"/nacos/v1/console/health",
	"/v1/console/health",
}

// Result 单项检查结果
type Result struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Report 一次预检的全部结果
type Report struct {
	Results []Result `json:"results"`
}

// OK 所有检查项是否全部通过
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if !res.OK {
			return false
		}
	}
	return len(r.Results) > 0
}

// Checker 连通性诊断器
type Checker struct {
	logger   clog.Logger
	timeout  time.Duration
	resolver *net.Resolver
	dialer   *net.Dialer
	httpc    *http.Client
}

// Option 诊断器选项
type Option func(*Checker)

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l.WithNamespace("netcheck")
		}
	}
}

// WithTimeout 设置单项检查的超时，默认 5s
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New 创建诊断器
func New(opts ...Option) *Checker {
	c := &Checker{
		logger:   clog.Noop(),
		timeout:  5 * time.Second,
		resolver: net.DefaultResolver,
		dialer:   &net.Dialer{},
		httpc:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckDNS 检查主机名是否可解析
func (c *Checker) CheckDNS(ctx context.Context, host string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addrs, err := c.resolver.LookupHost(ctx, host)
	if err != nil {
		c.logger.Error("dns resolution failed", clog.String("host", host), clog.Error(err))
		return Result{Name: "dns", Target: host, Detail: err.Error()}
	}

	c.logger.Info("dns resolution ok",
		clog.String("host", host),
		clog.Any("addrs", addrs))
	return Result{Name: "dns", Target: host, OK: true, Detail: strings.Join(addrs, ",")}
}

// CheckTCP 检查 TCP 端口是否可连通
func (c *Checker) CheckTCP(ctx context.Context, host string, port int) Result {
	target := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		c.logger.Error("tcp connect failed", clog.String("target", target), clog.Error(err))
		return Result{Name: "tcp", Target: target, Detail: err.Error()}
	}
	_ = conn.Close()

	c.logger.Info("tcp connect ok", clog.String("target", target))
	return Result{Name: "tcp", Target: target, OK: true}
}

// CheckHTTP 对 URL 发起 GET 并检查状态码
func (c *Checker) CheckHTTP(ctx context.Context, rawURL string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{Name: "http", Target: rawURL, Detail: err.Error()}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Error("http probe failed", clog.String("url", rawURL), clog.Error(err))
		return Result{Name: "http", Target: rawURL, Detail: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 400
	detail := fmt.Sprintf("status %d", resp.StatusCode)
	if ok {
		c.logger.Info("http probe ok", clog.String("url", rawURL), clog.Int("status", resp.StatusCode))
	} else {
		c.logger.Warn("http probe returned error status",
			clog.String("url", rawURL),
			clog.Int("status", resp.StatusCode))
	}
	return Result{Name: "http", Target: rawURL, OK: ok, Detail: detail}
}

// CheckConsoleHealth 依次探测已知的健康端点路径，任一 2xx 即通过
func (c *Checker) CheckConsoleHealth(ctx context.Context, baseURL string) Result {
	base := strings.TrimRight(baseURL, "/")
	var lastDetail string
	for _, path := range healthPaths {
		res := c.CheckHTTP(ctx, base+path)
		if res.OK {
			return Result{Name: "console_health", Target: base, OK: true, Detail: path}
		}
		lastDetail = res.Detail
	}
	return Result{Name: "console_health", Target: base, Detail: lastDetail}
}

// CheckLocalPort 检查本地端口是否可监听（未被占用）
func (c *Checker) CheckLocalPort(port int) Result {
	target := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", target)
	if err != nil {
		c.logger.Error("local port unavailable", clog.Int("port", port), clog.Error(err))
		return Result{Name: "local_port", Target: target, Detail: err.Error()}
	}
	_ = ln.Close()

	c.logger.Info("local port available", clog.Int("port", port))
	return Result{Name: "local_port", Target: target, OK: true}
}

// Preflight 对注册中心地址执行完整的启动前检查：
// DNS、TCP、健康端点，以及本地监听端口（localPort > 0 时）
func (c *Checker) Preflight(ctx context.Context, host string, port int, baseURL string, localPort int) *Report {
	report := &Report{}
	report.Results = append(report.Results, c.CheckDNS(ctx, host))
	report.Results = append(report.Results, c.CheckTCP(ctx, host, port))
	report.Results = append(report.Results, c.CheckConsoleHealth(ctx, baseURL))
	if localPort > 0 {
		report.Results = append(report.Results, c.CheckLocalPort(localPort))
	}
	return report
}
