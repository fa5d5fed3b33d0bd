package naming

import (
	"net/url"
	"strings"
	"time"

	"github.com/ceyewan/beacon/xerrors"
)

// Config 客户端配置，构造后不可变
type Config struct {
	// ServerAddr 服务端基础地址，形如 http://host:port。
	// 未携带协议时补全为 http://
	ServerAddr string `yaml:"server_addr" json:"server_addr"`

	// Username/Password 可选凭证，必须同时设置或同时为空。
	// 设置后客户端通过登录接口换取 accessToken 并附加到后续请求
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// Timeout 单次请求超时，默认 8s
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// TokenTTL 登录响应未携带 tokenTtl 时的回退有效期，默认 5m
	TokenTTL time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// validate 验证并规范化配置
//
// ServerAddr 去除末尾斜杠，缺少协议时补 http://。
func (c *Config) validate() error {
	if c.ServerAddr == "" {
		return xerrors.Wrap(ErrConfig, "server_addr is required")
	}

	addr := strings.TrimRight(strings.TrimSpace(c.ServerAddr), "/")
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return xerrors.Wrapf(ErrConfig, "malformed server_addr %q", c.ServerAddr)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return xerrors.Wrapf(ErrConfig, "unsupported scheme %q in server_addr", u.Scheme)
	}
	c.ServerAddr = addr

	if (c.Username == "") != (c.Password == "") {
		return xerrors.Wrap(ErrConfig, "username and password must be set together")
	}

	if c.Timeout == 0 {
		c.Timeout = 8 * time.Second
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 5 * time.Minute
	}

	return nil
}

// hasCredentials 是否配置了登录凭证
func (c *Config) hasCredentials() bool {
	return c.Username != "" && c.Password != ""
}
