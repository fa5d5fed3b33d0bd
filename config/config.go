// Package config 提供 Agent 的环境变量配置加载与校验。
//
// 配置来源优先级：进程环境变量 > .env 文件 > 内置默认值。
// 所有键与部署脚本使用的环境变量同名（NACOS_SERVER、SERVICE_NAME 等）。
package config

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/xerrors"
)

// ErrValidation 配置校验失败
var ErrValidation = xerrors.New("config validation failed")

// AgentConfig 运行 Agent 所需的全部配置
type AgentConfig struct {
	// NacosServer 注册中心地址，支持逗号分隔的多个地址，
	// 每个地址缺少协议时按 http:// 处理
	NacosServer string `mapstructure:"nacos_server"`

	// NacosUsername/NacosPassword 可选凭证，必须同时设置或同时为空
	NacosUsername string `mapstructure:"nacos_username"`
	NacosPassword string `mapstructure:"nacos_password"`

	// ServiceName 注册的服务名，只允许字母、数字、连字符和下划线
	ServiceName string `mapstructure:"service_name"`

	// Group/Cluster 可选的分组与集群
	Group   string `mapstructure:"nacos_group"`
	Cluster string `mapstructure:"nacos_cluster"`

	// PublicIP 对外公布的实例 IP
	PublicIP string `mapstructure:"public_ip"`

	// Port 实例端口，注册与本地健康服务共用
	Port int `mapstructure:"port"`

	// WalletAddress 钱包地址，作为实例元数据上报
	WalletAddress string `mapstructure:"wallet_address"`

	// Node 节点标识，为空时回退为 PublicIP
	Node string `mapstructure:"node"`

	// HeartbeatInterval 心跳间隔秒数
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`

	// HTTPTimeout 注册中心请求超时秒数
	HTTPTimeout int `mapstructure:"nacos_http_timeout"`

	// InitialReconnectDelay/MaxReconnectDelay 重连退避区间秒数
	InitialReconnectDelay int `mapstructure:"initial_reconnect_delay"`
	MaxReconnectDelay     int `mapstructure:"max_reconnect_delay"`

	// LogLevel/LogFile 日志级别与输出文件（空值输出到 stdout）
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

var (
	nameRe   = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	walletRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Load 加载并校验配置
//
// envFiles 为可选的 .env 文件路径，缺失的文件忽略；随后读取进程
// 环境变量并应用默认值。
func Load(envFiles ...string) (*AgentConfig, error) {
	// .env 尽力加载，不存在不视为错误
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else {
		for _, f := range envFiles {
			_ = godotenv.Load(f)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg AgentConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Wrap(err, "unmarshal config")
	}

	if cfg.Node == "" {
		cfg.Node = cfg.PublicIP
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults 注册全部键的默认值
//
// viper 的 AutomaticEnv 只对已知键生效，这里同时充当键清单。
func setDefaults(v *viper.Viper) {
	v.SetDefault("nacos_server", "")
	v.SetDefault("nacos_username", "")
	v.SetDefault("nacos_password", "")
	v.SetDefault("service_name", "")
	v.SetDefault("nacos_group", "DEFAULT_GROUP")
	v.SetDefault("nacos_cluster", "")
	v.SetDefault("public_ip", "")
	v.SetDefault("port", 11434)
	v.SetDefault("wallet_address", "")
	v.SetDefault("node", "")
	v.SetDefault("heartbeat_interval", 5)
	v.SetDefault("nacos_http_timeout", 8)
	v.SetDefault("initial_reconnect_delay", 5)
	v.SetDefault("max_reconnect_delay", 300)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

// Validate 校验配置
func (c *AgentConfig) Validate() error {
	if c.NacosServer == "" {
		return xerrors.Wrap(ErrValidation, "NACOS_SERVER is required")
	}
	for _, srv := range c.Servers() {
		if _, _, err := splitServer(srv); err != nil {
			return xerrors.Wrapf(ErrValidation, "malformed NACOS_SERVER entry %q", srv)
		}
	}

	if c.ServiceName == "" {
		return xerrors.Wrap(ErrValidation, "SERVICE_NAME is required")
	}
	if !nameRe.MatchString(c.ServiceName) {
		return xerrors.Wrapf(ErrValidation, "SERVICE_NAME contains invalid characters: %s", c.ServiceName)
	}
	if c.Group != "" && !nameRe.MatchString(c.Group) {
		return xerrors.Wrapf(ErrValidation, "NACOS_GROUP contains invalid characters: %s", c.Group)
	}
	if c.Cluster != "" && !nameRe.MatchString(c.Cluster) {
		return xerrors.Wrapf(ErrValidation, "NACOS_CLUSTER contains invalid characters: %s", c.Cluster)
	}

	if c.PublicIP == "" {
		return xerrors.Wrap(ErrValidation, "PUBLIC_IP is required")
	}
	if net.ParseIP(c.PublicIP) == nil {
		return xerrors.Wrapf(ErrValidation, "PUBLIC_IP is not a valid IP address: %s", c.PublicIP)
	}

	if c.Port < 1 || c.Port > 65535 {
		return xerrors.Wrapf(ErrValidation, "PORT %d out of range [1,65535]", c.Port)
	}

	if c.WalletAddress == "" {
		return xerrors.Wrap(ErrValidation, "WALLET_ADDRESS is required")
	}
	if !walletRe.MatchString(c.WalletAddress) {
		return xerrors.Wrapf(ErrValidation, "WALLET_ADDRESS is not a valid address: %s", c.WalletAddress)
	}

	if (c.NacosUsername == "") != (c.NacosPassword == "") {
		return xerrors.Wrap(ErrValidation, "NACOS_USERNAME and NACOS_PASSWORD must be set together")
	}

	if c.HeartbeatInterval < 1 {
		return xerrors.Wrapf(ErrValidation, "HEARTBEAT_INTERVAL must be positive, got %d", c.HeartbeatInterval)
	}

	if _, err := clog.ParseLevel(c.LogLevel); err != nil {
		return xerrors.Wrapf(ErrValidation, "LOG_LEVEL invalid: %s", c.LogLevel)
	}

	return nil
}

// Servers 返回逗号拆分后的服务端地址列表
func (c *AgentConfig) Servers() []string {
	var servers []string
	for _, s := range strings.Split(c.NacosServer, ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}

// PrimaryServer 返回第一个服务端地址，用于构造客户端与连通性探测
func (c *AgentConfig) PrimaryServer() string {
	if servers := c.Servers(); len(servers) > 0 {
		return servers[0]
	}
	return ""
}

// Heartbeat 心跳间隔
func (c *AgentConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

// Timeout 注册中心请求超时
func (c *AgentConfig) Timeout() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

// InitialReconnectDelayDuration 重连退避起始间隔
func (c *AgentConfig) InitialReconnectDelayDuration() time.Duration {
	return time.Duration(c.InitialReconnectDelay) * time.Second
}

// MaxReconnectDelayDuration 重连退避上限
func (c *AgentConfig) MaxReconnectDelayDuration() time.Duration {
	return time.Duration(c.MaxReconnectDelay) * time.Second
}

// Metadata 注册实例时携带的元数据
func (c *AgentConfig) Metadata() map[string]string {
	return map[string]string{
		"walletAddress": c.WalletAddress,
		"node":          c.Node,
	}
}

// LogConfig 由配置派生的日志配置
func (c *AgentConfig) LogConfig() *clog.Config {
	output := "stdout"
	if c.LogFile != "" {
		output = c.LogFile
	}
	return &clog.Config{
		Level:  c.LogLevel,
		Format: "json",
		Output: output,
	}
}

// splitServer 解析单个服务端地址为 host 和端口
//
// 支持 host:port、http://host:port、https://host:port 三种形式，
// 未写端口时按协议取 80/443。
func splitServer(server string) (string, int, error) {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Hostname() == "" {
		return "", 0, xerrors.Wrapf(ErrValidation, "malformed server address %q", server)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", 0, xerrors.Wrapf(ErrValidation, "unsupported scheme %q", u.Scheme)
	}

	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		port = atoiPort(p)
		if port == 0 {
			return "", 0, xerrors.Wrapf(ErrValidation, "invalid port in %q", server)
		}
	}
	return u.Hostname(), port, nil
}

// SplitServer 导出的地址解析，供连通性探测使用
func SplitServer(server string) (string, int, error) {
	return splitServer(server)
}

func atoiPort(s string) int {
	port := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		port = port*10 + int(r-'0')
		if port > 65535 {
			return 0
		}
	}
	return port
}
