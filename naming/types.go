package naming

import "time"

// Instance 代表一个已注册的服务实例
type Instance struct {
	Ip          string            `json:"ip"`          // 实例 IP
	Port        int               `json:"port"`        // 实例端口 (1-65535)
	Weight      float64           `json:"weight"`      // 负载权重，默认 1.0
	Healthy     bool              `json:"healthy"`     // 健康状态
	Enabled     bool              `json:"enabled"`     // 是否接收流量
	Ephemeral   bool              `json:"ephemeral"`   // 是否为临时实例（依赖心跳续约）
	ClusterName string            `json:"clusterName"` // 所属集群
	ServiceName string            `json:"serviceName"` // 所属服务
	Metadata    map[string]string `json:"metadata"`    // 元数据
}

// Snapshot 一次实例列表查询的只读结果
//
// 客户端不做本地缓存，CacheMillis 仅透传服务端建议的缓存时长。
type Snapshot struct {
	Name        string     `json:"name"`
	GroupName   string     `json:"groupName"`
	Clusters    string     `json:"clusters"`
	CacheMillis int64      `json:"cacheMillis"`
	Hosts       []Instance `json:"hosts"`
}

// ServiceDetail 服务元信息，不含完整实例负载
type ServiceDetail struct {
	Name             string            `json:"name"`
	GroupName        string            `json:"groupName"`
	ProtectThreshold float64           `json:"protectThreshold"`
	Metadata         map[string]string `json:"metadata"`
	Clusters         []Cluster         `json:"clusters"`
	IPCount          int               `json:"ipCount"`
}

// Cluster 服务下的集群信息
type Cluster struct {
	Name string `json:"name"`
}

// Query 实例列表查询的过滤条件
type Query struct {
	GroupName   string // 分组名，空值由服务端按默认分组处理
	Clusters    string // 集群过滤，逗号分隔
	HealthyOnly bool   // 仅返回健康实例
}

// Registration 注册一个实例所需的参数
//
// 使用 NewRegistration 构造以获得与服务端一致的默认值。
type Registration struct {
	ServiceName string
	Ip          string
	Port        int
	Weight      float64
	ClusterName string
	GroupName   string
	Healthy     bool
	Enabled     bool
	Ephemeral   bool
	Metadata    map[string]string
}

// NewRegistration 构造带默认值的注册参数：
// 权重 1.0，healthy/enabled/ephemeral 均为 true
func NewRegistration(serviceName, ip string, port int) *Registration {
	return &Registration{
		ServiceName: serviceName,
		Ip:          ip,
		Port:        port,
		Weight:      1.0,
		Healthy:     true,
		Enabled:     true,
		Ephemeral:   true,
	}
}

// Deregistration 注销一个实例所需的参数
type Deregistration struct {
	ServiceName string
	Ip          string
	Port        int
	ClusterName string
	GroupName   string
}

// Beat 一次心跳的参数
type Beat struct {
	ServiceName string
	Ip          string
	Port        int
	ClusterName string
	GroupName   string
	Weight      float64
	Metadata    map[string]string
}

// BeatResult 心跳响应
type BeatResult struct {
	// ClientBeatInterval 服务端建议的下次心跳间隔
	ClientBeatInterval time.Duration

	// LightBeatEnabled 服务端是否接受轻量心跳；为 false 时调用方
	// 应执行一次完整的重新注册
	LightBeatEnabled bool

	// Code 服务端业务码
	Code int
}
