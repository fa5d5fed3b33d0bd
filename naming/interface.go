package naming

import "context"

// Client Nacos 命名服务客户端接口
//
// 所有操作均为同步调用，阻塞至 HTTP 交互完成或超时。客户端内部不调度
// 任何周期性行为，心跳的定时发送由调用方负责（见 agent 包）。
type Client interface {
	// --- 服务发现 ---

	// ListInstances 查询服务实例列表
	// query 可为 nil，表示不过滤分组/集群且返回全部实例
	ListInstances(ctx context.Context, serviceName string, query *Query) (*Snapshot, error)

	// GetService 查询服务元信息（不含完整实例列表）
	// groupName 为空时使用服务端默认分组
	GetService(ctx context.Context, serviceName, groupName string) (*ServiceDetail, error)

	// --- 实例生命周期 ---

	// Register 注册服务实例
	// 服务端按 (serviceName, ip, port) 作 upsert：重复注册更新权重、
	// 元数据与 ephemeral 标志
	Register(ctx context.Context, reg *Registration) error

	// Deregister 注销服务实例
	// 实例不存在时服务端可能返回 not-found，客户端将其映射为带
	// not_found 错误码的协议错误而非静默成功，由调用方决定是否忽略
	Deregister(ctx context.Context, dereg *Deregistration) error

	// SendBeat 发送一次心跳，返回服务端报告的心跳间隔与轻量心跳标志
	// 未注册的实例会得到带 not_found 错误码的协议错误
	SendBeat(ctx context.Context, beat *Beat) (*BeatResult, error)
}
