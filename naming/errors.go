package naming

import (
	"fmt"
	"strings"

	"github.com/ceyewan/beacon/xerrors"
)

var (
	// ErrTransport 网络层失败：DNS、TCP 连接、TLS、超时
	ErrTransport = xerrors.New("transport failure")

	// ErrProtocol 服务端返回非 2xx 状态或业务错误码
	ErrProtocol = xerrors.New("protocol failure")

	// ErrDecode 响应体不是合法 JSON 或缺少必需字段
	ErrDecode = xerrors.New("decode failure")

	// ErrConfig 必需配置缺失或格式非法
	ErrConfig = xerrors.New("invalid config")
)

// 错误码，通过 xerrors.GetCode 提取
const (
	CodeTimeout      = "timeout"
	CodeNotFound     = "not_found"
	CodeUnauthorized = "unauthorized"
	CodeConflict     = "conflict"
)

// ServerError 服务端拒绝请求的协议错误，携带状态码与服务端消息
//
// 错误链中包含 ErrProtocol，可用 xerrors.Is 判断。
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

func (e *ServerError) Unwrap() error {
	return ErrProtocol
}

// newServerError 按 HTTP 状态码附加错误码
func newServerError(status int, body string) error {
	err := &ServerError{Status: status, Message: strings.TrimSpace(body)}
	switch status {
	case 404:
		return xerrors.WithCode(err, CodeNotFound)
	case 401, 403:
		return xerrors.WithCode(err, CodeUnauthorized)
	case 409:
		return xerrors.WithCode(err, CodeConflict)
	}
	return err
}
