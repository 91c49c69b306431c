package worker

import (
	"fmt"

	"github.com/brickingsoft/errors"
	"github.com/google/uuid"
)

// 工作者错误
var (
	// ErrHandshake TLS 握手失败
	ErrHandshake = errors.Define("worker: tls handshake failed")

	// ErrSession 会话处理失败
	ErrSession = errors.Define("worker: session failed")

	// ErrAborted 工作者被协调器中止
	ErrAborted = errors.Define("worker: aborted")

	// ErrPanic 工作者发生 panic
	ErrPanic = errors.Define("worker: panic recovered")

	// ErrClaim 无法取得连接句柄
	ErrClaim = errors.Define("worker: cannot claim connection handle")

	// ErrAbandoned 上下文未被执行或工作者未写入终态即退出
	ErrAbandoned = errors.Define("worker: context abandoned")

	// ErrNilContext 工作者上下文参数无效
	ErrNilContext = errors.Define("worker: invalid context")
)

// HandshakeError 单个连接的握手错误
//
// 只影响所属的工作者上下文，从不导致进程级故障。
type HandshakeError struct {
	ContextID uuid.UUID
	Remote    string
	Engine    string
	Err       error
}

// Error 实现 error 接口
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake %s (%s via %s): %v", e.ContextID, e.Remote, e.Engine, e.Err)
}

// Unwrap 返回底层错误
func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrHandshake) 成立
func (e *HandshakeError) Is(target error) bool {
	return target == ErrHandshake
}

// errorsFrom 以 sentinel 为类别包装原因，cause 为空时只返回类别
func errorsFrom(kind error, cause error) error {
	if cause == nil {
		return errors.From(kind)
	}
	return errors.From(kind, errors.WithWrap(cause))
}
