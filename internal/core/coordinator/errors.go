package coordinator

import (
	"fmt"

	"github.com/brickingsoft/errors"
)

// 协调器错误
var (
	// ErrResourceExhausted 未完成上下文表已满（reject 策略）
	ErrResourceExhausted = errors.Define("coordinator: outstanding context table full")

	// ErrAcceptStopped accept 循环已停止
	ErrAcceptStopped = errors.Define("coordinator: accept stopped")

	// ErrExecutorClosed 执行器已关闭
	ErrExecutorClosed = errors.Define("coordinator: executor closed")

	// ErrDrainTimeout 关闭时未能在期限内回收全部上下文
	ErrDrainTimeout = errors.Define("coordinator: drain timed out")
)

// AcceptError 监听套接字返回的错误
//
// Temporary 为 true 时调用方应退避后重试；否则 accept 循环停止。
type AcceptError struct {
	Err       error
	temporary bool
}

// Error 实现 error 接口
func (e *AcceptError) Error() string {
	kind := "fatal"
	if e.temporary {
		kind = "temporary"
	}
	return fmt.Sprintf("accept (%s): %v", kind, e.Err)
}

// Unwrap 返回底层错误
func (e *AcceptError) Unwrap() error { return e.Err }

// Temporary 是否为临时错误
func (e *AcceptError) Temporary() bool { return e.temporary }

// Fatal 是否为致命错误
func (e *AcceptError) Fatal() bool { return !e.temporary }
