// Package tcp 实现 TCP 传输
package tcp

import "errors"

var (
	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("listener closed")

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotOwner 调用方不是连接句柄的持有者
	ErrNotOwner = errors.New("connection handle not owned by caller")
)
