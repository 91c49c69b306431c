// Package tcp 实现 TCP 传输
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tec "github.com/jbenet/go-temp-err-catcher"
)

// ============================================================================
//                              Listener 实现
// ============================================================================

// ListenOptions 监听选项
type ListenOptions struct {
	// KeepAlive TCP keep-alive 周期，0 表示使用系统默认
	KeepAlive time.Duration

	// NoDelay 是否禁用 Nagle 算法
	NoDelay bool

	// BackoffStart 临时错误初始退避
	BackoffStart time.Duration

	// BackoffMax 临时错误最大退避
	BackoffMax time.Duration
}

// DefaultListenOptions 返回默认监听选项
func DefaultListenOptions() ListenOptions {
	return ListenOptions{
		KeepAlive:    15 * time.Second,
		NoDelay:      true,
		BackoffStart: 5 * time.Millisecond,
		BackoffMax:   time.Second,
	}
}

// Listener TCP 监听器
//
// Accept 返回的连接句柄初始由协调器持有。
type Listener struct {
	listener net.Listener
	opts     ListenOptions
	closed   atomic.Bool

	catcherMu sync.Mutex
	catcher   tec.TempErrCatcher
}

// Listen 在指定地址上创建监听器
func Listen(ctx context.Context, network, address string, opts ListenOptions) (*Listener, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("不支持的网络类型: %s", network)
	}

	lc := net.ListenConfig{KeepAlive: opts.KeepAlive}
	l, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("监听失败: %w", err)
	}
	return NewListener(l, opts), nil
}

// NewListener 包装一个已有的 net.Listener
//
// 宿主环境（例如 enclave 运行时）自行创建监听套接字时使用。
func NewListener(l net.Listener, opts ListenOptions) *Listener {
	return &Listener{
		listener: l,
		opts:     opts,
		catcher: tec.TempErrCatcher{
			IsTemp: IsTemporary,
			Start:  opts.BackoffStart,
			Max:    opts.BackoffMax,
		},
	}
}

// Accept 接受连接
//
// 监听器关闭后返回 ErrListenerClosed；其余错误原样返回，
// 由调用方通过 Backoff 判断是否为临时错误。
func (l *Listener) Accept() (*Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		if l.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", ErrListenerClosed, err)
		}
		return nil, err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(l.opts.NoDelay)
		if l.opts.KeepAlive > 0 {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(l.opts.KeepAlive)
		}
	}

	return NewConn(conn)
}

// Backoff 判断 accept 错误是否为临时错误
//
// 临时错误会按指数退避阻塞一段时间后返回 true，调用方应重试；
// 返回 false 表示错误是致命的，应停止 accept。
func (l *Listener) Backoff(err error) bool {
	if err == nil || errors.Is(err, ErrListenerClosed) {
		return false
	}
	l.catcherMu.Lock()
	defer l.catcherMu.Unlock()
	return l.catcher.IsTemporary(err)
}

// Addr 返回监听地址
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close 关闭监听器
func (l *Listener) Close() error {
	if l.closed.CompareAndSwap(false, true) {
		return l.listener.Close()
	}
	return nil
}

// IsClosed 检查监听器是否已关闭
func (l *Listener) IsClosed() bool {
	return l.closed.Load()
}

// IsTemporary 判断 accept 错误是否可重试
//
// 文件描述符耗尽、连接在 accept 前被对端中止等情况视为临时错误。
func IsTemporary(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EMFILE),
		errors.Is(err, syscall.ENFILE),
		errors.Is(err, syscall.ENOBUFS),
		errors.Is(err, syscall.ENOMEM):
		return true
	}
	return tec.ErrIsTemporary(err)
}
