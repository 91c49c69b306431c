package worker

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
)

// DefaultIdleTimeout 会话默认空闲超时
const DefaultIdleTimeout = 30 * time.Second

// DefaultGreeting GreetingHandler 默认响应
const DefaultGreeting = "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\nSuccessful connection using TLS\r\n"

// Handler 会话处理器
//
// Serve 在握手成功后被调用，返回 nil 表示会话正常结束。
// 处理器不负责关闭会话。
type Handler interface {
	Serve(ctx context.Context, sess tls.Session) error
}

// HandlerFunc 函数形式的处理器
type HandlerFunc func(ctx context.Context, sess tls.Session) error

// Serve 实现 Handler
func (f HandlerFunc) Serve(ctx context.Context, sess tls.Session) error {
	return f(ctx, sess)
}

// EchoHandler 回显处理器，对端关闭连接时正常结束
type EchoHandler struct {
	IdleTimeout time.Duration
	BufferSize  int
}

// Serve 实现 Handler
func (h EchoHandler) Serve(ctx context.Context, sess tls.Session) error {
	size := h.BufferSize
	if size <= 0 {
		size = 4096
	}
	buf := make([]byte, size)
	for {
		if err := armDeadline(ctx, sess, h.IdleTimeout); err != nil {
			return err
		}
		n, err := sess.Read(buf)
		if n > 0 {
			if _, werr := sess.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if isCleanEOF(err) {
				return nil
			}
			return err
		}
	}
}

// GreetingHandler 读取一次请求后写回固定响应
type GreetingHandler struct {
	Greeting    string
	IdleTimeout time.Duration
}

// Serve 实现 Handler
func (h GreetingHandler) Serve(ctx context.Context, sess tls.Session) error {
	greeting := h.Greeting
	if greeting == "" {
		greeting = DefaultGreeting
	}

	if err := armDeadline(ctx, sess, h.IdleTimeout); err != nil {
		return err
	}
	buf := make([]byte, 1024)
	if _, err := sess.Read(buf); err != nil && !isCleanEOF(err) {
		return err
	}

	if err := armDeadline(ctx, sess, h.IdleTimeout); err != nil {
		return err
	}
	_, err := io.WriteString(sess, greeting)
	return err
}

// armDeadline 设置空闲截止时间
//
// 设置之后再检查 ctx：若此时已取消，中止回调可能先于本次设置执行，
// 因此重新把截止时间设为当前时间。
func armDeadline(ctx context.Context, c net.Conn, d time.Duration) error {
	if d <= 0 {
		d = DefaultIdleTimeout
	}
	_ = c.SetDeadline(time.Now().Add(d))
	if err := ctx.Err(); err != nil {
		_ = c.SetDeadline(time.Now())
		return err
	}
	return nil
}

func isCleanEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
