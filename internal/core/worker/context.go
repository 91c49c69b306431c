package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/core/transport/tcp"
)

// Context 工作者上下文
//
// 由协调器在分派前创建，只被分派到的那个工作者修改。完成标志是唯一的
// 跨 goroutine 写入点；err、info 和时间戳在终态发布前写入，
// 只有在 State().Terminal() 之后读取才有意义。
type Context struct {
	id     uuid.UUID
	conn   *tcp.Conn
	config *tls.SharedConfig

	done Completion

	err        error
	info       tls.SessionInfo
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time

	exited   chan struct{}
	exitOnce sync.Once
	released bool
}

// NewContext 创建处于 Pending 状态的工作者上下文
//
// 会对共享配置 Retain 一次，Release 在回收时调用。
func NewContext(conn *tcp.Conn, config *tls.SharedConfig, now time.Time) (*Context, error) {
	if conn == nil || config == nil {
		return nil, ErrNilContext
	}
	return &Context{
		id:        uuid.New(),
		conn:      conn,
		config:    config.Retain(),
		createdAt: now,
		exited:    make(chan struct{}),
	}, nil
}

// ID 返回上下文标识
func (c *Context) ID() uuid.UUID { return c.id }

// Conn 返回连接句柄
func (c *Context) Conn() *tcp.Conn { return c.conn }

// Config 返回共享配置
func (c *Context) Config() *tls.SharedConfig { return c.config }

// State 返回完成标志
func (c *Context) State() State { return c.done.Load() }

// Err 返回失败原因，Success 时为 nil
func (c *Context) Err() error { return c.err }

// Info 返回会话信息（握手未完成时为零值）
func (c *Context) Info() tls.SessionInfo { return c.info }

// CreatedAt 返回创建时间
func (c *Context) CreatedAt() time.Time { return c.createdAt }

// StartedAt 返回工作者开始时间
func (c *Context) StartedAt() time.Time { return c.startedAt }

// FinishedAt 返回终态写入时间
func (c *Context) FinishedAt() time.Time { return c.finishedAt }

// Exited 返回工作者退出信号
//
// 关闭发生在终态发布之后。
func (c *Context) Exited() <-chan struct{} { return c.exited }

// Join 等待工作者退出
func (c *Context) Join(ctx context.Context) error {
	select {
	case <-c.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abandon 在上下文无法交给工作者时结束它
//
// 关闭句柄、置 Failed 并标记退出。用于执行器拒绝任务等情况，
// 调用方必须保证没有工作者在运行此上下文。
func (c *Context) Abandon(cause error, now time.Time) bool {
	_ = c.conn.Close()
	ok := c.finish(Failed, errorsFrom(ErrAbandoned, cause), tls.SessionInfo{}, now)
	c.markExited()
	return ok
}

// Release 释放共享配置引用，只在回收时调用一次
func (c *Context) Release() {
	if c.released {
		return
	}
	c.released = true
	c.config.Release()
}

// finish 写入终态，只有第一次调用生效
func (c *Context) finish(s State, err error, info tls.SessionInfo, now time.Time) bool {
	if !c.done.begin() {
		return false
	}
	c.err = err
	c.info = info
	c.finishedAt = now
	c.done.publish(s)
	return true
}

func (c *Context) markExited() {
	c.exitOnce.Do(func() { close(c.exited) })
}
