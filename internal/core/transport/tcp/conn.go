// Package tcp 实现 TCP 传输
package tcp

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Owner 连接句柄的持有者标识
//
// 同一时刻只有一个持有者对句柄拥有读写/关闭权限。
type Owner uint64

const (
	// OwnerCoordinator accept 后、分派前由协调器持有
	OwnerCoordinator Owner = 0
)

// ownerSeq 工作者持有者标识分配器（从 1 开始）
var ownerSeq atomic.Uint64

// NextOwner 分配一个新的工作者持有者标识
func NextOwner() Owner {
	return Owner(ownerSeq.Add(1))
}

// connSeq 连接编号分配器
var connSeq atomic.Uint64

// 确保实现 net.Conn 接口
var _ net.Conn = (*Conn)(nil)

// Conn 连接句柄
//
// 包装一个已 accept 的网络连接。协调器创建后通过 Claim 原子地转移给
// 唯一的工作者；底层描述符只会被物理关闭一次。
type Conn struct {
	conn     net.Conn
	id       uint64
	accepted time.Time

	owner  atomic.Uint64
	closed atomic.Bool
	closes atomic.Int32
}

// NewConn 包装一个已建立的连接，初始持有者为协调器
func NewConn(conn net.Conn) (*Conn, error) {
	if conn == nil {
		return nil, fmt.Errorf("连接不能为空")
	}
	return &Conn{
		conn:     conn,
		id:       connSeq.Add(1),
		accepted: time.Now(),
	}, nil
}

// ID 返回进程内唯一的连接编号
func (c *Conn) ID() uint64 {
	return c.id
}

// AcceptedAt 返回 accept 时间
func (c *Conn) AcceptedAt() time.Time {
	return c.accepted
}

// Owner 返回当前持有者
func (c *Conn) Owner() Owner {
	return Owner(c.owner.Load())
}

// Claim 将句柄从协调器转移给指定持有者
//
// 只有当前持有者为 OwnerCoordinator 时才能成功，且句柄未关闭。
// 转移不可逆：句柄之后只会以关闭状态回到协调器视野。
func (c *Conn) Claim(o Owner) error {
	if o == OwnerCoordinator {
		return fmt.Errorf("%w: 无效的持有者", ErrNotOwner)
	}
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if !c.owner.CompareAndSwap(uint64(OwnerCoordinator), uint64(o)) {
		return fmt.Errorf("%w: 当前持有者 %d", ErrNotOwner, c.owner.Load())
	}
	return nil
}

// OwnedBy 检查句柄是否由指定持有者持有
func (c *Conn) OwnedBy(o Owner) bool {
	return Owner(c.owner.Load()) == o
}

// ============================================================================
//                              net.Conn 接口实现
// ============================================================================

// Read 读取数据
func (c *Conn) Read(b []byte) (int, error) {
	return c.conn.Read(b)
}

// Write 写入数据
func (c *Conn) Write(b []byte) (int, error) {
	return c.conn.Write(b)
}

// Close 关闭连接
//
// 幂等：只有第一次调用会关闭底层描述符，之后返回 nil。
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.closes.Add(1)
	return c.conn.Close()
}

// IsClosed 检查是否已关闭
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Closes 返回底层描述符被物理关闭的次数（0 或 1）
func (c *Conn) Closes() int {
	return int(c.closes.Load())
}

// LocalAddr 返回本地地址
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr 返回远程地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline 设置超时
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline 设置读超时
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline 设置写超时
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// NetConn 返回底层连接
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

// String 返回可读描述
func (c *Conn) String() string {
	return fmt.Sprintf("conn#%d(%s)", c.id, c.conn.RemoteAddr())
}
