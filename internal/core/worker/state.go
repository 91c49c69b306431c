package worker

import "sync/atomic"

// State 完成标志的取值
type State int32

const (
	// Pending 尚未完成
	Pending State = iota
	// Success 握手与会话成功结束
	Success
	// Failed 握手、会话失败或被中止
	Failed

	// finishing 终态写入中，对外仍表现为 Pending
	finishing State = -1
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case Pending, finishing:
		return "pending"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal 是否为终态
func (s State) Terminal() bool {
	return s == Success || s == Failed
}

// Completion 三态完成标志
//
// 只有第一个 begin 成功的写入者能够发布终态，之后的写入全部失败。
// 终态通过原子存储发布，读到终态的一方能看到写入者在发布前的全部写操作。
type Completion struct {
	v atomic.Int32
}

// Load 读取当前状态
func (c *Completion) Load() State {
	s := State(c.v.Load())
	if s == finishing {
		return Pending
	}
	return s
}

// begin 抢占写入权
func (c *Completion) begin() bool {
	return c.v.CompareAndSwap(int32(Pending), int32(finishing))
}

// publish 发布终态，必须在 begin 成功之后调用
func (c *Completion) publish(s State) {
	if !s.Terminal() {
		panic("worker: publish non-terminal state " + s.String())
	}
	c.v.Store(int32(s))
}
