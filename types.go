package tlsworker

import (
	"github.com/dep2p/go-tlsworker/internal/core/coordinator"
	"github.com/dep2p/go-tlsworker/internal/core/lifecycle"
	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/core/worker"
)

// ════════════════════════════════════════════════════════════════════════════
//                              服务状态
// ════════════════════════════════════════════════════════════════════════════

// ServerState 服务状态
//
// Server 只能启动一次；Shutdown 之后进入 StateStopped，不可重新启动。
type ServerState int

const (
	// StateIdle 已创建，未启动
	StateIdle ServerState = iota

	// StateStarting 启动中（Fx App 启动中）
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中（排空在途连接）
	StateStopping

	// StateStopped 已停止
	StateStopped
)

// String 返回状态的字符串表示
func (s ServerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// Stats 协调器统计快照
type Stats = coordinator.Stats

// Outcome 一个已回收连接的结果
type Outcome = coordinator.Outcome

// Phase 生命周期阶段
type Phase = lifecycle.Phase

// Handler 会话处理器
type Handler = worker.Handler

// Session 已完成握手的 TLS 会话
type Session = tls.Session

// HandlerFunc 函数形式的会话处理器
type HandlerFunc = worker.HandlerFunc

// WorkerState 工作者完成状态
type WorkerState = worker.State

// 工作者完成状态
const (
	WorkerPending = worker.Pending
	WorkerSuccess = worker.Success
	WorkerFailed  = worker.Failed
)
