package metrics

import (
	"time"

	"github.com/dep2p/go-tlsworker/internal/core/worker"
)

// Reporter 记录协调器与工作者事件
//
// 实现必须并发安全。
type Reporter interface {
	worker.Observer

	// ConnAccepted 记录一次成功 accept
	ConnAccepted()

	// ConnRejected 记录一次拒绝（例如表满）
	ConnRejected(reason string)

	// AcceptError 记录 accept 错误
	AcceptError(temporary bool)

	// Reaped 记录一次回收，forced 表示协调器代为关闭了句柄
	Reaped(forced bool)

	// SetOutstanding 设置当前未完成上下文数
	SetOutstanding(n int)
}

// NopReporter 不记录任何内容
type NopReporter struct{}

// 确保实现 Reporter 接口
var _ Reporter = NopReporter{}

func (NopReporter) ConnAccepted()                                      {}
func (NopReporter) ConnRejected(string)                                {}
func (NopReporter) AcceptError(bool)                                   {}
func (NopReporter) Reaped(bool)                                        {}
func (NopReporter) SetOutstanding(int)                                 {}
func (NopReporter) HandshakeDone(string, uint16, time.Duration, error) {}
func (NopReporter) WorkerDone(worker.State, time.Duration)             {}
