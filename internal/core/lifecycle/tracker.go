// Package lifecycle 提供服务生命周期阶段追踪
//
// 阶段只能向前推进：
//
//	created → listening → serving → accept_stopped → draining → stopped
//
// accept_stopped 可能早于 draining 出现（致命 accept 错误），
// 此时在途工作者仍然正常回收，直到 Shutdown 推进到 draining。
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dep2p/go-tlsworker/internal/util/logger"
)

var log = logger.Logger("core/lifecycle")

// ============================================================================
//                              阶段定义
// ============================================================================

// Phase 生命周期阶段
type Phase int

const (
	// PhaseCreated 已创建，未启动
	PhaseCreated Phase = iota

	// PhaseListening 监听套接字已绑定
	PhaseListening

	// PhaseServing accept 与回收循环运行中
	PhaseServing

	// PhaseAcceptStopped 不再接受新连接，在途工作者继续回收
	PhaseAcceptStopped

	// PhaseDraining 关闭中：等待宽限期后中止剩余工作者
	PhaseDraining

	// PhaseStopped 所有上下文已回收，执行器已关闭
	PhaseStopped
)

// String 返回阶段字符串表示
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseListening:
		return "listening"
	case PhaseServing:
		return "serving"
	case PhaseAcceptStopped:
		return "accept_stopped"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// ============================================================================
//                              Tracker
// ============================================================================

// Tracker 生命周期阶段追踪器
//
// 每个阶段对应一个信号 channel，推进时关闭从当前到目标的所有信号。
type Tracker struct {
	mu sync.RWMutex

	phase        Phase
	phaseSignals map[Phase]chan struct{}

	onPhaseChange []func(old, new Phase)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTracker 创建追踪器
func NewTracker() *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		phase:        PhaseCreated,
		phaseSignals: make(map[Phase]chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	for p := PhaseCreated; p <= PhaseStopped; p++ {
		t.phaseSignals[p] = make(chan struct{})
	}
	close(t.phaseSignals[PhaseCreated])
	return t
}

// Phase 返回当前阶段
func (t *Tracker) Phase() Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

// AdvanceTo 推进到指定阶段
//
// 只能向前推进；推进到当前阶段是空操作。中间阶段的信号一并完成。
func (t *Tracker) AdvanceTo(target Phase) error {
	if target < PhaseCreated || target > PhaseStopped {
		return fmt.Errorf("invalid phase: %d", target)
	}

	t.mu.Lock()
	if target < t.phase {
		cur := t.phase
		t.mu.Unlock()
		return fmt.Errorf("cannot advance backwards: current=%s target=%s", cur, target)
	}
	if target == t.phase {
		t.mu.Unlock()
		return nil
	}

	old := t.phase
	for p := old; p <= target; p++ {
		ch := t.phaseSignals[p]
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
	t.phase = target

	callbacks := make([]func(old, new Phase), len(t.onPhaseChange))
	copy(callbacks, t.onPhaseChange)
	t.mu.Unlock()

	log.Info("生命周期阶段推进", "from", old.String(), "to", target.String())

	// 异步通知，避免回调阻塞
	go func() {
		for _, cb := range callbacks {
			cb(old, target)
		}
	}()
	return nil
}

// WaitFor 等待指定阶段完成
func (t *Tracker) WaitFor(ctx context.Context, phase Phase) error {
	t.mu.RLock()
	ch := t.phaseSignals[phase]
	t.mu.RUnlock()

	if ch == nil {
		return fmt.Errorf("invalid phase: %d", phase)
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

// WaitForWithTimeout 带超时等待指定阶段完成
func (t *Tracker) WaitForWithTimeout(phase Phase, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	return t.WaitFor(ctx, phase)
}

// IsCompleted 检查指定阶段是否已完成
func (t *Tracker) IsCompleted(phase Phase) bool {
	t.mu.RLock()
	ch := t.phaseSignals[phase]
	t.mu.RUnlock()

	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// OnPhaseChange 注册阶段变更回调
func (t *Tracker) OnPhaseChange(callback func(old, new Phase)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPhaseChange = append(t.onPhaseChange, callback)
}

// Stop 停止追踪器，所有 WaitFor 立即返回
func (t *Tracker) Stop() {
	t.cancel()
}

// Context 返回追踪器上下文
func (t *Tracker) Context() context.Context {
	return t.ctx
}
