package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/rxp"

	"github.com/dep2p/go-tlsworker/config"
)

// Executor 运行工作者任务
//
// Execute 返回错误表示任务没有被执行，调用方负责结束对应的上下文。
type Executor interface {
	Execute(ctx context.Context, task func()) error
	Close() error
}

// NewExecutor 按池配置创建执行器
func NewExecutor(cfg config.PoolConfig) (Executor, error) {
	switch cfg.Mode {
	case config.ModeSpawn:
		return &spawnExecutor{}, nil
	case config.ModePooled, "":
		return newPooledExecutor(cfg.MaxWorkers, cfg.ShutdownGrace.Duration())
	default:
		return nil, fmt.Errorf("unknown executor mode %q", cfg.Mode)
	}
}

// ============================================================================
//                              pooledExecutor
// ============================================================================

// pooledExecutor 基于 rxp 的有界协程池
type pooledExecutor struct {
	exec   rxp.Executors
	closed atomic.Bool
}

func newPooledExecutor(maxWorkers int, closeTimeout time.Duration) (*pooledExecutor, error) {
	opts := []rxp.Option{rxp.WithMaxGoroutines(maxWorkers)}
	if closeTimeout > 0 {
		opts = append(opts, rxp.WithCloseTimeout(closeTimeout))
	}
	exec, err := rxp.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create executors: %w", err)
	}
	return &pooledExecutor{exec: exec}, nil
}

// taskFunc 把函数适配为 rxp.Task
type taskFunc func()

func (f taskFunc) Handle(context.Context) { f() }

func (e *pooledExecutor) Execute(ctx context.Context, task func()) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	if err := e.exec.Execute(ctx, taskFunc(task)); err != nil {
		if rxp.IsClosed(err) {
			return ErrExecutorClosed
		}
		return err
	}
	return nil
}

// Close 等待已提交的任务结束后关闭，受 WithCloseTimeout 约束
func (e *pooledExecutor) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.exec.Close()
}

// ============================================================================
//                              spawnExecutor
// ============================================================================

// spawnExecutor 每个任务一个 goroutine
type spawnExecutor struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func (e *spawnExecutor) Execute(_ context.Context, task func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		task()
	}()
	return nil
}

// Close 等待所有任务结束
func (e *spawnExecutor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}
