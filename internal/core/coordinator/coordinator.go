package coordinator

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/brickingsoft/errors"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/metrics"
	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/core/transport/tcp"
	"github.com/dep2p/go-tlsworker/internal/core/worker"
	"github.com/dep2p/go-tlsworker/internal/util/logger"
)

var log = logger.Logger("core/coordinator")

// Options 协调器选项
type Options struct {
	// MaxOutstanding 未完成上下文表容量
	MaxOutstanding int

	// Backpressure 表满策略: config.BackpressureBlock / config.BackpressureReject
	Backpressure string

	// ReapInterval 回收周期
	ReapInterval time.Duration

	// ShutdownGrace 关闭时等待在途工作者自然结束的时间
	ShutdownGrace time.Duration

	// HistorySize 最近结果容量
	HistorySize int

	// AcceptLimiter accept 限速器，nil 表示不限速
	AcceptLimiter *rate.Limiter

	// Clock 时钟，nil 使用真实时钟
	Clock clock.Clock

	// Reporter 指标，nil 不记录
	Reporter metrics.Reporter

	// OnAcceptStopped accept 循环停止时回调，err 为致命错误或 nil
	OnAcceptStopped func(err error)
}

// OptionsFromConfig 从统一配置创建选项
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	opts := Options{
		MaxOutstanding: cfg.Pool.MaxOutstanding,
		Backpressure:   cfg.Pool.Backpressure,
		ReapInterval:   cfg.Pool.ReapInterval.Duration(),
		ShutdownGrace:  cfg.Pool.ShutdownGrace.Duration(),
		HistorySize:    cfg.Pool.HistorySize,
	}
	if cfg.Listen.AcceptRate > 0 {
		opts.AcceptLimiter = rate.NewLimiter(rate.Limit(cfg.Listen.AcceptRate), cfg.Listen.AcceptBurst)
	}
	return opts
}

// Stats 协调器统计快照
type Stats struct {
	Accepted     uint64
	Dispatched   uint64
	Rejected     uint64
	AcceptErrors uint64
	Succeeded    uint64
	Failed       uint64
	Reaped       uint64
	ForcedCloses uint64
	Outstanding  int
}

type counters struct {
	accepted     atomic.Uint64
	dispatched   atomic.Uint64
	rejected     atomic.Uint64
	acceptErrors atomic.Uint64
	succeeded    atomic.Uint64
	failed       atomic.Uint64
	reaped       atomic.Uint64
	forced       atomic.Uint64
}

// Coordinator 接受连接、分派工作者并回收已完成的上下文
//
// Reap 是释放工作者上下文的唯一路径：只有在完成标志为终态、
// 工作者已退出、句柄确认关闭之后，上下文才会从表中移除。
type Coordinator struct {
	listener *tcp.Listener
	shared   *tls.SharedConfig
	worker   *worker.Worker
	exec     Executor

	table   *table
	history *history
	opts    Options
	clock   clock.Clock
	report  metrics.Reporter

	// abortCtx 传给所有工作者，取消即要求中止
	abortCtx context.Context
	abort    context.CancelFunc

	// acceptCtx 取消后 accept 循环退出
	acceptCtx  context.Context
	stopAccept context.CancelFunc

	// dispatchMu 串行化「检查 acceptCtx + 入表」与 Shutdown 的停止点
	dispatchMu sync.Mutex

	wake         chan struct{}
	done         chan struct{}
	acceptDone   chan struct{}
	acceptErr    error
	acceptOnce   sync.Once
	serving      atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error

	reapMu sync.Mutex
	stats  counters
}

// New 创建协调器
func New(listener *tcp.Listener, shared *tls.SharedConfig, w *worker.Worker, exec Executor, opts Options) (*Coordinator, error) {
	if listener == nil || shared == nil || w == nil || exec == nil {
		return nil, fmt.Errorf("coordinator: listener, shared config, worker and executor are required")
	}
	if opts.MaxOutstanding <= 0 {
		return nil, fmt.Errorf("coordinator: max outstanding must be positive, got %d", opts.MaxOutstanding)
	}
	switch opts.Backpressure {
	case "":
		opts.Backpressure = config.BackpressureBlock
	case config.BackpressureBlock, config.BackpressureReject:
	default:
		return nil, fmt.Errorf("coordinator: unknown backpressure policy %q", opts.Backpressure)
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = config.DefaultPoolConfig().ReapInterval.Duration()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Reporter == nil {
		opts.Reporter = metrics.NopReporter{}
	}

	h, err := newHistory(opts.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("coordinator: history: %w", err)
	}

	c := &Coordinator{
		listener:   listener,
		shared:     shared,
		worker:     w,
		exec:       exec,
		table:      newTable(opts.MaxOutstanding),
		history:    h,
		opts:       opts,
		clock:      opts.Clock,
		report:     opts.Reporter,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		acceptDone: make(chan struct{}),
	}
	c.abortCtx, c.abort = context.WithCancel(context.Background())
	c.acceptCtx, c.stopAccept = context.WithCancel(context.Background())
	return c, nil
}

// ============================================================================
//                              accept / dispatch
// ============================================================================

// AcceptAndDispatch 接受一个连接并交给工作者
//
// block 策略在 accept 之前等待空槽位；reject 策略在表满时仍然 accept，
// 随后立即关闭连接并返回 ErrResourceExhausted。
// accept 失败返回 *AcceptError。
func (c *Coordinator) AcceptAndDispatch(ctx context.Context) error {
	if c.acceptCtx.Err() != nil {
		return ErrAcceptStopped
	}

	reserved := false
	if c.opts.Backpressure == config.BackpressureBlock {
		if err := c.table.acquire(ctx); err != nil {
			return err
		}
		reserved = true
	} else {
		reserved = c.table.tryAcquire()
	}

	if c.opts.AcceptLimiter != nil {
		if err := c.opts.AcceptLimiter.Wait(ctx); err != nil {
			if reserved {
				c.table.release()
			}
			return err
		}
	}

	conn, err := c.listener.Accept()
	if err != nil {
		if reserved {
			c.table.release()
		}
		temporary := !stderrors.Is(err, tcp.ErrListenerClosed) && tcp.IsTemporary(err)
		c.stats.acceptErrors.Add(1)
		c.report.AcceptError(temporary)
		return &AcceptError{Err: err, temporary: temporary}
	}
	c.stats.accepted.Add(1)
	c.report.ConnAccepted()

	if !reserved {
		_ = conn.Close()
		c.stats.rejected.Add(1)
		c.report.ConnRejected("table_full")
		log.Debug("未完成上下文表已满，拒绝连接", "conn", conn.String(), "capacity", c.table.capacity)
		return errors.From(ErrResourceExhausted)
	}

	// Shutdown 越过停止点后不再入表，否则该上下文可能无人回收
	c.dispatchMu.Lock()
	if c.acceptCtx.Err() != nil {
		c.dispatchMu.Unlock()
		_ = conn.Close()
		c.table.release()
		c.stats.rejected.Add(1)
		c.report.ConnRejected("shutdown")
		log.Debug("正在关闭，丢弃已接受的连接", "conn", conn.String())
		return ErrAcceptStopped
	}
	wctx, err := worker.NewContext(conn, c.shared, c.clock.Now())
	if err != nil {
		c.dispatchMu.Unlock()
		_ = conn.Close()
		c.table.release()
		return err
	}
	c.shared.Publish()
	c.table.insert(wctx)
	c.dispatchMu.Unlock()
	c.report.SetOutstanding(c.table.len())

	task := c.worker.Task(c.abortCtx, wctx)
	if err := c.exec.Execute(ctx, func() {
		task()
		c.wakeReaper()
	}); err != nil {
		// 任务未运行，由协调器结束上下文，仍走正常回收路径
		wctx.Abandon(err, c.clock.Now())
		c.wakeReaper()
		log.Warn("执行器拒绝任务", "ctx", wctx.ID().String(), "err", err)
		return nil
	}
	c.stats.dispatched.Add(1)
	return nil
}

// Serve 运行 accept 循环和回收循环
//
// 临时 accept 错误按指数退避重试；致命错误只停止 accept 循环，
// 回收继续进行直到 Shutdown。ctx 取消等同于停止 accept 并结束回收循环。
// 返回致命的 accept 错误（如果有）。
func (c *Coordinator) Serve(ctx context.Context) error {
	if !c.serving.CompareAndSwap(false, true) {
		return fmt.Errorf("coordinator: already serving")
	}

	stop := context.AfterFunc(ctx, c.stopAccepting)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.acceptLoop()
		return nil
	})
	g.Go(func() error {
		c.reapLoop(gctx)
		return nil
	})
	_ = g.Wait()

	return c.acceptErr
}

func (c *Coordinator) acceptLoop() {
	var fatal error
	defer func() { c.finishAccept(fatal) }()

	for {
		err := c.AcceptAndDispatch(c.acceptCtx)
		if err == nil {
			continue
		}

		var ae *AcceptError
		switch {
		case errors.Is(err, ErrResourceExhausted):
			continue
		case errors.Is(err, ErrAcceptStopped), c.acceptCtx.Err() != nil:
			return
		case stderrors.As(err, &ae):
			if stderrors.Is(ae.Err, tcp.ErrListenerClosed) {
				return
			}
			if ae.Temporary() && c.listener.Backoff(ae.Err) {
				log.Debug("临时 accept 错误，退避后重试", "err", ae.Err)
				continue
			}
			log.Error("致命 accept 错误，停止接受新连接", "err", ae.Err)
			fatal = ae
			return
		default:
			log.Error("分派失败，停止接受新连接", "err", err)
			fatal = err
			return
		}
	}
}

// finishAccept 标记 accept 循环结束
func (c *Coordinator) finishAccept(err error) {
	c.acceptOnce.Do(func() {
		c.acceptErr = err
		close(c.acceptDone)
		if c.opts.OnAcceptStopped != nil {
			c.opts.OnAcceptStopped(err)
		}
	})
}

// AcceptDone accept 循环结束后关闭
func (c *Coordinator) AcceptDone() <-chan struct{} {
	return c.acceptDone
}

func (c *Coordinator) reapLoop(ctx context.Context) {
	ticker := c.clock.Ticker(c.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-c.wake:
		case <-c.done:
			c.Reap()
			return
		case <-ctx.Done():
			c.Reap()
			return
		}
		c.Reap()
	}
}

func (c *Coordinator) wakeReaper() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// ============================================================================
//                              reap
// ============================================================================

// Reap 回收所有处于终态的上下文，返回回收数量
//
// 对每个终态上下文：等待工作者退出，确认句柄已关闭（未关闭则代为关闭并计为
// 强制关闭），释放共享配置引用，从表中移除并归还槽位。
func (c *Coordinator) Reap() int {
	c.reapMu.Lock()
	defer c.reapMu.Unlock()

	n := 0
	for _, wctx := range c.table.snapshot() {
		state := wctx.State()
		if !state.Terminal() {
			continue
		}

		// 终态发布之后工作者只剩关闭 Exited 这一步
		<-wctx.Exited()

		forced := false
		if conn := wctx.Conn(); !conn.IsClosed() {
			forced = true
			_ = conn.Close()
			c.stats.forced.Add(1)
			log.Warn("工作者未关闭句柄，协调器代为关闭", "ctx", wctx.ID().String(), "conn", conn.String())
		}

		wctx.Release()
		c.history.add(outcomeOf(wctx, forced))
		c.table.remove(wctx.ID())

		if state == worker.Success {
			c.stats.succeeded.Add(1)
		} else {
			c.stats.failed.Add(1)
		}
		c.stats.reaped.Add(1)
		c.report.Reaped(forced)
		n++
	}
	if n > 0 {
		c.report.SetOutstanding(c.table.len())
	}
	return n
}

// ============================================================================
//                              shutdown
// ============================================================================

// stopAccepting 关闭监听器并让 accept 循环退出
func (c *Coordinator) stopAccepting() {
	c.stopAccept()
	if err := c.listener.Close(); err != nil {
		log.Debug("关闭监听器", "err", err)
	}
}

// Shutdown 停止接受新连接并回收全部上下文
//
// 先等待 ShutdownGrace 让在途工作者自然结束，然后中止剩余工作者
// （句柄关闭、标志置 Failed），回收直到表为空，最后关闭执行器。
// ctx 到期时返回 ErrDrainTimeout，仍在运行的上下文不会被释放。
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.stopAccepting()
		if !c.serving.Load() {
			c.finishAccept(nil)
		}
		// 停止点：此后的 AcceptAndDispatch 都会看到 acceptCtx 已取消，
		// 之前已入表的上下文由下面的 drain 回收
		c.dispatchMu.Lock()
		c.dispatchMu.Unlock() //nolint:staticcheck // 仅作屏障

		var err error
		if c.opts.ShutdownGrace > 0 {
			graceCtx, cancel := context.WithTimeout(ctx, c.opts.ShutdownGrace)
			_ = c.drain(graceCtx)
			cancel()
		}

		c.abort()
		if derr := c.drain(ctx); derr != nil {
			err = multierr.Append(err, errors.From(ErrDrainTimeout, errors.WithWrap(derr)))
		}

		close(c.done)
		if cerr := c.exec.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close executor: %w", cerr))
		}
		c.shutdownErr = err

		s := c.Stats()
		log.Info("协调器已关闭",
			"accepted", s.Accepted,
			"succeeded", s.Succeeded,
			"failed", s.Failed,
			"forced", s.ForcedCloses,
			"outstanding", s.Outstanding)
	})
	return c.shutdownErr
}

// drain 反复回收直到表为空或 ctx 结束
func (c *Coordinator) drain(ctx context.Context) error {
	for {
		c.Reap()
		if c.table.len() == 0 {
			return nil
		}
		timer := time.NewTimer(c.opts.ReapInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// ============================================================================
//                              查询
// ============================================================================

// Outstanding 返回未回收上下文数
func (c *Coordinator) Outstanding() int {
	return c.table.len()
}

// Capacity 返回表容量
func (c *Coordinator) Capacity() int {
	return c.table.capacity
}

// Stats 返回统计快照
func (c *Coordinator) Stats() Stats {
	return Stats{
		Accepted:     c.stats.accepted.Load(),
		Dispatched:   c.stats.dispatched.Load(),
		Rejected:     c.stats.rejected.Load(),
		AcceptErrors: c.stats.acceptErrors.Load(),
		Succeeded:    c.stats.succeeded.Load(),
		Failed:       c.stats.failed.Load(),
		Reaped:       c.stats.reaped.Load(),
		ForcedCloses: c.stats.forced.Load(),
		Outstanding:  c.table.len(),
	}
}

// Recent 返回最近回收的结果，由旧到新
func (c *Coordinator) Recent() []Outcome {
	return c.history.recent()
}

// Lookup 按上下文标识查询结果
func (c *Coordinator) Lookup(id uuid.UUID) (Outcome, bool) {
	return c.history.get(id)
}

// Addr 返回监听地址
func (c *Coordinator) Addr() string {
	return c.listener.Addr().String()
}
