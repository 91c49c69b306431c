package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/core/transport/tcp"
	"github.com/dep2p/go-tlsworker/internal/util/logger"
)

var log = logger.Logger("core/worker")

// Observer 接收工作者事件，用于指标上报
type Observer interface {
	HandshakeDone(engine string, version uint16, d time.Duration, err error)
	WorkerDone(state State, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) HandshakeDone(string, uint16, time.Duration, error) {}
func (nopObserver) WorkerDone(State, time.Duration)                    {}

// Option 工作者选项
type Option func(*Worker)

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(w *Worker) { w.clock = clk }
}

// WithObserver 设置事件观察者
func WithObserver(o Observer) Option {
	return func(w *Worker) {
		if o != nil {
			w.observer = o
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// Worker 单连接工作者
//
// Worker 本身无状态，可被所有连接共享；每次 Run 只操作传入的上下文。
type Worker struct {
	engine   tls.Engine
	handler  Handler
	clock    clock.Clock
	observer Observer
	log      *slog.Logger
}

// New 创建工作者
func New(engine tls.Engine, handler Handler, opts ...Option) *Worker {
	if handler == nil {
		handler = EchoHandler{}
	}
	w := &Worker{
		engine:   engine,
		handler:  handler,
		clock:    clock.New(),
		observer: nopObserver{},
		log:      log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Engine 返回握手引擎
func (w *Worker) Engine() tls.Engine { return w.engine }

// Task 返回在执行器上运行的任务
//
// 任务退出前保证上下文处于终态（工作者未写入时置 Failed 并关闭句柄），
// 然后关闭 Exited 通道。Run 中任何位置的 panic 都在这里恢复，不会到达执行器。
func (w *Worker) Task(ctx context.Context, wctx *Context) func() {
	return func() {
		defer wctx.markExited()
		defer func() {
			r := recover()
			if r != nil {
				w.log.Error("工作者 panic", "ctx", wctx.id.String(), "panic", r, "stack", string(debug.Stack()))
			}
			if wctx.State().Terminal() {
				return
			}
			cause := fmt.Errorf("worker exited without completion")
			if r != nil {
				cause = errorsFrom(ErrPanic, fmt.Errorf("%v", r))
			}
			wctx.Abandon(cause, time.Now())
		}()
		w.Run(ctx, wctx)
	}
}

// Run 处理一个连接
//
// 步骤：取得句柄 → 在握手超时内完成握手 → 运行会话处理器 → 关闭句柄 →
// 写入一次终态。ctx 被取消时立即给句柄设置过期截止时间，阻塞中的
// 握手或读写随之返回，工作者关闭句柄并置 Failed。
// 任何错误或 panic 都不会传播到调用方。
func (w *Worker) Run(ctx context.Context, wctx *Context) State {
	conn := wctx.conn
	l := logger.WithConn(w.log, wctx.id.String(), conn.RemoteAddr().String())

	if err := conn.Claim(tcp.NextOwner()); err != nil {
		// 句柄不属于本工作者，不能关闭它
		wctx.finish(Failed, errorsFrom(ErrClaim, err), tls.SessionInfo{}, w.clock.Now())
		l.Warn("取得连接句柄失败", "err", err)
		w.observer.WorkerDone(Failed, 0)
		return Failed
	}

	start := w.clock.Now()
	wctx.startedAt = start

	info, err := w.serve(ctx, wctx, l)

	if cerr := conn.Close(); cerr != nil {
		l.Debug("关闭连接", "err", cerr)
	}

	state := Success
	if err != nil {
		state = Failed
	}
	end := w.clock.Now()
	wctx.finish(state, err, info, end)
	w.observer.WorkerDone(state, end.Sub(start))

	if err != nil {
		l.Debug("连接处理失败", "err", err)
	} else {
		l.Debug("连接处理完成", "version", info.VersionName(), "elapsed", end.Sub(start))
	}
	return state
}

// serve 执行握手与会话，panic 在此处恢复
func (w *Worker) serve(ctx context.Context, wctx *Context, l *slog.Logger) (info tls.SessionInfo, err error) {
	conn := wctx.conn

	defer func() {
		if r := recover(); r != nil {
			l.Error("工作者 panic", "panic", r, "stack", string(debug.Stack()))
			err = errorsFrom(ErrPanic, fmt.Errorf("%v", r))
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := ctx.Err(); err != nil {
		return info, errorsFrom(ErrAborted, err)
	}

	hsStart := w.clock.Now()
	sess, herr := w.engine.Handshake(ctx, conn, wctx.config)
	if herr != nil {
		w.observer.HandshakeDone(w.engine.Name(), 0, w.clock.Since(hsStart), herr)
		if ctx.Err() != nil {
			return info, errorsFrom(ErrAborted, &HandshakeError{
				ContextID: wctx.id,
				Remote:    conn.RemoteAddr().String(),
				Engine:    w.engine.Name(),
				Err:       herr,
			})
		}
		return info, &HandshakeError{
			ContextID: wctx.id,
			Remote:    conn.RemoteAddr().String(),
			Engine:    w.engine.Name(),
			Err:       herr,
		}
	}
	info = sess.Info()
	w.observer.HandshakeDone(info.Engine, info.Version, w.clock.Since(hsStart), nil)

	serr := w.handler.Serve(ctx, sess)
	_ = sess.Close()

	if serr != nil {
		if ctx.Err() != nil {
			return info, errorsFrom(ErrAborted, serr)
		}
		return info, errorsFrom(ErrSession, serr)
	}
	return info, nil
}
