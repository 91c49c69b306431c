package coordinator

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/lifecycle"
	"github.com/dep2p/go-tlsworker/internal/core/metrics"
	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/core/transport/tcp"
	"github.com/dep2p/go-tlsworker/internal/core/worker"
)

// Params Coordinator 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Listener   *tcp.Listener
	Shared     *tls.SharedConfig
	Worker     *worker.Worker
	Executor   Executor
	Tracker    *lifecycle.Tracker
	Reporter   metrics.Reporter `optional:"true"`
	Clock      clock.Clock      `optional:"true"`
}

// Module 是 coordinator 的 Fx 模块
var Module = fx.Module("coordinator",
	fx.Provide(
		ProvideExecutor,
		ProvideCoordinator,
	),
	fx.Invoke(registerLifecycle),
)

// ExecutorParams 执行器依赖参数
type ExecutorParams struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// ProvideExecutor 按池配置提供执行器
func ProvideExecutor(p ExecutorParams) (Executor, error) {
	cfg := config.DefaultPoolConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg.Pool
	}
	return NewExecutor(cfg)
}

// ProvideCoordinator 提供 Coordinator 实例
func ProvideCoordinator(p Params) (*Coordinator, error) {
	opts := OptionsFromConfig(p.UnifiedCfg)
	opts.Reporter = p.Reporter
	opts.Clock = p.Clock
	opts.OnAcceptStopped = func(err error) {
		if err != nil {
			log.Error("accept 循环因致命错误停止", "err", err)
		}
		_ = p.Tracker.AdvanceTo(lifecycle.PhaseAcceptStopped)
	}
	return New(p.Listener, p.Shared, p.Worker, p.Executor, opts)
}

// registerLifecycle 注册生命周期钩子
//
// OnStart 在后台启动 Serve；OnStop 执行 Shutdown。
func registerLifecycle(lc fx.Lifecycle, c *Coordinator, tr *lifecycle.Tracker) {
	serveDone := make(chan error, 1)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := tr.AdvanceTo(lifecycle.PhaseListening); err != nil {
				return err
			}
			go func() {
				serveDone <- c.Serve(context.Background())
			}()
			return tr.AdvanceTo(lifecycle.PhaseServing)
		},
		OnStop: func(ctx context.Context) error {
			if tr.Phase() < lifecycle.PhaseDraining {
				_ = tr.AdvanceTo(lifecycle.PhaseDraining)
			}
			err := c.Shutdown(ctx)
			select {
			case serveErr := <-serveDone:
				if serveErr != nil {
					log.Debug("Serve 返回", "err", serveErr)
				}
			case <-ctx.Done():
			}
			return err
		},
	})
}
