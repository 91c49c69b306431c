package tlsworker

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/attest"
	"github.com/dep2p/go-tlsworker/internal/core/coordinator"
	"github.com/dep2p/go-tlsworker/internal/core/lifecycle"
	"github.com/dep2p/go-tlsworker/internal/core/metrics"
	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/core/transport/tcp"
	"github.com/dep2p/go-tlsworker/internal/core/worker"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. lifecycle（OnStop 最后执行）
//  2. metrics → security/tls → transport/tcp → worker
//  3. attest、coordinator（OnStart 启动 Serve，OnStop 执行 Shutdown）
func buildFxApp(o *options, srv *Server) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := config.ValidateAll(o.config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := config.ValidateCompatibility(o.config); err != nil {
		return nil, fmt.Errorf("config compatibility: %w", err)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 配置与注入对象
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(o.config),
	}
	if o.certificate != nil {
		modules = append(modules, fx.Supply(o.certificate))
	}
	if o.handler != nil {
		h := o.handler
		modules = append(modules, fx.Provide(func() worker.Handler { return h }))
	}
	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 内部模块
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		lifecycle.Module(),
		metrics.Module,
		tls.Module,
		tcp.Module,
		worker.Module,
		attest.Module,
		coordinator.Module,
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展
	// ════════════════════════════════════════════════════════════════════════
	if len(o.fxOptions) > 0 {
		modules = append(modules, o.fxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. Server 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectServerComponents(srv)))

	// ════════════════════════════════════════════════════════════════════════
	// 6. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("assemble modules: %w", err)
	}
	return app, nil
}

// serverInjectParams Server 组件注入参数
type serverInjectParams struct {
	fx.In

	Coordinator *coordinator.Coordinator
	Shared      *tls.SharedConfig
	Engine      tls.Engine
	Issuer      *attest.Issuer
	Tracker     *lifecycle.Tracker
}

// injectServerComponents 把组装好的组件交给 Server
func injectServerComponents(srv *Server) interface{} {
	return func(p serverInjectParams) {
		srv.coord = p.Coordinator
		srv.shared = p.Shared
		srv.engine = p.Engine
		srv.issuer = p.Issuer
		srv.tracker = p.Tracker
	}
}
