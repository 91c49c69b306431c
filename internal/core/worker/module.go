package worker

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
)

// Params Worker 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Engine     tls.Engine
	Handler    Handler     `optional:"true"`
	Observer   Observer    `optional:"true"`
	Clock      clock.Clock `optional:"true"`
}

// Module 是 worker 的 Fx 模块
var Module = fx.Module("worker",
	fx.Provide(ProvideWorker),
)

// ProvideWorker 提供共享的 Worker
//
// 未注入 Handler 时按会话配置选择处理器。
func ProvideWorker(p Params) *Worker {
	handler := p.Handler
	if handler == nil {
		handler = HandlerFromConfig(sessionConfig(p.UnifiedCfg))
	}
	opts := []Option{WithObserver(p.Observer)}
	if p.Clock != nil {
		opts = append(opts, WithClock(p.Clock))
	}
	return New(p.Engine, handler, opts...)
}

// HandlerFromConfig 按会话配置创建处理器
func HandlerFromConfig(cfg config.SessionConfig) Handler {
	switch cfg.Handler {
	case config.HandlerGreeting:
		return GreetingHandler{
			Greeting:    cfg.Greeting,
			IdleTimeout: cfg.IdleTimeout.Duration(),
		}
	default:
		return EchoHandler{IdleTimeout: cfg.IdleTimeout.Duration()}
	}
}

func sessionConfig(cfg *config.Config) config.SessionConfig {
	if cfg == nil {
		return config.DefaultSessionConfig()
	}
	return cfg.Session
}
