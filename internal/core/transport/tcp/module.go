package tcp

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tlsworker/config"
)

// Params 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 是 transport/tcp 的 Fx 模块
var Module = fx.Module("transport/tcp",
	fx.Provide(ProvideListener),
)

// ListenOptionsFromConfig 从监听配置创建选项
func ListenOptionsFromConfig(cfg config.ListenConfig) ListenOptions {
	opts := DefaultListenOptions()
	opts.KeepAlive = cfg.KeepAlive.Duration()
	if cfg.BackoffMax > 0 {
		opts.BackoffMax = cfg.BackoffMax.Duration()
	}
	return opts
}

// ProvideListener 绑定监听套接字
func ProvideListener(p Params) (*Listener, error) {
	cfg := config.DefaultListenConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg.Listen
	}
	return Listen(context.Background(), cfg.Network, cfg.Address, ListenOptionsFromConfig(cfg))
}
