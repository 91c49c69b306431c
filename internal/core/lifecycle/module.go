package lifecycle

import (
	"context"

	"go.uber.org/fx"
)

// Module 返回 Fx 模块
//
// 提供生命周期追踪器作为全局单例。
func Module() fx.Option {
	return fx.Module("lifecycle",
		fx.Provide(NewTracker),
		fx.Invoke(registerLifecycleHooks),
	)
}

// lifecycleHooksParams 生命周期钩子参数
type lifecycleHooksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Tracker   *Tracker
}

// registerLifecycleHooks 注册生命周期钩子
//
// 先于其他模块注册，OnStop 最后执行。
func registerLifecycleHooks(params lifecycleHooksParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			err := params.Tracker.AdvanceTo(PhaseStopped)
			params.Tracker.Stop()
			return err
		},
	})
}
