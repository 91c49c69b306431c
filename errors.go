package tlsworker

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 服务生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 服务未启动
	ErrNotStarted = errors.New("server not started")

	// ErrAlreadyStarted 服务已启动
	ErrAlreadyStarted = errors.New("server already started")

	// ErrServerClosed 服务已关闭
	ErrServerClosed = errors.New("server closed")

	// ────────────────────────────────────────────────────────────────────────
	// 关闭检查错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrLeakedReferences 关闭后共享配置仍有未释放的引用
	ErrLeakedReferences = errors.New("shared config still referenced after shutdown")
)
