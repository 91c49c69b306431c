// Package logger 提供 go-tlsworker 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别（子系统名按 "/" 分层继承）
//   - 环境变量配置（TLSWORKER_LOG_LEVEL, TLSWORKER_LOG_FORMAT）
//   - 结构化日志
//
// 使用示例:
//
//	package coordinator
//
//	import "github.com/dep2p/go-tlsworker/internal/util/logger"
//
//	var log = logger.Logger("core/coordinator")
//
//	func foo() {
//	    log.Info("连接已分派", "ctx", id, "remote", addr)
//	    log.Error("accept 失败", "error", err)
//	}
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回相同的 Logger 实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	handler := newHandler(subsystem, ConfigFromEnv())
	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(handler))
	if !loaded {
		handlers.Store(subsystem, handler)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).level.set(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).level.set(level)
		return true
	})
}

// Discard 返回一个丢弃所有日志的 Logger
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// WithConn 返回带有连接上下文属性的 Logger
//
//	l := logger.WithConn(log, wctx.ID().String(), conn.RemoteAddr().String())
//	l.Debug("握手开始")
func WithConn(l *slog.Logger, id, remote string) *slog.Logger {
	return l.With("ctx", id, "remote", remote)
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 同样会切换到新的输出。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
