package config

import (
	"errors"
	"fmt"
)

// ValidateAll 验证整个配置的有效性
//
// 这是 Config.Validate() 的别名，允许 nil 检查。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - pooled 模式下 MaxWorkers 未设置 -> 使用 MaxOutstanding
//   - MaxOutstanding 未设置 -> 按主机内存推导
//   - 背压策略为空 -> block
//   - 回收周期非正 -> 默认值
//   - 启用限速但突发容量为 0 -> 1
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	def := DefaultPoolConfig()
	if c.Pool.MaxOutstanding <= 0 {
		c.Pool.MaxOutstanding = def.MaxOutstanding
	}
	if c.Pool.Mode == ModePooled && c.Pool.MaxWorkers <= 0 {
		c.Pool.MaxWorkers = c.Pool.MaxOutstanding
	}
	if c.Pool.Backpressure == "" {
		c.Pool.Backpressure = BackpressureBlock
	}
	if c.Pool.ReapInterval <= 0 {
		c.Pool.ReapInterval = def.ReapInterval
	}

	if c.Listen.AcceptRate > 0 && c.Listen.AcceptBurst <= 0 {
		c.Listen.AcceptBurst = 1
	}

	if c.TLS.HandshakeTimeout <= 0 {
		c.TLS.HandshakeTimeout = DefaultTLSConfig().HandshakeTimeout
	}
	if c.TLS.Engine == "" {
		c.TLS.Engine = EngineStd
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := ValidateAll(c); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}
}

// ValidateCompatibility 验证配置之间的兼容性
//
//   - pooled 模式下协程池上限不应小于表容量，否则部分上下文只能排队等待
//   - mint 引擎只支持 TLS 1.3
func ValidateCompatibility(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Pool.Mode == ModePooled && c.Pool.MaxWorkers < c.Pool.MaxOutstanding {
		return fmt.Errorf("pool: max_workers (%d) is smaller than max_outstanding (%d)",
			c.Pool.MaxWorkers, c.Pool.MaxOutstanding)
	}
	if c.TLS.Engine == EngineMint && c.TLS.MaxVersion != "" && c.TLS.MaxVersion != "1.3" {
		return fmt.Errorf("tls: mint engine requires max_version 1.3, got %q", c.TLS.MaxVersion)
	}
	return nil
}
