package config

import (
	"errors"
	"fmt"
	"time"
)

// ListenConfig 监听配置
type ListenConfig struct {
	// Network 网络类型: "tcp", "tcp4", "tcp6"
	Network string `json:"network"`

	// Address 监听地址
	Address string `json:"address"`

	// KeepAlive TCP keep-alive 周期，0 使用系统默认
	KeepAlive Duration `json:"keep_alive,omitempty"`

	// AcceptRate 每秒最多 accept 的连接数，0 表示不限速
	AcceptRate float64 `json:"accept_rate,omitempty"`

	// AcceptBurst 限速突发容量
	AcceptBurst int `json:"accept_burst,omitempty"`

	// BackoffMax 临时 accept 错误的最大退避
	BackoffMax Duration `json:"backoff_max,omitempty"`
}

// DefaultListenConfig 返回默认监听配置
func DefaultListenConfig() ListenConfig {
	return ListenConfig{
		Network:     "tcp",
		Address:     "127.0.0.1:0",
		KeepAlive:   Duration(15 * time.Second),
		AcceptRate:  0,
		AcceptBurst: 64,
		BackoffMax:  Duration(time.Second),
	}
}

// Validate 验证监听配置
func (c ListenConfig) Validate() error {
	switch c.Network {
	case "tcp", "tcp4", "tcp6":
	default:
		return fmt.Errorf("listen: unsupported network %q", c.Network)
	}
	if c.Address == "" {
		return errors.New("listen: address is required")
	}
	if c.AcceptRate < 0 {
		return errors.New("listen: accept_rate must be non-negative")
	}
	if c.AcceptRate > 0 && c.AcceptBurst <= 0 {
		return errors.New("listen: accept_burst must be positive when accept_rate is set")
	}
	if c.KeepAlive < 0 || c.BackoffMax < 0 {
		return errors.New("listen: durations must be non-negative")
	}
	return nil
}

// WithAddress 设置监听地址
func (c ListenConfig) WithAddress(addr string) ListenConfig {
	c.Address = addr
	return c
}

// WithAcceptRate 设置 accept 限速
func (c ListenConfig) WithAcceptRate(rate float64, burst int) ListenConfig {
	c.AcceptRate = rate
	c.AcceptBurst = burst
	return c
}
