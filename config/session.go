package config

import (
	"errors"
	"fmt"
	"time"
)

// 会话处理器
const (
	HandlerEcho     = "echo"
	HandlerGreeting = "greeting"
)

// SessionConfig 握手后的会话配置
type SessionConfig struct {
	// Handler 会话处理器: "echo" 或 "greeting"
	Handler string `json:"handler"`

	// IdleTimeout 会话读写空闲超时
	IdleTimeout Duration `json:"idle_timeout"`

	// Greeting greeting 处理器写回的内容，空使用默认响应
	Greeting string `json:"greeting,omitempty"`
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Handler:     HandlerEcho,
		IdleTimeout: Duration(30 * time.Second),
	}
}

// Validate 验证会话配置
func (c SessionConfig) Validate() error {
	switch c.Handler {
	case HandlerEcho, HandlerGreeting:
	default:
		return fmt.Errorf("session: unknown handler %q", c.Handler)
	}
	if c.IdleTimeout <= 0 {
		return errors.New("session: idle_timeout must be positive")
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enable 是否注册 Prometheus 指标
	Enable bool `json:"enable"`

	// Namespace 指标命名空间
	Namespace string `json:"namespace"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enable:    true,
		Namespace: "tlsworker",
	}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.Enable && c.Namespace == "" {
		return errors.New("metrics: namespace is required when enabled")
	}
	return nil
}

// AttestationConfig 证明材料配置
type AttestationConfig struct {
	// Enable 是否提供 Evidence
	Enable bool `json:"enable"`

	// Label 写入证明材料的标签
	Label string `json:"label"`

	// MinNonceSize 调用方 nonce 的最小长度
	MinNonceSize int `json:"min_nonce_size"`
}

// DefaultAttestationConfig 返回默认证明配置
func DefaultAttestationConfig() AttestationConfig {
	return AttestationConfig{
		Enable:       true,
		Label:        "tlsworker",
		MinNonceSize: 16,
	}
}

// Validate 验证证明配置
func (c AttestationConfig) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.Label == "" {
		return errors.New("attestation: label is required when enabled")
	}
	if c.MinNonceSize < 8 {
		return errors.New("attestation: min_nonce_size must be at least 8")
	}
	return nil
}
