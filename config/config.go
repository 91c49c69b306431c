// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 加载和保存。
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Listen.Address = "0.0.0.0:4433"
//	cfg.Pool.Backpressure = config.BackpressureReject
//
//	// 从文件加载
//	cfg, err := config.LoadFile("tlsworker.json")
package config

// Config 是 tlsworker 的完整配置结构
//
// 配置按照功能模块组织：
//   - Listen: 监听套接字与 accept 限速
//   - TLS: 共享 TLS 配置与握手引擎
//   - Pool: 工作者池、未完成上下文表与回收
//   - Session: 握手后的会话处理
//   - Metrics: Prometheus 指标
//   - Attestation: 证明材料
type Config struct {
	// Listen 监听配置
	Listen ListenConfig `json:"listen"`

	// TLS TLS 配置
	TLS TLSConfig `json:"tls"`

	// Pool 工作者池配置
	Pool PoolConfig `json:"pool"`

	// Session 会话配置
	Session SessionConfig `json:"session"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// Attestation 证明配置
	Attestation AttestationConfig `json:"attestation"`
}

// NewConfig 创建默认配置
//
// 默认配置监听 127.0.0.1 的随机端口，使用自签名证书，
// 可以直接用于开发和测试。
func NewConfig() *Config {
	return &Config{
		Listen:      DefaultListenConfig(),
		TLS:         DefaultTLSConfig(),
		Pool:        DefaultPoolConfig(),
		Session:     DefaultSessionConfig(),
		Metrics:     DefaultMetricsConfig(),
		Attestation: DefaultAttestationConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if err := c.Listen.Validate(); err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.Attestation.Validate()
}

// Clone 返回配置的深拷贝
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cloned := *c
	cloned.TLS.CipherSuites = append([]string(nil), c.TLS.CipherSuites...)
	cloned.TLS.NextProtos = append([]string(nil), c.TLS.NextProtos...)
	cloned.TLS.SelfSignedHosts = append([]string(nil), c.TLS.SelfSignedHosts...)
	return &cloned
}
