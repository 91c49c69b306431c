package tlsworker

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-tlsworker/config"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
//
// 配置字段直接写入 config 的副本，其余是无法用 JSON 表达的注入对象。
type options struct {
	config *config.Config

	// 直接注入的证书（优先于证书文件）
	certificate *tls.Certificate

	// 会话处理器（优先于 Session.Handler）
	handler Handler

	// 指标注册表，nil 时使用独立注册表
	registerer prometheus.Registerer

	// 时钟
	clock clock.Clock

	// 用户自定义 Fx 选项
	fxOptions []fx.Option
}

// newOptions 从配置创建选项
func newOptions(cfg *config.Config) *options {
	if cfg == nil {
		cfg = config.NewConfig()
	} else {
		cfg = cfg.Clone()
	}
	return &options{config: cfg}
}

// ════════════════════════════════════════════════════════════════════════════
//                              预设与配置文件
// ════════════════════════════════════════════════════════════════════════════

// WithPreset 应用预设
//
// 预设覆盖其涉及的字段，应放在其他选项之前。
func WithPreset(name string) Option {
	return func(o *options) error {
		return ApplyPresetToConfig(o.config, name)
	}
}

// WithConfigFile 从 JSON 文件加载配置，替换当前配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              监听
// ════════════════════════════════════════════════════════════════════════════

// WithListenAddress 设置监听地址，例如 "0.0.0.0:8443"
func WithListenAddress(addr string) Option {
	return func(o *options) error {
		if addr == "" {
			return fmt.Errorf("listen address cannot be empty")
		}
		o.config.Listen.Address = addr
		return nil
	}
}

// WithAcceptRate 设置 accept 限速（每秒），0 表示不限速
func WithAcceptRate(perSecond float64, burst int) Option {
	return func(o *options) error {
		if perSecond < 0 || burst < 0 {
			return fmt.Errorf("accept rate and burst must not be negative")
		}
		o.config.Listen.AcceptRate = perSecond
		o.config.Listen.AcceptBurst = burst
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              TLS
// ════════════════════════════════════════════════════════════════════════════

// WithCertificate 直接注入服务端证书
func WithCertificate(cert tls.Certificate) Option {
	return func(o *options) error {
		if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
			return fmt.Errorf("certificate must contain a chain and a private key")
		}
		o.certificate = &cert
		return nil
	}
}

// WithCertFiles 设置 PEM 证书和私钥文件
func WithCertFiles(certFile, keyFile string) Option {
	return func(o *options) error {
		o.config.TLS.CertFile = certFile
		o.config.TLS.KeyFile = keyFile
		return nil
	}
}

// WithTLSVersions 设置协议版本范围，例如 ("1.2", "1.3")；maxVersion 为空表示不限制
func WithTLSVersions(minVersion, maxVersion string) Option {
	return func(o *options) error {
		o.config.TLS.MinVersion = minVersion
		o.config.TLS.MaxVersion = maxVersion
		return nil
	}
}

// WithMinTLSVersion 只设置最低协议版本
func WithMinTLSVersion(v string) Option {
	return func(o *options) error {
		o.config.TLS.MinVersion = v
		return nil
	}
}

// WithEngine 设置握手引擎（"std" 或 "mint"）
func WithEngine(name string) Option {
	return func(o *options) error {
		o.config.TLS.Engine = name
		return nil
	}
}

// WithNextProtos 设置 ALPN 协议
func WithNextProtos(protos ...string) Option {
	return func(o *options) error {
		o.config.TLS.NextProtos = append([]string(nil), protos...)
		return nil
	}
}

// WithHandshakeTimeout 设置握手超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("handshake timeout must not be negative")
		}
		o.config.TLS.HandshakeTimeout = config.Duration(d)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              工作者池
// ════════════════════════════════════════════════════════════════════════════

// WithMaxOutstanding 设置未完成上下文表容量
func WithMaxOutstanding(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("max outstanding must be positive, got %d", n)
		}
		o.config.Pool.MaxOutstanding = n
		if o.config.Pool.MaxWorkers < n {
			o.config.Pool.MaxWorkers = n
		}
		return nil
	}
}

// WithBackpressure 设置表满策略（"block" 或 "reject"）
func WithBackpressure(policy string) Option {
	return func(o *options) error {
		o.config.Pool.Backpressure = policy
		return nil
	}
}

// WithExecutorMode 设置执行器模式（"pooled" 或 "spawn"）
func WithExecutorMode(mode string) Option {
	return func(o *options) error {
		o.config.Pool.Mode = mode
		return nil
	}
}

// WithShutdownGrace 设置关闭时等待在途连接自然结束的时间
func WithShutdownGrace(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("shutdown grace must not be negative")
		}
		o.config.Pool.ShutdownGrace = config.Duration(d)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              会话与观测
// ════════════════════════════════════════════════════════════════════════════

// WithHandler 设置会话处理器
func WithHandler(h Handler) Option {
	return func(o *options) error {
		if h == nil {
			return fmt.Errorf("handler cannot be nil")
		}
		o.handler = h
		return nil
	}
}

// WithMetrics 启用或禁用 Prometheus 指标
func WithMetrics(enable bool) Option {
	return func(o *options) error {
		o.config.Metrics.Enable = enable
		return nil
	}
}

// WithPrometheusRegisterer 设置指标注册表
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithClock 设置时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
