package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-tlsworker/config"
)

// Params 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`

	// Certificate 由宿主直接注入的证书，优先于配置中的文件
	Certificate *tls.Certificate `optional:"true"`
}

// Module 是 security/tls 的 Fx 模块
var Module = fx.Module("security/tls",
	fx.Provide(
		ProvideSharedConfig,
		ProvideEngine,
	),
)

// ProvideSharedConfig 提供进程级共享配置
func ProvideSharedConfig(p Params) (*SharedConfig, error) {
	cfg := config.DefaultTLSConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg.TLS
	}
	return FromConfig(cfg, p.Certificate)
}

// ProvideEngine 按配置提供握手引擎
func ProvideEngine(p Params, shared *SharedConfig) (Engine, error) {
	name := EngineStd
	if p.UnifiedCfg != nil {
		name = p.UnifiedCfg.TLS.Engine
	}
	return NewEngine(name, shared)
}

// FromConfig 从配置构建共享配置
//
// cert 非空时直接使用；否则加载 CertFile/KeyFile，二者都为空则生成自签名证书。
func FromConfig(cfg config.TLSConfig, cert *tls.Certificate) (*SharedConfig, error) {
	var certificate tls.Certificate
	switch {
	case cert != nil:
		certificate = *cert
	case cfg.CertFile != "":
		c, err := LoadCertificate(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		certificate = c
	default:
		c, err := GenerateSelfSigned(cfg.SelfSignedHosts, 0)
		if err != nil {
			return nil, err
		}
		log.Warn("未配置证书文件，使用自签名证书", "hosts", cfg.SelfSignedHosts)
		certificate = c
	}

	b := NewConfigBuilder().
		WithCertificate(certificate).
		WithNextProtos(cfg.NextProtos).
		WithHandshakeTimeout(cfg.HandshakeTimeout.Duration())

	minVersion, err := ParseVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}
	b.WithMinVersion(minVersion)
	if cfg.MaxVersion != "" {
		maxVersion, err := ParseVersion(cfg.MaxVersion)
		if err != nil {
			return nil, err
		}
		b.WithMaxVersion(maxVersion)
	}

	if len(cfg.CipherSuites) > 0 {
		suites := make([]uint16, 0, len(cfg.CipherSuites))
		for _, name := range cfg.CipherSuites {
			id, err := CipherSuiteByName(name)
			if err != nil {
				return nil, err
			}
			suites = append(suites, id)
		}
		b.WithCipherSuites(suites)
	}

	auth, err := parseClientAuth(cfg.ClientAuth)
	if err != nil {
		return nil, err
	}
	var cas *x509.CertPool
	if cfg.ClientCAFile != "" {
		if cas, err = LoadCertPool(cfg.ClientCAFile); err != nil {
			return nil, err
		}
	}
	b.WithClientAuth(auth, cas)

	return b.Build()
}

func parseClientAuth(name string) (tls.ClientAuthType, error) {
	switch name {
	case "", config.ClientAuthNone:
		return tls.NoClientCert, nil
	case config.ClientAuthRequest:
		return tls.RequestClientCert, nil
	case config.ClientAuthRequire:
		return tls.RequireAnyClientCert, nil
	case config.ClientAuthVerifyIfGiven:
		return tls.VerifyClientCertIfGiven, nil
	case config.ClientAuthRequireVerify:
		return tls.RequireAndVerifyClientCert, nil
	}
	return 0, fmt.Errorf("未知的客户端认证策略: %q", name)
}
