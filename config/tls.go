package config

import (
	"errors"
	"fmt"
	"time"
)

// 握手引擎
const (
	EngineStd  = "std"
	EngineMint = "mint"
)

// 客户端认证策略
const (
	ClientAuthNone          = "none"
	ClientAuthRequest       = "request"
	ClientAuthRequire       = "require"
	ClientAuthVerifyIfGiven = "verify_if_given"
	ClientAuthRequireVerify = "require_and_verify"
)

// TLSConfig 共享 TLS 配置
//
// 进程启动时构建一次，之后所有工作者共享只读。
// CertFile/KeyFile 为空时生成自签名证书（仅用于开发）。
type TLSConfig struct {
	// CertFile PEM 证书链文件
	CertFile string `json:"cert_file,omitempty"`

	// KeyFile PEM 私钥文件
	KeyFile string `json:"key_file,omitempty"`

	// ClientCAFile 验证客户端证书的 CA 文件
	ClientCAFile string `json:"client_ca_file,omitempty"`

	// SelfSignedHosts 自签名证书包含的主机名/IP
	SelfSignedHosts []string `json:"self_signed_hosts,omitempty"`

	// MinVersion 最低协议版本，例如 "1.2"
	MinVersion string `json:"min_version"`

	// MaxVersion 最高协议版本，空表示不限制
	MaxVersion string `json:"max_version,omitempty"`

	// CipherSuites IANA 套件名称（仅 TLS 1.2 及以下有效）
	CipherSuites []string `json:"cipher_suites,omitempty"`

	// NextProtos ALPN 协议
	NextProtos []string `json:"next_protos,omitempty"`

	// ClientAuth 客户端认证策略
	ClientAuth string `json:"client_auth"`

	// Engine 握手引擎: "std" 或 "mint"
	Engine string `json:"engine"`

	// HandshakeTimeout 握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`
}

// DefaultTLSConfig 返回默认 TLS 配置
func DefaultTLSConfig() TLSConfig {
	return TLSConfig{
		SelfSignedHosts:  []string{"localhost", "127.0.0.1"},
		MinVersion:       "1.2",
		ClientAuth:       ClientAuthNone,
		Engine:           EngineStd,
		HandshakeTimeout: Duration(10 * time.Second),
	}
}

// Validate 验证 TLS 配置
func (c TLSConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("tls: cert_file and key_file must be set together")
	}
	if c.CertFile == "" && len(c.SelfSignedHosts) == 0 {
		return errors.New("tls: self_signed_hosts is required without cert_file")
	}
	if c.MinVersion == "" {
		return errors.New("tls: min_version is required")
	}
	switch c.ClientAuth {
	case ClientAuthNone, ClientAuthRequest, ClientAuthRequire:
	case ClientAuthVerifyIfGiven, ClientAuthRequireVerify:
		if c.ClientCAFile == "" {
			return fmt.Errorf("tls: client_auth %q requires client_ca_file", c.ClientAuth)
		}
	default:
		return fmt.Errorf("tls: unknown client_auth %q", c.ClientAuth)
	}
	switch c.Engine {
	case EngineStd:
	case EngineMint:
		if c.ClientAuth != ClientAuthNone {
			return errors.New("tls: mint engine does not support client_auth")
		}
	default:
		return fmt.Errorf("tls: unknown engine %q", c.Engine)
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("tls: handshake_timeout must be positive")
	}
	return nil
}

// WithCertFiles 设置证书与私钥文件
func (c TLSConfig) WithCertFiles(cert, key string) TLSConfig {
	c.CertFile = cert
	c.KeyFile = key
	return c
}

// WithVersions 设置协议版本范围
func (c TLSConfig) WithVersions(minVersion, maxVersion string) TLSConfig {
	c.MinVersion = minVersion
	c.MaxVersion = maxVersion
	return c
}

// WithEngine 设置握手引擎
func (c TLSConfig) WithEngine(engine string) TLSConfig {
	c.Engine = engine
	return c
}
