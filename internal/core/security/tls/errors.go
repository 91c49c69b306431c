// Package tls 实现共享 TLS 配置与握手引擎
package tls

import "errors"

// TLS 相关错误
var (
	// ErrNoCertificate 未提供服务端证书
	ErrNoCertificate = errors.New("tls: no certificate provided")

	// ErrInvalidVersion 协议版本范围无效
	ErrInvalidVersion = errors.New("tls: invalid protocol version range")

	// ErrInvalidCipherSuite 加密套件未知或不安全
	ErrInvalidCipherSuite = errors.New("tls: invalid cipher suite")

	// ErrNilConfig 共享配置为空
	ErrNilConfig = errors.New("tls: shared config is nil")

	// ErrConfigMutated 共享配置在发布后被修改
	ErrConfigMutated = errors.New("tls: shared config mutated after publication")

	// ErrUnknownEngine 未知的握手引擎
	ErrUnknownEngine = errors.New("tls: unknown engine")

	// ErrNoSigner 私钥不能用于签名
	ErrNoSigner = errors.New("tls: private key is not a crypto.Signer")

	// ErrEngineUnsupported 引擎不支持当前配置
	ErrEngineUnsupported = errors.New("tls: engine does not support config")
)
