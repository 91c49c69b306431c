package attest

import "errors"

// 证明相关错误
var (
	// ErrDisabled 证明功能未启用
	ErrDisabled = errors.New("attest: disabled")

	// ErrNonceTooShort nonce 长度不足
	ErrNonceTooShort = errors.New("attest: nonce too short")

	// ErrMalformed 证据无法解析
	ErrMalformed = errors.New("attest: malformed evidence")

	// ErrMediaType CMW 媒体类型不匹配
	ErrMediaType = errors.New("attest: unexpected media type")

	// ErrNonceMismatch nonce 不匹配
	ErrNonceMismatch = errors.New("attest: nonce mismatch")

	// ErrLabelMismatch 标签不匹配
	ErrLabelMismatch = errors.New("attest: label mismatch")

	// ErrFingerprintMismatch 配置指纹不匹配
	ErrFingerprintMismatch = errors.New("attest: config fingerprint mismatch")

	// ErrPublicKeyMismatch 公钥不匹配
	ErrPublicKeyMismatch = errors.New("attest: public key mismatch")

	// ErrBindingMismatch 绑定值校验失败
	ErrBindingMismatch = errors.New("attest: binding mismatch")

	// ErrBadSignature 签名校验失败
	ErrBadSignature = errors.New("attest: bad signature")
)
