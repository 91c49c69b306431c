package attest

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/cmw"
	"golang.org/x/crypto/hkdf"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/util/logger"
)

var log = logger.Logger("core/attest")

// MediaType 证据的 CMW 媒体类型
const MediaType = "application/vnd.tlsworker-config-evidence+cbor"

// bindingSize 绑定值长度
const bindingSize = 32

// Claims 证据声明
type Claims struct {
	Label        string   `cbor:"1,keyasint" json:"label"`
	Nonce        []byte   `cbor:"2,keyasint" json:"nonce"`
	Fingerprint  []byte   `cbor:"3,keyasint" json:"fingerprint"`
	PublicKeyDER []byte   `cbor:"4,keyasint" json:"public_key_der"`
	MinVersion   uint16   `cbor:"5,keyasint" json:"min_version"`
	MaxVersion   uint16   `cbor:"6,keyasint" json:"max_version"`
	NextProtos   []string `cbor:"7,keyasint,omitempty" json:"next_protos,omitempty"`
	IssuedAt     int64    `cbor:"8,keyasint" json:"issued_at"`
	Binding      []byte   `cbor:"9,keyasint" json:"binding"`
}

// IssuedTime 返回签发时间
func (c *Claims) IssuedTime() time.Time {
	return time.Unix(c.IssuedAt, 0)
}

// envelope 声明及其签名
type envelope struct {
	Claims    []byte `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}).DecMode(); err != nil {
		panic(err)
	}
}

// ============================================================================
//                              Issuer
// ============================================================================

// Option 签发器选项
type Option func(*Issuer)

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(i *Issuer) {
		if clk != nil {
			i.clock = clk
		}
	}
}

// Issuer 证据签发器
type Issuer struct {
	shared   *tls.SharedConfig
	enabled  bool
	label    string
	minNonce int
	clock    clock.Clock
}

// NewIssuer 创建签发器
func NewIssuer(shared *tls.SharedConfig, cfg config.AttestationConfig, opts ...Option) (*Issuer, error) {
	if shared == nil {
		return nil, tls.ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("证明配置无效: %w", err)
	}
	i := &Issuer{
		shared:   shared,
		enabled:  cfg.Enable,
		label:    cfg.Label,
		minNonce: cfg.MinNonceSize,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Enabled 是否启用
func (i *Issuer) Enabled() bool { return i.enabled }

// Label 返回证据标签
func (i *Issuer) Label() string { return i.label }

// Issue 为 nonce 签发证据
//
// 签发前重新校验配置指纹，配置被改动时返回 tls.ErrConfigMutated。
func (i *Issuer) Issue(nonce []byte) ([]byte, error) {
	if !i.enabled {
		return nil, ErrDisabled
	}
	if len(nonce) < i.minNonce {
		return nil, fmt.Errorf("%w: %d < %d", ErrNonceTooShort, len(nonce), i.minNonce)
	}
	if err := i.shared.Verify(); err != nil {
		return nil, err
	}

	pub, err := i.shared.LeafPublicKeyDER()
	if err != nil {
		return nil, err
	}
	fp := i.shared.Fingerprint()
	binding, err := deriveBinding(fp[:], nonce, i.label, pub)
	if err != nil {
		return nil, err
	}

	claims := Claims{
		Label:        i.label,
		Nonce:        slices.Clone(nonce),
		Fingerprint:  fp[:],
		PublicKeyDER: pub,
		MinVersion:   i.shared.MinVersion(),
		MaxVersion:   i.shared.MaxVersion(),
		NextProtos:   i.shared.NextProtos(),
		IssuedAt:     i.clock.Now().Unix(),
		Binding:      binding,
	}
	claimsBytes, err := encMode.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("编码声明失败: %w", err)
	}

	digest := sha256.Sum256(claimsBytes)
	sig, err := i.shared.Sign(digest[:])
	if err != nil {
		return nil, err
	}

	envBytes, err := encMode.Marshal(envelope{Claims: claimsBytes, Signature: sig})
	if err != nil {
		return nil, fmt.Errorf("编码证据失败: %w", err)
	}

	monad, err := cmw.NewMonad(MediaType, envBytes)
	if err != nil {
		return nil, fmt.Errorf("创建 CMW 失败: %w", err)
	}
	out, err := monad.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("编码 CMW 失败: %w", err)
	}

	log.Debug("已签发证明证据", "label", i.label, "fingerprint", i.shared.FingerprintHex()[:16], "size", len(out))
	return out, nil
}

// ============================================================================
//                              Verify
// ============================================================================

// VerifyOptions 校验参数
//
// Fingerprint 和 PublicKeyDER 为空时不比较。
type VerifyOptions struct {
	Nonce        []byte
	Label        string
	Fingerprint  []byte
	PublicKeyDER []byte
}

// Verify 校验证据并返回其中的声明
func Verify(evidence []byte, opts VerifyOptions) (*Claims, error) {
	var wrapper cmw.CMW
	if err := wrapper.UnmarshalCBOR(evidence); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	mediaType, err := wrapper.GetMonadType()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if mediaType != MediaType {
		return nil, fmt.Errorf("%w: %q", ErrMediaType, mediaType)
	}
	value, err := wrapper.GetMonadValue()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var env envelope
	if err := decMode.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	var claims Claims
	if err := decMode.Unmarshal(env.Claims, &claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}

	if claims.Label != opts.Label {
		return nil, fmt.Errorf("%w: %q", ErrLabelMismatch, claims.Label)
	}
	if !hmac.Equal(claims.Nonce, opts.Nonce) {
		return nil, ErrNonceMismatch
	}
	if len(opts.Fingerprint) > 0 && !bytes.Equal(claims.Fingerprint, opts.Fingerprint) {
		return nil, ErrFingerprintMismatch
	}
	if len(opts.PublicKeyDER) > 0 && !bytes.Equal(claims.PublicKeyDER, opts.PublicKeyDER) {
		return nil, ErrPublicKeyMismatch
	}

	binding, err := deriveBinding(claims.Fingerprint, claims.Nonce, claims.Label, claims.PublicKeyDER)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(binding, claims.Binding) {
		return nil, ErrBindingMismatch
	}

	pub, err := x509.ParsePKIXPublicKey(claims.PublicKeyDER)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrMalformed, err)
	}
	digest := sha256.Sum256(env.Claims)
	if !verifySignature(pub, digest[:], env.Signature) {
		return nil, ErrBadSignature
	}
	return &claims, nil
}

// deriveBinding 把配置指纹、公钥和 nonce 绑定为一个定长值
func deriveBinding(fingerprint, nonce []byte, label string, pub []byte) ([]byte, error) {
	info := make([]byte, 0, len(label)+1+len(pub))
	info = append(info, label...)
	info = append(info, 0)
	info = append(info, pub...)

	out := make([]byte, bindingSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, fingerprint, nonce, info), out); err != nil {
		return nil, fmt.Errorf("派生绑定值失败: %w", err)
	}
	return out, nil
}

func verifySignature(pub any, digest, sig []byte) bool {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(k, digest, sig)
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(k, crypto.SHA256, digest, sig) == nil
	case ed25519.PublicKey:
		return ed25519.Verify(k, digest, sig)
	}
	return false
}
