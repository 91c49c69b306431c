// Package tls 实现共享 TLS 配置与握手引擎
package tls

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-tlsworker/internal/util/logger"
)

var log = logger.Logger("security/tls")

// DefaultHandshakeTimeout 默认握手超时
const DefaultHandshakeTimeout = 10 * time.Second

// ============================================================================
//                              ConfigBuilder
// ============================================================================

// ConfigBuilder 共享配置构建器
//
// 构建器本身不是并发安全的；Build 之后得到的 SharedConfig 不可变。
type ConfigBuilder struct {
	cert             *tls.Certificate
	minVersion       uint16
	maxVersion       uint16
	cipherSuites     []uint16
	nextProtos       []string
	clientAuth       tls.ClientAuthType
	clientCAs        *x509.CertPool
	handshakeTimeout time.Duration
}

// NewConfigBuilder 创建配置构建器
//
// 默认最低版本 TLS 1.2，不要求客户端证书。
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		minVersion:       tls.VersionTLS12,
		clientAuth:       tls.NoClientCert,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
}

// WithCertificate 设置证书
func (b *ConfigBuilder) WithCertificate(cert tls.Certificate) *ConfigBuilder {
	b.cert = &cert
	return b
}

// WithMinVersion 设置最低 TLS 版本
func (b *ConfigBuilder) WithMinVersion(version uint16) *ConfigBuilder {
	b.minVersion = version
	return b
}

// WithMaxVersion 设置最高 TLS 版本，0 表示不限制
func (b *ConfigBuilder) WithMaxVersion(version uint16) *ConfigBuilder {
	b.maxVersion = version
	return b
}

// WithCipherSuites 设置加密套件（仅 TLS 1.2 及以下有效）
func (b *ConfigBuilder) WithCipherSuites(suites []uint16) *ConfigBuilder {
	b.cipherSuites = slices.Clone(suites)
	return b
}

// WithNextProtos 设置 ALPN 协议
func (b *ConfigBuilder) WithNextProtos(protos []string) *ConfigBuilder {
	b.nextProtos = slices.Clone(protos)
	return b
}

// WithClientAuth 设置客户端认证策略
func (b *ConfigBuilder) WithClientAuth(auth tls.ClientAuthType, cas *x509.CertPool) *ConfigBuilder {
	b.clientAuth = auth
	b.clientCAs = cas
	return b
}

// WithHandshakeTimeout 设置握手超时
func (b *ConfigBuilder) WithHandshakeTimeout(d time.Duration) *ConfigBuilder {
	b.handshakeTimeout = d
	return b
}

// Build 构建不可变的共享配置
func (b *ConfigBuilder) Build() (*SharedConfig, error) {
	if b.cert == nil || len(b.cert.Certificate) == 0 || b.cert.PrivateKey == nil {
		return nil, ErrNoCertificate
	}
	if !knownVersion(b.minVersion) || (b.maxVersion != 0 && !knownVersion(b.maxVersion)) {
		return nil, fmt.Errorf("%w: min=%#04x max=%#04x", ErrInvalidVersion, b.minVersion, b.maxVersion)
	}
	if b.maxVersion != 0 && b.maxVersion < b.minVersion {
		return nil, fmt.Errorf("%w: max %s < min %s", ErrInvalidVersion,
			tls.VersionName(b.maxVersion), tls.VersionName(b.minVersion))
	}
	for _, id := range b.cipherSuites {
		if !secureSuite(id) {
			return nil, fmt.Errorf("%w: %#04x", ErrInvalidCipherSuite, id)
		}
	}
	if b.handshakeTimeout < 0 {
		return nil, fmt.Errorf("握手超时不能为负: %v", b.handshakeTimeout)
	}

	chain := make([]*x509.Certificate, 0, len(b.cert.Certificate))
	for i, der := range b.cert.Certificate {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("解析证书链第 %d 个证书失败: %w", i, err)
		}
		chain = append(chain, c)
	}

	cert := *b.cert
	cert.Certificate = cloneChain(b.cert.Certificate)
	cert.Leaf = chain[0]

	sc := &SharedConfig{
		certificate:      cert,
		chain:            chain,
		minVersion:       b.minVersion,
		maxVersion:       b.maxVersion,
		cipherSuites:     slices.Clone(b.cipherSuites),
		nextProtos:       slices.Clone(b.nextProtos),
		clientAuth:       b.clientAuth,
		clientCAs:        b.clientCAs,
		handshakeTimeout: b.handshakeTimeout,
	}
	sc.std = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   sc.minVersion,
		MaxVersion:   sc.maxVersion,
		CipherSuites: slices.Clone(sc.cipherSuites),
		NextProtos:   slices.Clone(sc.nextProtos),
		ClientAuth:   sc.clientAuth,
		ClientCAs:    sc.clientCAs,
	}
	sc.fingerprint = sc.computeFingerprint()

	return sc, nil
}

// ============================================================================
//                              SharedConfig
// ============================================================================

// SharedConfig 进程级共享 TLS 配置
//
// 构建后不可变，任意数量的工作者可无锁并发读取。所有字段未导出，
// 访问器返回副本；底层 *tls.Config 不会离开本包。
// 引用计数保证配置在最后一个工作者释放前不会被回收。
type SharedConfig struct {
	std *tls.Config

	certificate      tls.Certificate
	chain            []*x509.Certificate
	minVersion       uint16
	maxVersion       uint16
	cipherSuites     []uint16
	nextProtos       []string
	clientAuth       tls.ClientAuthType
	clientCAs        *x509.CertPool
	handshakeTimeout time.Duration

	fingerprint [sha256.Size]byte

	refs      atomic.Int64
	published atomic.Bool
}

// MinVersion 返回最低协议版本
func (c *SharedConfig) MinVersion() uint16 { return c.minVersion }

// MaxVersion 返回最高协议版本（0 表示不限制）
func (c *SharedConfig) MaxVersion() uint16 { return c.maxVersion }

// CipherSuites 返回加密套件副本
func (c *SharedConfig) CipherSuites() []uint16 { return slices.Clone(c.cipherSuites) }

// NextProtos 返回 ALPN 协议副本
func (c *SharedConfig) NextProtos() []string { return slices.Clone(c.nextProtos) }

// ClientAuth 返回客户端认证策略
func (c *SharedConfig) ClientAuth() tls.ClientAuthType { return c.clientAuth }

// HandshakeTimeout 返回握手超时
func (c *SharedConfig) HandshakeTimeout() time.Duration { return c.handshakeTimeout }

// LeafDER 返回叶子证书 DER 副本
func (c *SharedConfig) LeafDER() []byte {
	return slices.Clone(c.certificate.Certificate[0])
}

// LeafPublicKeyDER 返回叶子证书公钥的 PKIX DER 编码
func (c *SharedConfig) LeafPublicKeyDER() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(c.chain[0].PublicKey)
	if err != nil {
		return nil, fmt.Errorf("编码公钥失败: %w", err)
	}
	return der, nil
}

// Sign 用叶子证书私钥对 SHA-256 摘要签名
//
// Ed25519 密钥直接对 digest 本身签名。私钥不离开本包。
func (c *SharedConfig) Sign(digest []byte) ([]byte, error) {
	signer, ok := c.certificate.PrivateKey.(crypto.Signer)
	if !ok {
		return nil, ErrNoSigner
	}
	var opts crypto.SignerOpts = crypto.SHA256
	if _, ok := signer.Public().(ed25519.PublicKey); ok {
		opts = crypto.Hash(0)
	}
	sig, err := signer.Sign(rand.Reader, digest, opts)
	if err != nil {
		return nil, fmt.Errorf("签名失败: %w", err)
	}
	return sig, nil
}

// Fingerprint 返回构建时计算的配置指纹
func (c *SharedConfig) Fingerprint() [sha256.Size]byte {
	return c.fingerprint
}

// FingerprintHex 返回十六进制指纹
func (c *SharedConfig) FingerprintHex() string {
	return hex.EncodeToString(c.fingerprint[:])
}

// Verify 重新计算指纹并与构建时的值比较
func (c *SharedConfig) Verify() error {
	if c.computeFingerprint() != c.fingerprint {
		return ErrConfigMutated
	}
	return nil
}

// Publish 标记配置已被首次分派使用
//
// 返回 true 表示本次调用完成了发布。
func (c *SharedConfig) Publish() bool {
	if !c.published.CompareAndSwap(false, true) {
		return false
	}
	log.Info("共享 TLS 配置已发布",
		"fingerprint", c.FingerprintHex()[:16],
		"minVersion", tls.VersionName(c.minVersion))
	return true
}

// Published 检查配置是否已发布
func (c *SharedConfig) Published() bool {
	return c.published.Load()
}

// Retain 增加一个引用并返回自身
func (c *SharedConfig) Retain() *SharedConfig {
	c.refs.Add(1)
	return c
}

// Release 释放一个引用
func (c *SharedConfig) Release() {
	if n := c.refs.Add(-1); n < 0 {
		log.Error("共享配置引用计数为负", "refs", n)
	}
}

// Refs 返回当前引用数
func (c *SharedConfig) Refs() int64 {
	return c.refs.Load()
}

// computeFingerprint 对证书链、策略以及底层 tls.Config 的策略字段做摘要
func (c *SharedConfig) computeFingerprint() [sha256.Size]byte {
	h := sha256.New()
	var buf [2]byte
	put16 := func(v uint16) {
		binary.BigEndian.PutUint16(buf[:], v)
		h.Write(buf[:])
	}
	putStrings := func(ss []string) {
		put16(uint16(len(ss)))
		for _, s := range ss {
			put16(uint16(len(s)))
			h.Write([]byte(s))
		}
	}
	putSuites := func(ids []uint16) {
		put16(uint16(len(ids)))
		for _, id := range ids {
			put16(id)
		}
	}

	for _, der := range c.certificate.Certificate {
		put16(uint16(len(der)))
		h.Write(der)
	}
	put16(c.minVersion)
	put16(c.maxVersion)
	putSuites(c.cipherSuites)
	putStrings(c.nextProtos)
	put16(uint16(c.clientAuth))
	h.Write([]byte(c.handshakeTimeout.String()))

	// 底层 tls.Config 与私有字段分开计入，二者任一被改动都会导致指纹变化
	put16(c.std.MinVersion)
	put16(c.std.MaxVersion)
	putSuites(c.std.CipherSuites)
	putStrings(c.std.NextProtos)
	put16(uint16(c.std.ClientAuth))
	put16(uint16(len(c.std.Certificates)))

	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ============================================================================
//                              辅助函数
// ============================================================================

// ParseVersion 解析协议版本名称，例如 "1.2"、"TLS1.3"
func ParseVersion(name string) (uint16, error) {
	n := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "TLS")
	n = strings.TrimSpace(strings.TrimPrefix(n, "V"))
	switch n {
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, name)
}

// CipherSuiteByName 按 IANA 名称查找安全加密套件
func CipherSuiteByName(name string) (uint16, error) {
	for _, s := range tls.CipherSuites() {
		if s.Name == name {
			return s.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCipherSuite, name)
}

func knownVersion(v uint16) bool {
	switch v {
	case tls.VersionTLS10, tls.VersionTLS11, tls.VersionTLS12, tls.VersionTLS13:
		return true
	}
	return false
}

func secureSuite(id uint16) bool {
	for _, s := range tls.CipherSuites() {
		if s.ID == id {
			return true
		}
	}
	return false
}

func cloneChain(chain [][]byte) [][]byte {
	out := make([][]byte, len(chain))
	for i, der := range chain {
		out[i] = slices.Clone(der)
	}
	return out
}
