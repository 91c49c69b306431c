// Package tls 实现共享 TLS 配置与握手引擎
package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// 引擎名称
const (
	EngineStd  = "std"
	EngineMint = "mint"
)

// SessionInfo 握手完成后的会话信息
type SessionInfo struct {
	Engine             string
	Version            uint16
	CipherSuite        uint16
	NegotiatedProtocol string
	ServerName         string
	PeerCertificates   int
}

// VersionName 返回协议版本名称
func (i SessionInfo) VersionName() string {
	return tls.VersionName(i.Version)
}

// Session 已完成握手的 TLS 会话
type Session interface {
	net.Conn

	// Info 返回会话信息
	Info() SessionInfo
}

// Engine 外部 TLS 引擎
//
// Handshake 在给定连接上以服务端身份完成握手。实现必须遵守 ctx：
// ctx 取消后握手应尽快失败返回。失败时连接由调用方负责关闭。
type Engine interface {
	Name() string
	Handshake(ctx context.Context, conn net.Conn, cfg *SharedConfig) (Session, error)
}

// NewEngine 按名称创建握手引擎
func NewEngine(name string, cfg *SharedConfig) (Engine, error) {
	switch name {
	case "", EngineStd:
		return StdEngine{}, nil
	case EngineMint:
		return NewMintEngine(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}

// ============================================================================
//                              StdEngine
// ============================================================================

// StdEngine 基于 crypto/tls 的握手引擎
type StdEngine struct{}

// 确保实现 Engine 接口
var _ Engine = StdEngine{}

// Name 返回引擎名称
func (StdEngine) Name() string { return EngineStd }

// Handshake 执行服务端握手
func (StdEngine) Handshake(ctx context.Context, conn net.Conn, cfg *SharedConfig) (Session, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if cfg.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.handshakeTimeout)
		defer cancel()
	}

	tlsConn := tls.Server(conn, cfg.std)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("TLS 握手失败: %w", err)
	}

	return &stdSession{Conn: tlsConn}, nil
}

// stdSession crypto/tls 会话
type stdSession struct {
	*tls.Conn
}

func (s *stdSession) Info() SessionInfo {
	state := s.ConnectionState()
	return SessionInfo{
		Engine:             EngineStd,
		Version:            state.Version,
		CipherSuite:        state.CipherSuite,
		NegotiatedProtocol: state.NegotiatedProtocol,
		ServerName:         state.ServerName,
		PeerCertificates:   len(state.PeerCertificates),
	}
}
