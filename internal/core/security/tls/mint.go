// Package tls 实现共享 TLS 配置与握手引擎
package tls

import (
	"context"
	"crypto"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/bifurcation/mint"
)

// MintEngine 基于 mint 的 TLS 1.3 握手引擎
//
// mint.Config 在构造时从共享配置一次性生成并初始化，之后只读；
// mint 内部自带互斥锁，可被多个连接共享。
type MintEngine struct {
	shared *SharedConfig
	config *mint.Config
}

// 确保实现 Engine 接口
var _ Engine = (*MintEngine)(nil)

// NewMintEngine 从共享配置创建 mint 引擎
func NewMintEngine(shared *SharedConfig) (*MintEngine, error) {
	if shared == nil {
		return nil, ErrNilConfig
	}
	if shared.maxVersion != 0 && shared.maxVersion < tls.VersionTLS13 {
		return nil, fmt.Errorf("%w: mint 只支持 TLS 1.3", ErrEngineUnsupported)
	}
	if shared.clientAuth != tls.NoClientCert {
		return nil, fmt.Errorf("%w: mint 引擎不支持客户端证书策略", ErrEngineUnsupported)
	}
	signer, ok := shared.certificate.PrivateKey.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: 私钥未实现 crypto.Signer", ErrEngineUnsupported)
	}

	config := &mint.Config{
		Certificates: []*mint.Certificate{{
			Chain:      shared.chain,
			PrivateKey: signer,
		}},
		NextProtos: shared.NextProtos(),
	}
	if err := config.Init(false); err != nil {
		return nil, fmt.Errorf("初始化 mint 配置失败: %w", err)
	}

	return &MintEngine{shared: shared, config: config}, nil
}

// Name 返回引擎名称
func (e *MintEngine) Name() string { return EngineMint }

// Handshake 执行服务端握手
//
// mint 的阻塞握手不接受 context，取消通过把连接截止时间设为当前时间实现。
func (e *MintEngine) Handshake(ctx context.Context, conn net.Conn, cfg *SharedConfig) (Session, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg != e.shared {
		return nil, fmt.Errorf("%w: 引擎与共享配置不匹配", ErrEngineUnsupported)
	}

	if cfg.handshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.handshakeTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	mc := mint.Server(conn, e.config)
	alert := mc.Handshake()
	if !stop() {
		// 取消回调已执行，连接截止时间已被改写
		return nil, fmt.Errorf("mint 握手被取消: %w", context.Cause(ctx))
	}
	if alert != mint.AlertNoAlert {
		return nil, fmt.Errorf("mint 握手失败: alert %v", alert)
	}
	_ = conn.SetDeadline(time.Time{})

	return &mintSession{Conn: mc}, nil
}

// mintSession mint 会话
type mintSession struct {
	*mint.Conn
}

func (s *mintSession) Info() SessionInfo {
	return SessionInfo{
		Engine:  EngineMint,
		Version: tls.VersionTLS13,
	}
}
