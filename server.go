package tlsworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/attest"
	"github.com/dep2p/go-tlsworker/internal/core/coordinator"
	"github.com/dep2p/go-tlsworker/internal/core/lifecycle"
	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/util/logger"
)

var log = logger.Logger("tlsworker")

// startTimeout Fx App 启动超时
const startTimeout = 30 * time.Second

// ════════════════════════════════════════════════════════════════════════════
//                              Server 定义
// ════════════════════════════════════════════════════════════════════════════

// Server 多工作者 TLS 服务
//
// New 组装全部组件并绑定监听地址；Start 开始接受连接；Shutdown 停止接受、
// 排空在途连接并释放资源。Server 只能启动一次。
type Server struct {
	config *config.Config
	app    *fx.App

	// Fx 注入的组件
	coord   *coordinator.Coordinator
	shared  *tls.SharedConfig
	engine  tls.Engine
	issuer  *attest.Issuer
	tracker *lifecycle.Tracker

	mu    sync.Mutex
	state ServerState

	// stopped 在关闭完成后关闭，stopErr 为第一次 Shutdown 的结果
	stopped chan struct{}
	stopErr error
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建服务
//
// cfg 为 nil 时使用默认配置；cfg 会被复制，之后对它的修改不影响服务。
//
// 示例：
//
//	srv, err := tlsworker.New(nil,
//	    tlsworker.WithListenAddress("127.0.0.1:8443"),
//	    tlsworker.WithCertFiles("server.crt", "server.key"),
//	)
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	o := newOptions(cfg)
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	srv := &Server{config: o.config, stopped: make(chan struct{})}

	app, err := buildFxApp(o, srv)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	srv.app = app

	log.Debug("服务已创建",
		"addr", srv.coord.Addr(),
		"engine", srv.engine.Name(),
		"maxOutstanding", srv.coord.Capacity())
	return srv, nil
}

// Start 快捷启动函数，等价于 New() + Start()
func Start(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	srv, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(ctx); err != nil {
		_ = srv.Shutdown(context.Background())
		return nil, fmt.Errorf("start server: %w", err)
	}
	return srv, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 开始接受连接
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
	case StateStopping, StateStopped:
		return ErrServerClosed
	default:
		return ErrAlreadyStarted
	}

	s.state = StateStarting
	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := s.app.Start(startCtx); err != nil {
		s.state = StateStopped
		// 回滚不会执行协调器的 OnStop，监听套接字由这里释放
		_ = s.coord.Shutdown(context.Background())
		close(s.stopped)
		log.Error("服务启动失败", "error", err)
		return fmt.Errorf("start fx app: %w", err)
	}

	s.state = StateRunning
	log.Info("服务已启动",
		"addr", s.coord.Addr(),
		"engine", s.engine.Name(),
		"fingerprint", s.shared.FingerprintHex()[:16])
	return nil
}

// Shutdown 停止接受新连接并排空在途连接
//
// 只有第一次调用执行关闭；并发或之后的调用等待其完成并返回相同结果，
// ctx 先到期则返回 ctx 的错误。未启动的服务直接释放监听套接字。
// 返回关闭过程中的全部错误；共享配置仍有引用时附加 ErrLeakedReferences。
// 排空期间不持有状态锁，State 等查询不会被阻塞。
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	if prev == StateStopping || prev == StateStopped {
		s.mu.Unlock()
		select {
		case <-s.stopped:
			return s.stopErr
		default:
		}
		select {
		case <-s.stopped:
			return s.stopErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.state = StateStopping
	s.mu.Unlock()

	var err error
	if prev == StateIdle {
		err = s.coord.Shutdown(ctx)
		_ = s.tracker.AdvanceTo(lifecycle.PhaseStopped)
		s.tracker.Stop()
	} else {
		log.Info("正在关闭服务")
		err = s.app.Stop(ctx)
	}

	if refs := s.shared.Refs(); refs != 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %d", ErrLeakedReferences, refs))
	}

	st := s.coord.Stats()
	log.Info("服务已关闭",
		"accepted", st.Accepted,
		"succeeded", st.Succeeded,
		"failed", st.Failed,
		"rejected", st.Rejected)

	s.mu.Lock()
	s.state = StateStopped
	s.stopErr = err
	s.mu.Unlock()
	close(s.stopped)
	return err
}

// State 返回服务状态
func (s *Server) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Phase 返回生命周期阶段
func (s *Server) Phase() Phase {
	return s.tracker.Phase()
}

// WaitPhase 等待进入指定阶段
func (s *Server) WaitPhase(ctx context.Context, phase Phase) error {
	return s.tracker.WaitFor(ctx, phase)
}

// AcceptDone accept 循环停止后关闭（Shutdown 或致命 accept 错误）
func (s *Server) AcceptDone() <-chan struct{} {
	return s.coord.AcceptDone()
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// Addr 返回监听地址
func (s *Server) Addr() string {
	return s.coord.Addr()
}

// Config 返回配置副本
func (s *Server) Config() *config.Config {
	return s.config.Clone()
}

// Engine 返回握手引擎名称
func (s *Server) Engine() string {
	return s.engine.Name()
}

// Fingerprint 返回共享 TLS 配置指纹（十六进制）
func (s *Server) Fingerprint() string {
	return s.shared.FingerprintHex()
}

// Stats 返回统计快照
func (s *Server) Stats() Stats {
	return s.coord.Stats()
}

// Recent 返回最近回收的连接结果，由旧到新
func (s *Server) Recent() []Outcome {
	return s.coord.Recent()
}

// Lookup 按上下文标识查询连接结果
func (s *Server) Lookup(id uuid.UUID) (Outcome, bool) {
	return s.coord.Lookup(id)
}

// Evidence 为 nonce 签发证明证据
//
// 证据绑定共享 TLS 配置指纹和叶子证书公钥，可用 VerifyEvidence 校验。
func (s *Server) Evidence(nonce []byte) ([]byte, error) {
	return s.issuer.Issue(nonce)
}

// EvidenceLabel 返回证据标签
func (s *Server) EvidenceLabel() string {
	return s.issuer.Label()
}

// ════════════════════════════════════════════════════════════════════════════
//                              证据校验
// ════════════════════════════════════════════════════════════════════════════

// EvidenceClaims 证据声明
type EvidenceClaims = attest.Claims

// EvidenceVerifyOptions 证据校验参数
type EvidenceVerifyOptions = attest.VerifyOptions

// VerifyEvidence 校验 Server.Evidence 签发的证据
func VerifyEvidence(evidence []byte, opts EvidenceVerifyOptions) (*EvidenceClaims, error) {
	return attest.Verify(evidence, opts)
}
