package coordinator

import (
	"context"
	cryptotls "crypto/tls"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/core/transport/tcp"
	"github.com/dep2p/go-tlsworker/internal/core/worker"
)

// fixture 一组协调器测试依赖
type fixture struct {
	raw      net.Listener
	listener *tcp.Listener
	shared   *tls.SharedConfig
	worker   *worker.Worker
	exec     Executor
	coord    *Coordinator
}

func testShared(t testing.TB) *tls.SharedConfig {
	t.Helper()
	cert, err := tls.GenerateSelfSigned([]string{"localhost", "127.0.0.1"}, time.Hour)
	require.NoError(t, err)
	sc, err := tls.NewConfigBuilder().
		WithCertificate(cert).
		WithMinVersion(cryptotls.VersionTLS12).
		WithHandshakeTimeout(5 * time.Second).
		Build()
	require.NoError(t, err)
	return sc
}

// newFixture 创建协调器；wrap 可替换底层监听器
func newFixture(t *testing.T, opts Options, mode string, wrap func(net.Listener) net.Listener) *fixture {
	t.Helper()

	raw, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	inner := raw
	if wrap != nil {
		inner = wrap(raw)
	}
	lopts := tcp.DefaultListenOptions()
	lopts.BackoffMax = 20 * time.Millisecond
	ln := tcp.NewListener(inner, lopts)

	shared := testShared(t)
	w := worker.New(tls.StdEngine{}, worker.EchoHandler{IdleTimeout: 5 * time.Second})

	if opts.MaxOutstanding == 0 {
		opts.MaxOutstanding = 16
	}
	if opts.ReapInterval == 0 {
		opts.ReapInterval = 10 * time.Millisecond
	}
	exec, err := NewExecutor(config.PoolConfig{
		Mode:       mode,
		MaxWorkers: opts.MaxOutstanding * 2,
	})
	require.NoError(t, err)

	c, err := New(ln, shared, w, exec, opts)
	require.NoError(t, err)

	f := &fixture{raw: raw, listener: ln, shared: shared, worker: w, exec: exec, coord: c}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return f
}

func (f *fixture) addr() string {
	return f.raw.Addr().String()
}

// serve 后台运行 Serve，返回其结果 channel
func (f *fixture) serve() <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- f.coord.Serve(context.Background())
	}()
	return done
}

func clientConfig() *cryptotls.Config {
	return &cryptotls.Config{
		InsecureSkipVerify: true,
		MinVersion:         cryptotls.VersionTLS12,
		ServerName:         "localhost",
	}
}

// echoOnce 完成握手、发送一条消息并校验回显
func echoOnce(addr, msg string) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return echoOver(conn, msg)
}

// echoOver 在已建立的 TCP 连接上完成 TLS 回显
func echoOver(conn net.Conn, msg string) error {
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	tc := cryptotls.Client(conn, clientConfig())
	if _, err := tc.Write([]byte(msg)); err != nil {
		return err
	}
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(tc, buf); err != nil {
		return err
	}
	if string(buf) != msg {
		return io.ErrUnexpectedEOF
	}
	return tc.Close()
}

// silentClient 建立 TCP 连接但不发送任何数据
func silentClient(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// acceptedConn 返回一个服务端连接句柄，不经过协调器
func acceptedConn(t *testing.T) *tcp.Conn {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	silentClient(t, ln.Addr().String())

	raw, err := ln.Accept()
	require.NoError(t, err)
	conn, err := tcp.NewConn(raw)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// faultyListener 按脚本返回 accept 错误
type faultyListener struct {
	net.Listener

	mu        sync.Mutex
	temps     []error
	failAfter int
	fatal     error
	accepted  int
}

func (l *faultyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if len(l.temps) > 0 {
		err := l.temps[0]
		l.temps = l.temps[1:]
		l.mu.Unlock()
		return nil, err
	}
	if l.fatal != nil && l.accepted >= l.failAfter {
		l.mu.Unlock()
		return nil, l.fatal
	}
	l.mu.Unlock()

	c, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.accepted++
		l.mu.Unlock()
	}
	return c, err
}

// gatedListener 底层 accept 完成后停在 gate 上，直到 gate 关闭才返回
type gatedListener struct {
	net.Listener

	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedListener(l net.Listener) *gatedListener {
	return &gatedListener{Listener: l, entered: make(chan struct{}), gate: make(chan struct{})}
}

func (l *gatedListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	l.once.Do(func() { close(l.entered) })
	<-l.gate
	return c, nil
}

// refusingExecutor 拒绝所有任务
type refusingExecutor struct{}

func (refusingExecutor) Execute(context.Context, func()) error { return ErrExecutorClosed }
func (refusingExecutor) Close() error                          { return nil }
