package worker

import (
	"context"
	cryptotls "crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
	"github.com/dep2p/go-tlsworker/internal/core/transport/tcp"
)

func testShared(t testing.TB) *tls.SharedConfig {
	t.Helper()
	cert, err := tls.GenerateSelfSigned([]string{"localhost"}, time.Hour)
	require.NoError(t, err)
	sc, err := tls.NewConfigBuilder().
		WithCertificate(cert).
		WithMinVersion(cryptotls.VersionTLS12).
		WithHandshakeTimeout(5 * time.Second).
		Build()
	require.NoError(t, err)
	return sc
}

// connPair 返回服务端连接句柄和客户端原始连接
func connPair(t testing.TB) (*tcp.Conn, net.Conn) {
	t.Helper()
	ln, err := tcp.Listen(context.Background(), "tcp", "127.0.0.1:0", tcp.DefaultListenOptions())
	require.NoError(t, err)
	defer ln.Close()

	type result struct {
		c   *tcp.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := ln.Accept()
		ch <- result{c, err}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	r := <-ch
	require.NoError(t, r.err)

	t.Cleanup(func() {
		_ = client.Close()
		_ = r.c.Close()
	})
	return r.c, client
}

func tlsClient(c net.Conn) *cryptotls.Conn {
	return cryptotls.Client(c, &cryptotls.Config{
		InsecureSkipVerify: true,
		MinVersion:         cryptotls.VersionTLS12,
		ServerName:         "localhost",
	})
}

// recordingObserver 记录工作者事件
type recordingObserver struct {
	mu         sync.Mutex
	handshakes []error
	states     []State
}

func (o *recordingObserver) HandshakeDone(_ string, _ uint16, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handshakes = append(o.handshakes, err)
}

func (o *recordingObserver) WorkerDone(s State, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

// panickyObserver 在 WorkerDone 中 panic
type panickyObserver struct{ nopObserver }

func (panickyObserver) WorkerDone(State, time.Duration) { panic("observer failure") }

// onceFailingClock 第一次 Now 调用 panic
type onceFailingClock struct {
	clock.Clock
	calls atomic.Int32
}

func (c *onceFailingClock) Now() time.Time {
	if c.calls.Add(1) == 1 {
		panic("clock failure")
	}
	return c.Clock.Now()
}
