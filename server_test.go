package tlsworker

import (
	"bytes"
	"context"
	cryptotls "crypto/tls"
	"encoding/hex"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/lifecycle"
)

// newTestServer 创建监听本地随机端口的服务
func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	base := []Option{
		WithListenAddress("127.0.0.1:0"),
		WithPrometheusRegisterer(prometheus.NewRegistry()),
	}
	srv, err := New(nil, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func dialTLS(t *testing.T, addr string) *cryptotls.Conn {
	t.Helper()
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := cryptotls.DialWithDialer(dialer, "tcp", addr, &cryptotls.Config{
		InsecureSkipVerify: true,
		MinVersion:         cryptotls.VersionTLS12,
		ServerName:         "localhost",
	})
	require.NoError(t, err)
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func TestNew_IdleShutdown(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, StateIdle, srv.State())
	assert.Equal(t, lifecycle.PhaseCreated, srv.Phase())
	assert.Equal(t, "std", srv.Engine())
	assert.NotEmpty(t, srv.Addr())
	assert.Len(t, srv.Fingerprint(), 64)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, srv.State())
	assert.NoError(t, srv.Shutdown(context.Background()))
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)

	// 监听套接字已释放
	_, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	assert.Error(t, err)
}

func TestServer_ShutdownDoesNotBlockQueries(t *testing.T) {
	srv := newTestServer(t, WithShutdownGrace(500*time.Millisecond))
	require.NoError(t, srv.Start(context.Background()))

	// 只建立 TCP 连接不握手，关闭时要等满宽限期
	client, err := net.DialTimeout("tcp", srv.Addr(), 5*time.Second)
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool {
		return srv.Stats().Dispatched == 1
	}, 5*time.Second, 10*time.Millisecond)

	first := make(chan error, 1)
	go func() {
		first <- srv.Shutdown(context.Background())
	}()

	// 排空期间状态查询立即返回
	require.Eventually(t, func() bool {
		return srv.State() == StateStopping
	}, 400*time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)

	// 第二次调用等待第一次完成
	second := srv.Shutdown(context.Background())
	assert.Equal(t, StateStopped, srv.State())

	select {
	case err := <-first:
		assert.NoError(t, err)
		assert.NoError(t, second)
	case <-time.After(10 * time.Second):
		t.Fatal("Shutdown 未返回")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, srv.Shutdown(ctx), "已关闭时直接返回结果")
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(nil, WithMaxOutstanding(0))
	assert.Error(t, err)

	_, err = New(nil, WithPreset("nope"))
	assert.Error(t, err)

	_, err = New(nil, WithCertFiles("only-cert.pem", ""))
	assert.Error(t, err)

	_, err = New(nil, WithHandler(nil))
	assert.Error(t, err)

	_, err = New(nil, WithEngine("mint"), WithTLSVersions("1.2", "1.2"))
	assert.Error(t, err)
}

func TestServer_EchoRoundTrip(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newTestServer(t, WithPrometheusRegisterer(reg))
	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, StateRunning, srv.State())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAlreadyStarted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.WaitPhase(ctx, lifecycle.PhaseServing))

	conn := dialTLS(t, srv.Addr())
	_, err := conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return srv.Stats().Succeeded == 1
	}, 5*time.Second, 10*time.Millisecond)

	recent := srv.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, WorkerSuccess, recent[0].State)
	_, ok := srv.Lookup(recent[0].ID)
	assert.True(t, ok)

	assert.Equal(t, 1.0, counterValue(t, reg, "tlsworker_connections_accepted_total"))
	n, err := testutil.GatherAndCount(reg, "tlsworker_handshakes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, lifecycle.PhaseStopped, srv.Phase())
	<-srv.AcceptDone()
}

// counterValue 读取注册表中无标签计数器的值
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			require.Len(t, f.GetMetric(), 1)
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestServer_GreetingPreset(t *testing.T) {
	srv := newTestServer(t, WithPreset(PresetNameDev))
	require.NoError(t, srv.Start(context.Background()))

	conn := dialTLS(t, srv.Addr())
	_, err := conn.Write([]byte("GET / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)
	body, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "HTTP/1.0 200 OK"))
	assert.Contains(t, string(body), "Successful connection using TLS")
}

func TestServer_CustomHandler(t *testing.T) {
	srv := newTestServer(t, WithHandler(HandlerFunc(func(_ context.Context, sess Session) error {
		_, err := sess.Write([]byte("hi " + sess.Info().VersionName()))
		return err
	})))
	require.NoError(t, srv.Start(context.Background()))

	conn := dialTLS(t, srv.Addr())
	body, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "hi TLS 1."))
}

func TestServer_Evidence(t *testing.T) {
	srv := newTestServer(t)
	nonce := bytes.Repeat([]byte{7}, 32)

	evidence, err := srv.Evidence(nonce)
	require.NoError(t, err)

	fp, err := hex.DecodeString(srv.Fingerprint())
	require.NoError(t, err)
	claims, err := VerifyEvidence(evidence, EvidenceVerifyOptions{
		Nonce:       nonce,
		Label:       srv.EvidenceLabel(),
		Fingerprint: fp,
	})
	require.NoError(t, err)
	assert.Equal(t, fp, claims.Fingerprint)

	_, err = srv.Evidence([]byte("short"))
	assert.Error(t, err)
}

func TestServer_MintEngine(t *testing.T) {
	srv := newTestServer(t, WithEngine("mint"), WithTLSVersions("1.3", "1.3"))
	assert.Equal(t, "mint", srv.Engine())
}

func TestServer_ConfigFile(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Listen.Address = "127.0.0.1:0"
	cfg.Pool.MaxOutstanding = 8
	cfg.Pool.MaxWorkers = 8
	cfg.Metrics.Enable = false
	data, err := config.ToJSON(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tlsworker.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	srv, err := New(nil, WithConfigFile(path))
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	got := srv.Config()
	assert.Equal(t, 8, got.Pool.MaxOutstanding)
	assert.False(t, got.Metrics.Enable)

	// 返回的是副本
	got.Pool.MaxOutstanding = 1
	assert.Equal(t, 8, srv.Config().Pool.MaxOutstanding)
}

func TestNew_ConfigIsCopied(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Listen.Address = "127.0.0.1:0"
	cfg.Metrics.Enable = false

	srv, err := New(cfg)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	cfg.Pool.MaxOutstanding = 1
	assert.NotEqual(t, 1, srv.Config().Pool.MaxOutstanding)
}

func TestPresets(t *testing.T) {
	infos := AvailablePresets()
	require.Len(t, infos, 4)
	for i := 1; i < len(infos); i++ {
		assert.Less(t, infos[i-1].Name, infos[i].Name)
	}

	assert.True(t, IsValidPreset(PresetNameEnclave))
	assert.False(t, IsValidPreset("mobile"))
	assert.Nil(t, GetConfigByPreset("mobile"))

	strict := GetConfigByPreset(PresetNameStrict)
	require.NotNil(t, strict)
	assert.Equal(t, "1.3", strict.TLS.MinVersion)
	require.NoError(t, config.ValidateAll(strict))

	enclave := GetConfigByPreset(PresetNameEnclave)
	require.NotNil(t, enclave)
	assert.Equal(t, config.BackpressureReject, enclave.Pool.Backpressure)
}

func TestServerState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "unknown", ServerState(42).String())
}

func TestVersionInfo(t *testing.T) {
	assert.True(t, strings.HasPrefix(VersionInfo(), "tlsworker "+Version))
}
