package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS12)

	e, err := NewEngine("", sc)
	require.NoError(t, err)
	assert.Equal(t, EngineStd, e.Name())

	e, err = NewEngine(EngineStd, sc)
	require.NoError(t, err)
	assert.Equal(t, EngineStd, e.Name())

	_, err = NewEngine("openssl", sc)
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestStdEngine_NilConfig(t *testing.T) {
	server, _ := tcpPair(t)
	_, err := StdEngine{}.Handshake(context.Background(), server, nil)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestStdEngine_Handshake(t *testing.T) {
	for _, version := range []uint16{tls.VersionTLS12, tls.VersionTLS13} {
		t.Run(tls.VersionName(version), func(t *testing.T) {
			sc, err := NewConfigBuilder().
				WithCertificate(testCertificate(t)).
				WithMinVersion(version).
				WithMaxVersion(version).
				WithNextProtos([]string{"echo"}).
				Build()
			require.NoError(t, err)

			server, client := tcpPair(t)

			clientErr := make(chan error, 1)
			go func() {
				tc := tls.Client(client, &tls.Config{
					InsecureSkipVerify: true,
					MinVersion:         tls.VersionTLS12,
					NextProtos:         []string{"echo"},
					ServerName:         "localhost",
				})
				if err := tc.Handshake(); err != nil {
					clientErr <- err
					return
				}
				_, err := tc.Write([]byte("ping"))
				clientErr <- err
			}()

			sess, err := StdEngine{}.Handshake(context.Background(), server, sc)
			require.NoError(t, err)
			require.NoError(t, <-clientErr)

			info := sess.Info()
			assert.Equal(t, EngineStd, info.Engine)
			assert.Equal(t, version, info.Version)
			assert.Equal(t, "echo", info.NegotiatedProtocol)
			assert.Equal(t, "localhost", info.ServerName)
			assert.Equal(t, tls.VersionName(version), info.VersionName())

			buf := make([]byte, 4)
			_, err = io.ReadFull(sess, buf)
			require.NoError(t, err)
			assert.Equal(t, "ping", string(buf))
		})
	}
}

// TestStdEngine_RejectsOldVersion 客户端最高版本低于服务端最低版本时握手失败
func TestStdEngine_RejectsOldVersion(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS13)
	server, client := tcpPair(t)

	go func() {
		tc := tls.Client(client, &tls.Config{
			InsecureSkipVerify: true,
			MaxVersion:         tls.VersionTLS12,
		})
		_ = tc.Handshake()
		_ = client.Close()
	}()

	_, err := StdEngine{}.Handshake(context.Background(), server, sc)
	assert.Error(t, err)
}

// TestStdEngine_Cancel 客户端不发任何数据时取消 ctx 使握手返回
func TestStdEngine_Cancel(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS12)
	server, _ := tcpPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := StdEngine{}.Handshake(ctx, server, sc)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStdEngine_HandshakeTimeout(t *testing.T) {
	sc, err := NewConfigBuilder().
		WithCertificate(testCertificate(t)).
		WithHandshakeTimeout(100 * time.Millisecond).
		Build()
	require.NoError(t, err)
	server, _ := tcpPair(t)

	_, err = StdEngine{}.Handshake(context.Background(), server, sc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewMintEngine_Rejects(t *testing.T) {
	cert := testCertificate(t)

	_, err := NewMintEngine(nil)
	assert.ErrorIs(t, err, ErrNilConfig)

	sc, err := NewConfigBuilder().WithCertificate(cert).WithMaxVersion(tls.VersionTLS12).Build()
	require.NoError(t, err)
	_, err = NewMintEngine(sc)
	assert.ErrorIs(t, err, ErrEngineUnsupported)

	sc, err = NewConfigBuilder().WithCertificate(cert).
		WithClientAuth(tls.RequireAnyClientCert, nil).
		Build()
	require.NoError(t, err)
	_, err = NewEngine(EngineMint, sc)
	assert.ErrorIs(t, err, ErrEngineUnsupported)
}

func TestMintEngine_ConfigMismatch(t *testing.T) {
	a := testSharedConfig(t, tls.VersionTLS12)
	b := testSharedConfig(t, tls.VersionTLS12)

	e, err := NewMintEngine(a)
	require.NoError(t, err)
	assert.Equal(t, EngineMint, e.Name())

	server, _ := tcpPair(t)
	_, err = e.Handshake(context.Background(), server, b)
	assert.ErrorIs(t, err, ErrEngineUnsupported)
}

// TestMintEngine_GarbageClient 对端发送非 TLS 数据后关闭，握手失败
func TestMintEngine_GarbageClient(t *testing.T) {
	sc := testSharedConfig(t, tls.VersionTLS12)
	e, err := NewMintEngine(sc)
	require.NoError(t, err)

	server, client := tcpPair(t)
	go func() {
		_, _ = client.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
		_ = client.Close()
	}()

	_, err = e.Handshake(context.Background(), server, sc)
	assert.Error(t, err)
}
