package tls

import (
	"crypto/tls"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCertificate(t testing.TB) tls.Certificate {
	t.Helper()
	cert, err := GenerateSelfSigned([]string{"localhost", "127.0.0.1"}, 0)
	require.NoError(t, err)
	return cert
}

func testSharedConfig(t testing.TB, minVersion uint16) *SharedConfig {
	t.Helper()
	sc, err := NewConfigBuilder().
		WithCertificate(testCertificate(t)).
		WithMinVersion(minVersion).
		Build()
	require.NoError(t, err)
	return sc
}

// tcpPair 创建一对已连接的 TCP 连接
func tcpPair(t testing.TB) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-accepted
	require.NotNil(t, server)

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}
