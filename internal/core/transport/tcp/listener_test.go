package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

func TestListen_UnsupportedNetwork(t *testing.T) {
	_, err := Listen(context.Background(), "udp", "127.0.0.1:0", DefaultListenOptions())
	assert.Error(t, err)
}

func TestListener_AcceptAndDial(t *testing.T) {
	ln, err := Listen(context.Background(), "tcp", "127.0.0.1:0", DefaultListenOptions())
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			t.Errorf("Accept failed: %v", err)
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	select {
	case c := <-accepted:
		require.NotNil(t, c)
		defer c.Close()
		assert.Equal(t, OwnerCoordinator, c.Owner())
		assert.Equal(t, client.LocalAddr().String(), c.RemoteAddr().String())
	case <-time.After(5 * time.Second):
		t.Fatal("accept timeout")
	}
}

func TestListener_AcceptAfterClose(t *testing.T) {
	raw, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	ln := NewListener(raw, DefaultListenOptions())
	require.NoError(t, ln.Close())
	assert.True(t, ln.IsClosed())
	assert.NoError(t, ln.Close(), "重复关闭应返回 nil")

	_, err = ln.Accept()
	assert.ErrorIs(t, err, ErrListenerClosed)
	assert.False(t, ln.Backoff(err), "关闭错误不是临时错误")
}

type tempErr struct{}

func (tempErr) Error() string   { return "temporary" }
func (tempErr) Temporary() bool { return true }
func (tempErr) Timeout() bool   { return false }

func TestIsTemporary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"emfile", &net.OpError{Op: "accept", Err: syscall.EMFILE}, true},
		{"conn aborted", fmt.Errorf("accept: %w", syscall.ECONNABORTED), true},
		{"temporary iface", tempErr{}, true},
		{"closed", ErrListenerClosed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTemporary(tt.err))
		})
	}
}

func TestListener_BackoffTemporary(t *testing.T) {
	raw, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	opts := DefaultListenOptions()
	opts.BackoffStart = time.Millisecond
	opts.BackoffMax = 2 * time.Millisecond
	ln := NewListener(raw, opts)
	defer ln.Close()

	assert.True(t, ln.Backoff(tempErr{}))
	assert.False(t, ln.Backoff(errors.New("fatal")))
	assert.False(t, ln.Backoff(nil))
}
