package tcp

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	c, err := NewConn(server)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = client.Close()
	})
	return c, client
}

func TestNewConnNil(t *testing.T) {
	_, err := NewConn(nil)
	assert.Error(t, err)
}

func TestConn_InitialOwnerIsCoordinator(t *testing.T) {
	c, _ := newPipeConn(t)
	assert.Equal(t, OwnerCoordinator, c.Owner())
	assert.True(t, c.OwnedBy(OwnerCoordinator))
	assert.False(t, c.IsClosed())
	assert.NotZero(t, c.ID())
}

func TestConn_ClaimOnce(t *testing.T) {
	c, _ := newPipeConn(t)

	first, second := NextOwner(), NextOwner()
	require.NoError(t, c.Claim(first))
	assert.True(t, c.OwnedBy(first))

	err := c.Claim(second)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.True(t, c.OwnedBy(first), "失败的 Claim 不应改变持有者")
}

func TestConn_ClaimCoordinatorRejected(t *testing.T) {
	c, _ := newPipeConn(t)
	assert.ErrorIs(t, c.Claim(OwnerCoordinator), ErrNotOwner)
}

func TestConn_ClaimAfterClose(t *testing.T) {
	c, _ := newPipeConn(t)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Claim(NextOwner()), ErrConnectionClosed)
}

// TestConn_ConcurrentClaim 并发 Claim 只有一个成功
func TestConn_ConcurrentClaim(t *testing.T) {
	for round := 0; round < 50; round++ {
		c, _ := newPipeConn(t)

		const workers = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if c.Claim(NextOwner()) == nil {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load(), "round %d", round)
	}
}

// TestConn_CloseOnce 并发关闭只物理关闭一次
func TestConn_CloseOnce(t *testing.T) {
	c, _ := newPipeConn(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Close()
		}()
	}
	wg.Wait()

	assert.True(t, c.IsClosed())
	assert.Equal(t, 1, c.Closes())
	assert.NoError(t, c.Close())
	assert.Equal(t, 1, c.Closes())
}

func TestConn_ReadWrite(t *testing.T) {
	c, client := newPipeConn(t)

	go func() {
		_, _ = client.Write([]byte("ping"))
	}()

	buf := make([]byte, 4)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	go func() {
		_, _ = c.Write([]byte("pong"))
	}()
	n, err = client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))

	assert.Same(t, c.conn, c.NetConn())
	assert.Contains(t, c.String(), "conn#")
}
