package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/worker"
)

func TestTable(t *testing.T) {
	shared := testShared(t)
	tb := newTable(2)

	require.True(t, tb.tryAcquire())
	require.True(t, tb.tryAcquire())
	assert.False(t, tb.tryAcquire(), "容量已满")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tb.acquire(ctx), context.DeadlineExceeded)

	// 未使用的预留直接归还
	tb.release()

	// insert 使用已预留的槽位
	require.True(t, tb.tryAcquire())
	wctx, err := worker.NewContext(acceptedConn(t), shared, time.Now())
	require.NoError(t, err)
	tb.insert(wctx)
	assert.Equal(t, 1, tb.len())
	require.Len(t, tb.snapshot(), 1)

	assert.False(t, tb.remove(uuid.New()))
	assert.True(t, tb.remove(wctx.ID()))
	assert.False(t, tb.remove(wctx.ID()), "重复移除不会多归还槽位")
	assert.Zero(t, tb.len())

	// 仍持有一个未使用的预留，只剩一个空槽位
	require.True(t, tb.tryAcquire())
	assert.False(t, tb.tryAcquire())
	wctx.Release()
}

func TestHistory(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		h, err := newHistory(0)
		require.NoError(t, err)
		h.add(Outcome{ID: uuid.New()})
		assert.Nil(t, h.recent())
		_, ok := h.get(uuid.New())
		assert.False(t, ok)
	})

	t.Run("Evicts", func(t *testing.T) {
		h, err := newHistory(2)
		require.NoError(t, err)
		ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
		for _, id := range ids {
			h.add(Outcome{ID: id, State: worker.Success})
		}

		recent := h.recent()
		require.Len(t, recent, 2)
		assert.Equal(t, ids[1], recent[0].ID)
		assert.Equal(t, ids[2], recent[1].ID)

		_, ok := h.get(ids[0])
		assert.False(t, ok)
		o, ok := h.get(ids[2])
		require.True(t, ok)
		assert.Equal(t, worker.Success, o.State)
	})
}

func TestExecutor(t *testing.T) {
	for _, mode := range []string{config.ModePooled, config.ModeSpawn} {
		t.Run(mode, func(t *testing.T) {
			exec, err := NewExecutor(config.PoolConfig{Mode: mode, MaxWorkers: 4})
			require.NoError(t, err)

			var ran atomic.Int32
			for i := 0; i < 10; i++ {
				require.NoError(t, exec.Execute(context.Background(), func() {
					time.Sleep(time.Millisecond)
					ran.Add(1)
				}))
			}
			require.Eventually(t, func() bool { return ran.Load() == 10 }, 5*time.Second, time.Millisecond)

			require.NoError(t, exec.Close())
			assert.ErrorIs(t, exec.Execute(context.Background(), func() {}), ErrExecutorClosed)
			assert.NoError(t, exec.Close())
		})
	}

	_, err := NewExecutor(config.PoolConfig{Mode: "fork"})
	assert.Error(t, err)
}

func TestExecutor_CloseWaits(t *testing.T) {
	for _, mode := range []string{config.ModePooled, config.ModeSpawn} {
		t.Run(mode, func(t *testing.T) {
			exec, err := NewExecutor(config.PoolConfig{Mode: mode, MaxWorkers: 2})
			require.NoError(t, err)

			release := make(chan struct{})
			started := make(chan struct{})
			var finished atomic.Bool
			require.NoError(t, exec.Execute(context.Background(), func() {
				close(started)
				<-release
				finished.Store(true)
			}))
			<-started

			closed := make(chan struct{})
			go func() {
				_ = exec.Close()
				close(closed)
			}()

			select {
			case <-closed:
				t.Fatal("Close 应等待任务结束")
			case <-time.After(20 * time.Millisecond):
			}
			close(release)
			<-closed
			assert.True(t, finished.Load())
		})
	}
}

func TestAcceptError(t *testing.T) {
	e := &AcceptError{Err: context.Canceled, temporary: true}
	assert.True(t, e.Temporary())
	assert.False(t, e.Fatal())
	assert.ErrorIs(t, e, context.Canceled)
	assert.Contains(t, e.Error(), "accept")
}
