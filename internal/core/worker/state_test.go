package worker

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "pending", finishing.String())
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(42).String())

	assert.False(t, Pending.Terminal())
	assert.True(t, Success.Terminal())
	assert.True(t, Failed.Terminal())
}

func TestCompletion_Monotonic(t *testing.T) {
	var c Completion
	assert.Equal(t, Pending, c.Load())

	assert.True(t, c.begin())
	assert.Equal(t, Pending, c.Load(), "写入中仍表现为 Pending")
	c.publish(Success)
	assert.Equal(t, Success, c.Load())

	assert.False(t, c.begin())
	assert.Equal(t, Success, c.Load())
}

func TestCompletion_PublishNonTerminalPanics(t *testing.T) {
	var c Completion
	c.begin()
	assert.Panics(t, func() { c.publish(Pending) })
}

// TestCompletion_SingleWinner 并发写入只有一个成功，读者不会看到状态回退
func TestCompletion_SingleWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		var c Completion
		var wins atomic.Int32
		var regressed atomic.Bool

		var wg sync.WaitGroup
		stop := make(chan struct{})

		wg.Add(1)
		go func() {
			defer wg.Done()
			seenTerminal := false
			for {
				s := c.Load()
				if seenTerminal && !s.Terminal() {
					regressed.Store(true)
				}
				if s.Terminal() {
					seenTerminal = true
				}
				select {
				case <-stop:
					return
				default:
				}
			}
		}()

		var writers sync.WaitGroup
		for i := 0; i < 8; i++ {
			writers.Add(1)
			go func(i int) {
				defer writers.Done()
				if c.begin() {
					wins.Add(1)
					if i%2 == 0 {
						c.publish(Success)
					} else {
						c.publish(Failed)
					}
				}
			}(i)
		}
		writers.Wait()
		close(stop)
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.True(t, c.Load().Terminal())
		assert.False(t, regressed.Load())
	}
}
