package coordinator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/dep2p/go-tlsworker/internal/core/worker"
)

// table 有界的未完成工作者上下文表
//
// 容量由信号量控制：accept 之前预留一个槽位，回收时归还。
// 互斥锁只保护 map 操作，不跨越阻塞调用。
type table struct {
	sem      *semaphore.Weighted
	capacity int

	mu      sync.Mutex
	entries map[uuid.UUID]*worker.Context
}

func newTable(capacity int) *table {
	return &table{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		entries:  make(map[uuid.UUID]*worker.Context, capacity),
	}
}

// acquire 阻塞直到有空槽位或 ctx 结束
func (t *table) acquire(ctx context.Context) error {
	return t.sem.Acquire(ctx, 1)
}

// tryAcquire 不阻塞地预留槽位
func (t *table) tryAcquire() bool {
	return t.sem.TryAcquire(1)
}

// release 归还一个未使用的预留槽位
func (t *table) release() {
	t.sem.Release(1)
}

// insert 把上下文放入已预留的槽位
func (t *table) insert(c *worker.Context) {
	t.mu.Lock()
	t.entries[c.ID()] = c
	t.mu.Unlock()
}

// remove 删除上下文并归还槽位
func (t *table) remove(id uuid.UUID) bool {
	t.mu.Lock()
	_, ok := t.entries[id]
	delete(t.entries, id)
	t.mu.Unlock()
	if ok {
		t.sem.Release(1)
	}
	return ok
}

// snapshot 返回当前所有上下文
func (t *table) snapshot() []*worker.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*worker.Context, 0, len(t.entries))
	for _, c := range t.entries {
		out = append(out, c)
	}
	return out
}

func (t *table) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
