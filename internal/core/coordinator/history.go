package coordinator

import (
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-tlsworker/internal/core/worker"
)

// Outcome 一个已回收上下文的结果
type Outcome struct {
	ID          uuid.UUID
	Remote      string
	State       worker.State
	Err         string
	Engine      string
	Version     string
	AcceptedAt  time.Time
	FinishedAt  time.Time
	ForcedClose bool
}

// history 最近结果，容量为 0 时不记录
type history struct {
	cache *lru.Cache[uuid.UUID, Outcome]
}

func newHistory(size int) (*history, error) {
	if size <= 0 {
		return &history{}, nil
	}
	cache, err := lru.New[uuid.UUID, Outcome](size)
	if err != nil {
		return nil, err
	}
	return &history{cache: cache}, nil
}

func (h *history) add(o Outcome) {
	if h.cache == nil {
		return
	}
	h.cache.Add(o.ID, o)
}

// recent 由旧到新返回记录
func (h *history) recent() []Outcome {
	if h.cache == nil {
		return nil
	}
	return h.cache.Values()
}

func (h *history) get(id uuid.UUID) (Outcome, bool) {
	if h.cache == nil {
		return Outcome{}, false
	}
	return h.cache.Get(id)
}

func outcomeOf(c *worker.Context, forced bool) Outcome {
	o := Outcome{
		ID:          c.ID(),
		Remote:      c.Conn().RemoteAddr().String(),
		State:       c.State(),
		AcceptedAt:  c.CreatedAt(),
		FinishedAt:  c.FinishedAt(),
		ForcedClose: forced,
	}
	if err := c.Err(); err != nil {
		o.Err = err.Error()
	}
	if info := c.Info(); info.Version != 0 {
		o.Engine = info.Engine
		o.Version = info.VersionName()
	}
	return o
}
