package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/deckrebuild-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}

// MemoryBus delivers messages synchronously to in-process forwarders.
// Used when REDIS_ADDR is unset and by tests.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int]func(realtime.Message)
	next int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]func(realtime.Message){}}
}

func (b *MemoryBus) Publish(_ context.Context, msg realtime.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(msg)
	}
	return nil
}

func (b *MemoryBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = onMsg
	b.mu.Unlock()

	context.AfterFunc(ctx, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	})
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	clear(b.subs)
	b.mu.Unlock()
	return nil
}
