package events

import (
	"context"
	"sync"

	"github.com/alapierre/go-factus-etl/etl/table"
)

const subscriberBuffer = 64

// Broadcaster fans processed rows out to in-process subscribers. A subscriber
// that does not keep up misses rows instead of blocking the pipeline.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan table.Row
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan table.Row)}
}

// Subscribe returns a channel of rows and a function that closes it.
func (b *Broadcaster) Subscribe() (<-chan table.Row, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan table.Row, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) PublishInvoiceProcessed(_ context.Context, row table.Row) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- row:
		default:
			logger.WithField("subscriber", id).Warn("subscriber is lagging, dropping invoice event")
		}
	}
	return nil
}
