package moments

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/models"
)

// Broker fans change notifications out to listeners. It is created once
// at startup and handed to whoever needs it.
type Broker struct {
	logger logging.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]Listener
	closed bool
}

func NewBroker(logger logging.Logger) *Broker {
	return &Broker{
		logger: logging.OrNop(logger).With("module", "broker"),
		subs:   make(map[uint64]Listener),
	}
}

// Subscribe adds fn. The returned function removes it and is safe to call
// more than once. Subscribing to a closed broker is a no-op.
func (b *Broker) Subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || fn == nil {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish calls every current listener with its own copy of videos.
// A listener that panics is logged and skipped.
func (b *Broker) Publish(ctx context.Context, videos []models.Video) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Listener, 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		b.deliver(ctx, fn, models.CloneVideos(videos))
	}
}

func (b *Broker) deliver(ctx context.Context, fn Listener, videos []models.Video) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "listener panicked", "panic", r)
		}
	}()
	fn(videos)
}

// Len is the number of current listeners.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every listener. Later Publish and Subscribe calls do
// nothing.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[uint64]Listener)
}
