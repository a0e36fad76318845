package eventbus

import (
	"context"
	"sync"
)

// MemoryBroker delivers synchronously inside Publish. It also records every
// published event so tests can assert on what a write broadcast.
type MemoryBroker struct {
	mu        sync.Mutex
	channels  map[*memoryChannel]struct{}
	published []Event
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{channels: make(map[*memoryChannel]struct{})}
}

func (b *MemoryBroker) Open(ctx context.Context) (Channel, error) {
	c := &memoryChannel{broker: b, handlers: make(map[int]Handler)}
	b.mu.Lock()
	b.channels[c] = struct{}{}
	b.mu.Unlock()
	return c, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	chans := make([]*memoryChannel, 0, len(b.channels))
	for c := range b.channels {
		chans = append(chans, c)
	}
	b.mu.Unlock()

	for _, c := range chans {
		_ = c.Close()
	}
	return nil
}

// Published returns a copy of every event published so far, in order.
func (b *MemoryBroker) Published() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.published...)
}

// Reset forgets the recorded events.
func (b *MemoryBroker) Reset() {
	b.mu.Lock()
	b.published = nil
	b.mu.Unlock()
}

// OpenChannels counts channels not yet closed.
func (b *MemoryBroker) OpenChannels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

type memoryChannel struct {
	broker *MemoryBroker

	mu       sync.Mutex
	closed   bool
	nextID   int
	handlers map[int]Handler
}

func (c *memoryChannel) Publish(ctx context.Context, e Event) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	b := c.broker
	b.mu.Lock()
	b.published = append(b.published, e)
	targets := make([]Handler, 0)
	for other := range b.channels {
		if other == c {
			continue
		}
		targets = append(targets, other.snapshot()...)
	}
	b.mu.Unlock()

	for _, h := range targets {
		h(e)
	}
	return nil
}

func (c *memoryChannel) snapshot() []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	hs := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	return hs
}

func (c *memoryChannel) Subscribe(h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	id := c.nextID
	c.nextID++
	c.handlers[id] = h

	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}, nil
}

func (c *memoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = make(map[int]Handler)
	c.mu.Unlock()

	c.broker.mu.Lock()
	delete(c.broker.channels, c)
	c.broker.mu.Unlock()
	return nil
}
