package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBroker connects tabs running in different processes that share one
// database file, using Redis PUBLISH/SUBSCRIBE on the channel name.
type RedisBroker struct {
	client *redis.Client
	name   string
	logger *slog.Logger
}

func NewRedisBroker(client *redis.Client, name string, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{client: client, name: name, logger: logger}
}

func (b *RedisBroker) Open(ctx context.Context) (Channel, error) {
	return &redisChannel{broker: b, origin: uuid.NewString(), subs: make(map[int]*redisSub)}, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// envelope is the wire format; Redis has no message metadata.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

type redisSub struct {
	*subscription
	ps *redis.PubSub
}

type redisChannel struct {
	broker *RedisBroker
	origin string

	mu     sync.Mutex
	closed bool
	nextID int
	subs   map[int]*redisSub
}

func (c *redisChannel) Publish(ctx context.Context, e Event) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	payload, err := json.Marshal(envelope{Origin: c.origin, Event: e})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	if err := c.broker.client.Publish(ctx, c.broker.name, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

func (c *redisChannel) Subscribe(h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}

	ctx := context.Background()
	ps := c.broker.client.Subscribe(ctx, c.broker.name)
	// Wait for the subscription to be confirmed so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	id := c.nextID
	c.nextID++
	s := &redisSub{subscription: newSubscription(h), ps: ps}
	c.subs[id] = s

	ch := ps.Channel()
	go func() {
		for m := range ch {
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				c.broker.logger.Warn("dropping malformed event", "channel", m.Channel, "error", err)
				continue
			}
			if env.Origin == c.origin {
				continue
			}
			s.deliver(env.Event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			s.stop()
			_ = ps.Close()
		})
	}, nil
}

func (c *redisChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for id, s := range c.subs {
		s.stop()
		if err := s.ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.subs, id)
	}
	return firstErr
}
