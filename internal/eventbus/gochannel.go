package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

const (
	metaOrigin    = "origin"
	metaEventType = "event_type"
)

// GoChannelBroker connects the tabs living in one process through a
// Watermill in-memory pub/sub. Nothing leaves the process.
type GoChannelBroker struct {
	pubsub *gochannel.GoChannel
	topic  string
	logger *slog.Logger
}

func NewGoChannelBroker(topic string, logger *slog.Logger) *GoChannelBroker {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewSlogLogger(logger))
	return &GoChannelBroker{pubsub: ps, topic: topic, logger: logger}
}

func (b *GoChannelBroker) Open(ctx context.Context) (Channel, error) {
	return &goChannel{broker: b, origin: uuid.NewString(), subs: make(map[int]*goSub)}, nil
}

func (b *GoChannelBroker) Close() error {
	return b.pubsub.Close()
}

type goSub struct {
	*subscription
	cancel context.CancelFunc
}

type goChannel struct {
	broker *GoChannelBroker
	origin string

	mu     sync.Mutex
	closed bool
	nextID int
	subs   map[int]*goSub
}

func (c *goChannel) Publish(ctx context.Context, e Event) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(metaOrigin, c.origin)
	msg.Metadata.Set(metaEventType, string(e.Type))

	if err := c.broker.pubsub.Publish(c.broker.topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

func (c *goChannel) Subscribe(h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := c.broker.pubsub.Subscribe(ctx, c.broker.topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	id := c.nextID
	c.nextID++
	s := &goSub{subscription: newSubscription(h), cancel: cancel}
	c.subs[id] = s

	go func() {
		for msg := range msgs {
			if msg.Metadata.Get(metaOrigin) != c.origin {
				c.deliver(msg, s.subscription)
			}
			msg.Ack()
		}
	}()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		// Watermill drains the subscriber asynchronously after cancel.
		s.stop()
		cancel()
	}, nil
}

func (c *goChannel) deliver(msg *message.Message, s *subscription) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		c.broker.logger.Warn("dropping malformed event", "message_uuid", msg.UUID, "error", err)
		return
	}
	s.deliver(e)
}

func (c *goChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for id, s := range c.subs {
		s.stop()
		s.cancel()
		delete(c.subs, id)
	}
	return nil
}
