package eventbus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

var ErrChannelClosed = errors.New("channel closed")

// Handler receives events published by other channels.
type Handler func(Event)

// Publisher is the publishing half of a Channel.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Channel is one tab's handle on the named channel.
type Channel interface {
	Publisher
	// Subscribe attaches h until the returned function is called or the
	// channel is closed.
	Subscribe(h Handler) (unsubscribe func(), err error)
	// Close detaches every subscription and releases the handle.
	Close() error
}

// Broker opens channels sharing one name.
type Broker interface {
	Open(ctx context.Context) (Channel, error)
	Close() error
}

// subscription wraps one handler. Once stopped nothing more reaches it, even
// when the transport still has messages in flight for it.
type subscription struct {
	h Handler

	mu      sync.Mutex
	stopped bool
}

func newSubscription(h Handler) *subscription {
	return &subscription{h: h}
}

func (s *subscription) deliver(e Event) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if !stopped {
		s.h(e)
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Driver names accepted by New.
const (
	DriverSQLite    = "sqlite"
	DriverGoChannel = "gochannel"
	DriverRedis     = "redis"
	DriverMemory    = "memory"
)

// New builds the broker for driver. db is only used by the sqlite driver and
// redisURL only by the redis driver, which fails fast when the server cannot
// be reached.
func New(ctx context.Context, driver, name string, db *sql.DB, redisURL string, logger *slog.Logger) (Broker, error) {
	switch driver {
	case DriverSQLite:
		if db == nil {
			return nil, errors.New("sqlite bus driver needs a database")
		}
		return NewSQLiteBroker(db, name, logger), nil
	case DriverGoChannel:
		return NewGoChannelBroker(name, logger), nil
	case DriverMemory:
		return NewMemoryBroker(), nil
	case DriverRedis:
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return NewRedisBroker(client, name, logger), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", driver)
	}
}
