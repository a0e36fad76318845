package eventbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrijs2005/registro/internal/dbx"
	"github.com/google/uuid"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultRetention    = time.Minute
)

// SQLiteBroker relays events between processes sharing one database file.
// Publish appends a row to bus_events and each subscription polls for rows
// newer than the last one it has seen. A subscription starts after the
// newest row, so nothing is replayed, and rows older than the retention are
// pruned on publish.
//
// The database must carry the bus_events table; store.Open creates it.
type SQLiteBroker struct {
	db        *sql.DB
	name      string
	logger    *slog.Logger
	poll      time.Duration
	retention time.Duration
	now       func() time.Time

	mu       sync.Mutex
	channels map[*sqliteChannel]struct{}
}

func NewSQLiteBroker(db *sql.DB, name string, logger *slog.Logger) *SQLiteBroker {
	return &SQLiteBroker{
		db:        db,
		name:      name,
		logger:    logger,
		poll:      defaultPollInterval,
		retention: defaultRetention,
		now:       time.Now,
		channels:  make(map[*sqliteChannel]struct{}),
	}
}

func (b *SQLiteBroker) Open(ctx context.Context) (Channel, error) {
	c := &sqliteChannel{broker: b, origin: uuid.NewString(), subs: make(map[int]*sqliteSub)}
	b.mu.Lock()
	b.channels[c] = struct{}{}
	b.mu.Unlock()
	return c, nil
}

// Close closes every channel still open. The database belongs to the caller.
func (b *SQLiteBroker) Close() error {
	b.mu.Lock()
	chans := make([]*sqliteChannel, 0, len(b.channels))
	for c := range b.channels {
		chans = append(chans, c)
	}
	b.mu.Unlock()

	for _, c := range chans {
		_ = c.Close()
	}
	return nil
}

type sqliteSub struct {
	*subscription
	cancel context.CancelFunc
}

type sqliteChannel struct {
	broker *SQLiteBroker
	origin string

	mu     sync.Mutex
	closed bool
	nextID int
	subs   map[int]*sqliteSub
}

func (c *sqliteChannel) Publish(ctx context.Context, e Event) error {
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

	b := c.broker
	now := b.now()
	err = dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bus_events(channel, origin, payload, created_at) VALUES (?, ?, ?, ?)`,
			b.name, c.origin, string(payload), now.UnixMilli()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM bus_events WHERE created_at < ?`, now.Add(-b.retention).UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

func (c *sqliteChannel) Subscribe(h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	var cursor int64
	if err := c.broker.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM bus_events`).Scan(&cursor); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	id := c.nextID
	c.nextID++
	s := &sqliteSub{subscription: newSubscription(h), cancel: cancel}
	c.subs[id] = s

	go c.run(ctx, s.subscription, cursor)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			s.stop()
			cancel()
		})
	}, nil
}

func (c *sqliteChannel) run(ctx context.Context, s *subscription, cursor int64) {
	ticker := time.NewTicker(c.broker.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cursor = c.drain(ctx, s, cursor)
		}
	}
}

type busRow struct {
	id      int64
	origin  string
	payload string
}

// drain delivers every row after cursor and returns the new cursor. Rows are
// read in full before any handler runs, since handlers may use the same
// single-connection pool.
func (c *sqliteChannel) drain(ctx context.Context, s *subscription, cursor int64) int64 {
	b := c.broker
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, origin, payload FROM bus_events WHERE channel = ? AND id > ? ORDER BY id`, b.name, cursor)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("failed to poll events", "channel", b.name, "error", err)
		}
		return cursor
	}

	var batch []busRow
	for rows.Next() {
		var r busRow
		if err := rows.Scan(&r.id, &r.origin, &r.payload); err != nil {
			_ = rows.Close()
			b.logger.Warn("failed to read event", "channel", b.name, "error", err)
			return cursor
		}
		batch = append(batch, r)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil && ctx.Err() == nil {
		b.logger.Warn("failed to poll events", "channel", b.name, "error", err)
	}

	for _, r := range batch {
		cursor = r.id
		if r.origin == c.origin {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(r.payload), &e); err != nil {
			b.logger.Warn("dropping malformed event", "id", r.id, "error", err)
			continue
		}
		s.deliver(e)
	}
	return cursor
}

func (c *sqliteChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, s := range c.subs {
		s.stop()
		s.cancel()
		delete(c.subs, id)
	}
	c.mu.Unlock()

	c.broker.mu.Lock()
	delete(c.broker.channels, c)
	c.broker.mu.Unlock()
	return nil
}
