package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/registro/internal/logging"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// openStore opens a migrated database file; two calls with the same path
// behave like two processes sharing it.
func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), path, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fastSQLiteBroker(t *testing.T, path string) *SQLiteBroker {
	t.Helper()
	b := NewSQLiteBroker(openStore(t, path).DB(), DefaultChannelName, quietLogger())
	b.poll = 10 * time.Millisecond
	return b
}

func brokers(t *testing.T) map[string]Broker {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	out := map[string]Broker{
		"memory":    NewMemoryBroker(),
		"gochannel": NewGoChannelBroker(DefaultChannelName, quietLogger()),
		"redis":     NewRedisBroker(client, DefaultChannelName, quietLogger()),
		"sqlite":    fastSQLiteBroker(t, filepath.Join(t.TempDir(), "bus.db")),
	}
	for _, b := range out {
		t.Cleanup(func() { _ = b.Close() })
	}
	return out
}

const wait = 2 * time.Second
const tick = 10 * time.Millisecond

func TestChannel_DeliversToOthersOnly(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a, err := b.Open(ctx)
			require.NoError(t, err)
			other, err := b.Open(ctx)
			require.NoError(t, err)
			third, err := b.Open(ctx)
			require.NoError(t, err)
			defer a.Close()
			defer other.Close()
			defer third.Close()

			var self, r1, r2 recorder
			_, err = a.Subscribe(self.handle)
			require.NoError(t, err)
			_, err = other.Subscribe(r1.handle)
			require.NoError(t, err)
			_, err = third.Subscribe(r2.handle)
			require.NoError(t, err)

			st := models.Student{ID: "s1", Name: "Luca", TeacherID: "t1", ClassID: "c1"}
			require.NoError(t, a.Publish(ctx, StudentUpdateEvent(st)))

			assert.Eventually(t, func() bool { return r1.count() == 1 && r2.count() == 1 }, wait, tick)
			got := r1.last()
			assert.Equal(t, StudentUpdate, got.Type)
			require.NotNil(t, got.Student)
			assert.Equal(t, "s1", got.Student.ID)

			assert.Never(t, func() bool { return self.count() > 0 }, 100*time.Millisecond, tick)
		})
	}
}

func TestChannel_Unsubscribe(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			pub, err := b.Open(ctx)
			require.NoError(t, err)
			sub, err := b.Open(ctx)
			require.NoError(t, err)
			defer pub.Close()
			defer sub.Close()

			var r recorder
			unsubscribe, err := sub.Subscribe(r.handle)
			require.NoError(t, err)

			require.NoError(t, pub.Publish(ctx, GradesUpdateEvent("s1")))
			assert.Eventually(t, func() bool { return r.count() == 1 }, wait, tick)
			assert.Equal(t, "s1", r.last().StudentID)

			unsubscribe()
			unsubscribe()

			require.NoError(t, pub.Publish(ctx, GradesUpdateEvent("s2")))
			assert.Never(t, func() bool { return r.count() > 1 }, 100*time.Millisecond, tick)
		})
	}
}

func TestChannel_Close(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			pub, err := b.Open(ctx)
			require.NoError(t, err)
			sub, err := b.Open(ctx)
			require.NoError(t, err)
			defer pub.Close()

			var r recorder
			_, err = sub.Subscribe(r.handle)
			require.NoError(t, err)

			require.NoError(t, sub.Close())
			require.NoError(t, sub.Close(), "close is idempotent")

			require.NoError(t, pub.Publish(ctx, GradesUpdateEvent("s1")))
			assert.Never(t, func() bool { return r.count() > 0 }, 100*time.Millisecond, tick)

			assert.ErrorIs(t, sub.Publish(ctx, GradesUpdateEvent("s1")), ErrChannelClosed)
			_, err = sub.Subscribe(r.handle)
			assert.ErrorIs(t, err, ErrChannelClosed)
		})
	}
}

func TestEvent_WireShape(t *testing.T) {
	login := time.Date(2024, 9, 12, 8, 0, 0, 0, time.UTC)
	e := LoginEvent(models.SessionRecord{SessionID: "x1", StudentID: "s1", TeacherID: "t1", LoginTimestamp: login})

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var shape map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &shape))
	assert.JSONEq(t, `"LOGIN"`, string(shape["type"]))
	assert.Contains(t, shape, "session")
	assert.NotContains(t, shape, "student")
	assert.NotContains(t, shape, "activity")
	assert.NotContains(t, shape, "studentId")

	g, err := json.Marshal(GradesUpdateEvent("s9"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"GRADES_UPDATE","studentId":"s9"}`, string(g))
}

func TestMemoryBroker_RecordsAndCounts(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	c, err := b.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, b.OpenChannels())

	a := models.ActivityRecord{ID: "a1", SessionID: "x1", StudentID: "s1", Type: models.ActivityViewInfo}
	require.NoError(t, c.Publish(ctx, NewActivityEvent(a)))

	got := b.Published()
	require.Len(t, got, 1)
	assert.Equal(t, NewActivity, got[0].Type)
	assert.Equal(t, "a1", got[0].Activity.ID)

	b.Reset()
	assert.Empty(t, b.Published())

	require.NoError(t, c.Close())
	assert.Zero(t, b.OpenChannels())
}

func TestNew_Drivers(t *testing.T) {
	ctx := context.Background()

	b, err := New(ctx, DriverMemory, DefaultChannelName, nil, "", quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryBroker{}, b)

	b, err = New(ctx, DriverGoChannel, DefaultChannelName, nil, "", quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &GoChannelBroker{}, b)
	require.NoError(t, b.Close())

	b, err = New(ctx, DriverSQLite, DefaultChannelName, openStore(t, ":memory:").DB(), "", quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteBroker{}, b)
	require.NoError(t, b.Close())

	_, err = New(ctx, DriverSQLite, DefaultChannelName, nil, "", quietLogger())
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	b, err = New(ctx, DriverRedis, DefaultChannelName, nil, "redis://"+mr.Addr()+"/0", quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &RedisBroker{}, b)
	require.NoError(t, b.Close())

	_, err = New(ctx, DriverRedis, DefaultChannelName, nil, "::not a url", quietLogger())
	assert.Error(t, err)

	_, err = New(ctx, "kafka", DefaultChannelName, nil, "", quietLogger())
	assert.Error(t, err)
}

func TestSQLiteBroker_CrossesProcesses(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registro.db")
	teacherSide := fastSQLiteBroker(t, path)
	studentSide := fastSQLiteBroker(t, path)

	pub, err := teacherSide.Open(ctx)
	require.NoError(t, err)
	defer pub.Close()
	sub, err := studentSide.Open(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, pub.Publish(ctx, GradesUpdateEvent("before")))

	var r recorder
	_, err = sub.Subscribe(r.handle)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, GradesUpdateEvent("s1")))
	require.NoError(t, pub.Publish(ctx, GradesUpdateEvent("s2")))

	assert.Eventually(t, func() bool { return r.count() == 2 }, wait, tick)
	r.mu.Lock()
	got := []string{r.events[0].StudentID, r.events[1].StudentID}
	r.mu.Unlock()
	assert.Equal(t, []string{"s1", "s2"}, got, "no replay of events older than the subscription")
}

func TestSQLiteBroker_PrunesOldRows(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, ":memory:")
	b := NewSQLiteBroker(s.DB(), DefaultChannelName, quietLogger())

	clock := time.Date(2024, 9, 12, 8, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }

	c, err := b.Open(ctx)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Publish(ctx, GradesUpdateEvent("s1")))
	clock = clock.Add(2 * defaultRetention)
	require.NoError(t, c.Publish(ctx, GradesUpdateEvent("s2")))

	var payloads []string
	rows, err := s.DB().Query(`SELECT payload FROM bus_events`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var p string
		require.NoError(t, rows.Scan(&p))
		payloads = append(payloads, p)
	}
	require.NoError(t, rows.Err())
	require.Len(t, payloads, 1)
	assert.JSONEq(t, `{"type":"GRADES_UPDATE","studentId":"s2"}`, payloads[0])
}

func TestSQLiteBroker_CloseClosesChannels(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBroker(openStore(t, ":memory:").DB(), DefaultChannelName, quietLogger())

	c, err := b.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, c.Publish(ctx, GradesUpdateEvent("s1")), ErrChannelClosed)
}

func TestSubscription_StopBlocksDelivery(t *testing.T) {
	var r recorder
	s := newSubscription(r.handle)

	s.deliver(GradesUpdateEvent("s1"))
	s.stop()
	s.deliver(GradesUpdateEvent("s2"))

	require.Equal(t, 1, r.count())
	assert.Equal(t, "s1", r.last().StudentID)
}
