package session

import (
	"context"
	"slices"
	"sync"

	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/repository"
)

// SessionView is the teacher's live detail page for one student session.
// It owns a channel of its own, which Close releases.
type SessionView struct {
	id   string
	repo *repository.Repository
	ch   eventbus.Channel

	mu       sync.RWMutex
	unsub    func()
	closed   bool
	session  *models.SessionRecord
	activity []models.ActivityRecord
	onChange func()
}

// OpenSessionView subscribes to broker for sessionID, then loads the
// session and its timeline.
func OpenSessionView(ctx context.Context, repo *repository.Repository, broker eventbus.Broker, sessionID string) (*SessionView, error) {
	ch, err := broker.Open(ctx)
	if err != nil {
		return nil, err
	}

	v := &SessionView{id: sessionID, repo: repo, ch: ch}
	unsub, err := ch.Subscribe(v.Apply)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	v.unsub = unsub

	if err := v.Refresh(ctx); err != nil {
		_ = v.Close()
		return nil, err
	}
	return v, nil
}

// Refresh reloads from the store, keeping activity that arrived meanwhile.
func (v *SessionView) Refresh(ctx context.Context) error {
	v.mu.RLock()
	closed := v.closed
	v.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}

	rec, err := v.repo.GetSessionByID(ctx, v.id)
	if err != nil {
		return err
	}
	activity, err := v.repo.GetActivityForSession(ctx, v.id)
	if err != nil {
		return err
	}

	v.mu.Lock()
	for _, a := range v.activity {
		if !containsActivity(activity, a.ID) {
			activity = append(activity, a)
		}
	}
	repository.SortActivity(activity)
	v.activity = activity
	v.session = rec
	v.mu.Unlock()
	return nil
}

// OnChange registers fn to be called after an event changed the view.
func (v *SessionView) OnChange(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// Apply merges NEW_ACTIVITY and LOGOUT events for this session.
func (v *SessionView) Apply(e eventbus.Event) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}

	changed := false
	switch e.Type {
	case eventbus.NewActivity:
		if e.Activity != nil && e.Activity.SessionID == v.id && !containsActivity(v.activity, e.Activity.ID) {
			v.activity = append(v.activity, *e.Activity)
			repository.SortActivity(v.activity)
			changed = true
		}
	case eventbus.Logout:
		if e.Session != nil && e.Session.SessionID == v.id {
			if v.session == nil {
				rec := *e.Session
				v.session = &rec
			} else {
				v.session.LogoutTimestamp = e.Session.LogoutTimestamp
			}
			changed = true
		}
	}
	fn := v.onChange
	v.mu.Unlock()

	if changed && fn != nil {
		fn()
	}
}

// Session returns the session record, or nil if it does not exist.
func (v *SessionView) Session() *models.SessionRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.session == nil {
		return nil
	}
	rec := *v.session
	return &rec
}

// Activity returns the timeline, oldest first.
func (v *SessionView) Activity() []models.ActivityRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.activity)
}

// Close detaches the listener and closes the view's channel.
func (v *SessionView) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	unsub := v.unsub
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return v.ch.Close()
}

func containsActivity(list []models.ActivityRecord, id string) bool {
	return slices.ContainsFunc(list, func(a models.ActivityRecord) bool { return a.ID == id })
}
