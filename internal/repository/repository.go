// Package repository holds the typed operations of the register on top of
// the document store: lookups, domain writes, and the cascading deletes.
//
// Writes that other tabs must see are broadcast on the tab's channel after
// the store transaction commits. A failed broadcast is logged and never
// fails the write.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/logging"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/store"
	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrInvalidRecord      = errors.New("invalid record")
	ErrDuplicateClassName = errors.New("class name already in use")
)

type Repository struct {
	store *store.Store
	pub   eventbus.Publisher
	log   logging.Logger

	now   func() time.Time
	newID func() string
}

// New builds a repository. pub may be nil, in which case nothing is
// broadcast.
func New(s *store.Store, pub eventbus.Publisher, log logging.Logger) *Repository {
	return &Repository{
		store: s,
		pub:   pub,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Store exposes the underlying store.
func (r *Repository) Store() *store.Store {
	return r.store
}

func (r *Repository) publish(ctx context.Context, e eventbus.Event) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, e); err != nil {
		r.log.Warn(ctx, "broadcast failed", "type", e.Type, "error", err)
	}
}

func validate(v any) error {
	if err := models.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

// Put upserts record into storeName and returns its key. Records written to
// the activity collection are also broadcast as NEW_ACTIVITY.
func (r *Repository) Put(ctx context.Context, storeName string, record any) (string, error) {
	key, err := r.store.Put(ctx, storeName, record)
	if err != nil {
		return "", err
	}

	if storeName == store.Activity {
		a, err := asActivity(record)
		if err != nil {
			r.log.Warn(ctx, "activity not broadcast", "key", key, "error", err)
			return key, nil
		}
		r.publish(ctx, eventbus.NewActivityEvent(a))
	}
	return key, nil
}

// Delete removes the record stored under key.
func (r *Repository) Delete(ctx context.Context, storeName, key string) error {
	return r.store.Delete(ctx, storeName, key)
}

func asActivity(record any) (models.ActivityRecord, error) {
	switch a := record.(type) {
	case models.ActivityRecord:
		return a, nil
	case *models.ActivityRecord:
		return *a, nil
	}

	var a models.ActivityRecord
	raw, err := json.Marshal(record)
	if err != nil {
		return a, err
	}
	err = json.Unmarshal(raw, &a)
	return a, err
}

func getOne[T any](ctx context.Context, s *store.Store, storeName, key string) (*T, error) {
	var v T
	ok, err := s.Get(ctx, storeName, key, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}
