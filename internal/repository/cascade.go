package repository

import (
	"context"

	"github.com/dmitrijs2005/registro/internal/store"
)

// DeleteAllDataForTeacher removes an account and everything reachable from
// it in one transaction: sessions and their activity, device credentials,
// every teacher-owned collection, and finally the user record. Keys are
// collected through the indexes first, then deleted.
func (r *Repository) DeleteAllDataForTeacher(ctx context.Context, teacherID string) error {
	removed := 0
	err := r.store.Update(ctx, func(ctx context.Context, h *store.Handle) error {
		sessionIDs, err := h.KeysByIndex(ctx, store.Sessions, store.ByTeacher, teacherID)
		if err != nil {
			return err
		}

		var activityIDs []string
		for _, sid := range sessionIDs {
			keys, err := h.KeysByIndex(ctx, store.Activity, store.BySession, sid)
			if err != nil {
				return err
			}
			activityIDs = append(activityIDs, keys...)
		}

		credentialIDs, err := h.KeysByIndex(ctx, store.WebAuthnCredentials, store.ByUser, teacherID)
		if err != nil {
			return err
		}

		steps := []batch{
			{store.WebAuthnCredentials, credentialIDs},
			{store.Activity, activityIDs},
			{store.Sessions, sessionIDs},
		}
		for _, name := range store.TeacherOwned {
			keys, err := h.KeysByIndex(ctx, name, store.ByTeacher, teacherID)
			if err != nil {
				return err
			}
			steps = append(steps, batch{name, keys})
		}

		for _, step := range steps {
			if err := deleteAll(ctx, h, step.store, step.keys); err != nil {
				return err
			}
			removed += len(step.keys)
		}

		return h.Delete(ctx, store.Users, teacherID)
	})
	if err != nil {
		return err
	}

	r.log.Info(ctx, "teacher account deleted", "teacher_id", teacherID, "records", removed)
	return nil
}

// DeleteSessionsAndActivities removes the given sessions and all of their
// activity in one transaction.
func (r *Repository) DeleteSessionsAndActivities(ctx context.Context, sessionIDs []string) error {
	return r.store.Update(ctx, func(ctx context.Context, h *store.Handle) error {
		for _, sid := range sessionIDs {
			keys, err := h.KeysByIndex(ctx, store.Activity, store.BySession, sid)
			if err != nil {
				return err
			}
			if err := deleteAll(ctx, h, store.Activity, keys); err != nil {
				return err
			}
			if err := h.Delete(ctx, store.Sessions, sid); err != nil {
				return err
			}
		}
		return nil
	})
}

// batch is a set of keys to delete from one collection.
type batch struct {
	store string
	keys  []string
}

func deleteAll(ctx context.Context, h *store.Handle, storeName string, keys []string) error {
	for _, k := range keys {
		if err := h.Delete(ctx, storeName, k); err != nil {
			return err
		}
	}
	return nil
}
