package repository

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/store"
)

// GetUserByHashedEmail looks a teacher up by email digest. It returns nil
// when no account uses that digest.
func (r *Repository) GetUserByHashedEmail(ctx context.Context, digest string) (*models.User, error) {
	users, err := store.AllByIndex[models.User](ctx, r.store.Handle(), store.Users, store.ByEmail, digest)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return getOne[models.User](ctx, r.store, store.Users, id)
}

// AddUser inserts a new account. It fails with store.ErrConstraint when the
// id or the email digest is already taken.
func (r *Repository) AddUser(ctx context.Context, u models.User) (string, error) {
	if err := validate(u); err != nil {
		return "", err
	}
	return r.store.Add(ctx, store.Users, u)
}

// PutUser upserts u without checking the email digest first.
func (r *Repository) PutUser(ctx context.Context, u models.User) (string, error) {
	return r.store.Put(ctx, store.Users, u)
}

// UpdateTeacherProfile saves profile changes. Email and password cannot be
// changed this way: the stored digests are kept whatever u carries.
func (r *Repository) UpdateTeacherProfile(ctx context.Context, u models.User) (models.User, error) {
	current, err := r.GetUserByID(ctx, u.ID)
	if err != nil {
		return models.User{}, err
	}
	if current == nil {
		return models.User{}, fmt.Errorf("%w: user %s", ErrNotFound, u.ID)
	}

	u.Email = current.Email
	u.Password = current.Password
	if err := validate(u); err != nil {
		return models.User{}, err
	}
	if _, err := r.store.Put(ctx, store.Users, u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (r *Repository) GetCredentialsForUser(ctx context.Context, userID string) ([]models.WebAuthnCredential, error) {
	return store.AllByIndex[models.WebAuthnCredential](ctx, r.store.Handle(), store.WebAuthnCredentials, store.ByUser, userID)
}

// AddCredential registers a device credential; a reused credential id fails
// with store.ErrConstraint.
func (r *Repository) AddCredential(ctx context.Context, c models.WebAuthnCredential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	if err := validate(c); err != nil {
		return err
	}
	_, err := r.store.Add(ctx, store.WebAuthnCredentials, c)
	return err
}

func (r *Repository) DeleteCredential(ctx context.Context, credentialID string) error {
	return r.store.Delete(ctx, store.WebAuthnCredentials, credentialID)
}

// GetSetting returns the value stored for key and whether it was set.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s, err := getOne[models.Setting](ctx, r.store, store.Settings, key)
	if err != nil || s == nil {
		return "", false, err
	}
	return s.Value, true, nil
}

func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.store.Put(ctx, store.Settings, models.Setting{Key: key, Value: value})
	return err
}
