// Package identity persists the identity a tab is logged in with, so that a
// restarted tab can restore it. A tab holds at most one of the two kinds.
package identity

import (
	"context"

	"github.com/dmitrijs2005/registro/internal/models"
)

// TeacherIdentity is a logged-in teacher. Email is the plaintext address
// typed at login; the stored user only has its digest.
type TeacherIdentity struct {
	User  models.User `json:"user"`
	Email string      `json:"email"`
}

// StudentIdentity is a student logged in through an access code, bound to
// the SessionRecord created by that login.
type StudentIdentity struct {
	Student   models.Student `json:"student"`
	TeacherID string         `json:"teacherId"`
	SessionID string         `json:"sessionId"`
	Email     string         `json:"email,omitempty"`
}

// Storage loads and saves persisted identities. Load methods return nil,
// without error, when nothing is stored.
type Storage interface {
	LoadTeacher(ctx context.Context) (*TeacherIdentity, error)
	SaveTeacher(ctx context.Context, id TeacherIdentity) error
	ClearTeacher(ctx context.Context) error

	LoadStudent(ctx context.Context) (*StudentIdentity, error)
	SaveStudent(ctx context.Context, id StudentIdentity) error
	ClearStudent(ctx context.Context) error
}
