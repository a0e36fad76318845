package repository

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/store"
)

// StudentProfile holds the fields a student may edit on their own record.
type StudentProfile struct {
	AvatarURL string
	Contact   models.Contact
	Parents   []models.Parent
}

// SaveStudent creates or updates a student as the teacher does. The class
// name copy is taken from the stored class and the access code is
// normalised before writing.
func (r *Repository) SaveStudent(ctx context.Context, s models.Student) (models.Student, error) {
	if s.ID == "" {
		s.ID = r.newID()
	}
	if s.Parents == nil {
		s.Parents = []models.Parent{}
	}
	s.AccessCode = NormalizeAccessCode(s.AccessCode)

	if s.ClassID != "" {
		c, err := r.GetClassByID(ctx, s.ClassID)
		if err != nil {
			return models.Student{}, err
		}
		if c == nil {
			return models.Student{}, fmt.Errorf("%w: class %s", ErrNotFound, s.ClassID)
		}
		s.ClassName = c.Name
	}

	if err := validate(s); err != nil {
		return models.Student{}, err
	}
	if _, err := r.store.Put(ctx, store.Students, s); err != nil {
		return models.Student{}, err
	}

	r.publish(ctx, eventbus.StudentUpdateEvent(s))
	return s, nil
}

// UpdateStudentProfile applies a student's own edit. When the avatar
// changes and sessionID is set, an AVATAR_UPDATE activity with the old and
// new values is appended to that session.
func (r *Repository) UpdateStudentProfile(ctx context.Context, studentID, sessionID string, p StudentProfile) (models.Student, error) {
	s, err := r.GetStudentByID(ctx, studentID)
	if err != nil {
		return models.Student{}, err
	}
	if s == nil {
		return models.Student{}, fmt.Errorf("%w: student %s", ErrNotFound, studentID)
	}

	oldAvatar := s.AvatarURL
	s.AvatarURL = p.AvatarURL
	s.Contact = p.Contact
	if p.Parents != nil {
		s.Parents = p.Parents
	}

	if err := validate(*s); err != nil {
		return models.Student{}, err
	}
	if _, err := r.store.Put(ctx, store.Students, *s); err != nil {
		return models.Student{}, err
	}
	r.publish(ctx, eventbus.StudentUpdateEvent(*s))

	if sessionID != "" && oldAvatar != s.AvatarURL {
		payload := &models.ActivityPayload{OldValue: oldAvatar, NewValue: s.AvatarURL}
		if _, err := r.AppendActivity(ctx, sessionID, studentID, models.ActivityAvatarUpdate, payload); err != nil {
			return *s, err
		}
	}
	return *s, nil
}

// DeleteStudent removes a student and their grades. GRADES_UPDATE goes out
// after commit when any grade was removed.
func (r *Repository) DeleteStudent(ctx context.Context, studentID string) error {
	var graded bool
	err := r.store.Update(ctx, func(ctx context.Context, h *store.Handle) error {
		n, err := deleteGradesOf(ctx, h, studentID)
		if err != nil {
			return err
		}
		graded = n > 0
		return h.Delete(ctx, store.Students, studentID)
	})
	if err != nil {
		return err
	}
	if graded {
		r.publish(ctx, eventbus.GradesUpdateEvent(studentID))
	}
	return nil
}

func deleteGradesOf(ctx context.Context, h *store.Handle, studentID string) (int, error) {
	keys, err := h.KeysByIndex(ctx, store.Grades, store.ByStudent, studentID)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := h.Delete(ctx, store.Grades, k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
