package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/store"
)

// SaveClass creates or updates a class. Names are unique per teacher,
// ignoring case. When an existing class changes name, every student in it
// gets the new className in the same transaction, and each rewritten
// student is broadcast afterwards.
func (r *Repository) SaveClass(ctx context.Context, c models.ClassInfo) (models.ClassInfo, error) {
	if c.ID == "" {
		c.ID = r.newID()
	}
	c.Name = strings.TrimSpace(c.Name)
	if err := validate(c); err != nil {
		return models.ClassInfo{}, err
	}

	var renamed []models.Student
	err := r.store.Update(ctx, func(ctx context.Context, h *store.Handle) error {
		classes, err := store.AllByIndex[models.ClassInfo](ctx, h, store.Classes, store.ByTeacher, c.TeacherID)
		if err != nil {
			return err
		}

		var previous *models.ClassInfo
		for i := range classes {
			if classes[i].ID == c.ID {
				previous = &classes[i]
				continue
			}
			if strings.EqualFold(classes[i].Name, c.Name) {
				return fmt.Errorf("%w: %q", ErrDuplicateClassName, c.Name)
			}
		}

		if _, err := h.Put(ctx, store.Classes, c); err != nil {
			return err
		}

		if previous == nil || previous.Name == c.Name {
			return nil
		}

		students, err := store.AllByIndex[models.Student](ctx, h, store.Students, store.ByClass, c.ID)
		if err != nil {
			return err
		}
		for _, s := range students {
			s.ClassName = c.Name
			if _, err := h.Put(ctx, store.Students, s); err != nil {
				return err
			}
			renamed = append(renamed, s)
		}
		return nil
	})
	if err != nil {
		return models.ClassInfo{}, err
	}

	for _, s := range renamed {
		r.publish(ctx, eventbus.StudentUpdateEvent(s))
	}
	return c, nil
}

// RenameClass changes a class name and the copy held by its students.
func (r *Repository) RenameClass(ctx context.Context, classID, name string) (models.ClassInfo, error) {
	c, err := r.GetClassByID(ctx, classID)
	if err != nil {
		return models.ClassInfo{}, err
	}
	if c == nil {
		return models.ClassInfo{}, fmt.Errorf("%w: class %s", ErrNotFound, classID)
	}
	c.Name = name
	return r.SaveClass(ctx, *c)
}

// DeleteClass removes a class together with its students and their grades.
// Each student who lost grades gets a GRADES_UPDATE after commit.
func (r *Repository) DeleteClass(ctx context.Context, classID string) error {
	var graded []string
	err := r.store.Update(ctx, func(ctx context.Context, h *store.Handle) error {
		keys, err := h.KeysByIndex(ctx, store.Students, store.ByClass, classID)
		if err != nil {
			return err
		}
		for _, k := range keys {
			n, err := deleteGradesOf(ctx, h, k)
			if err != nil {
				return err
			}
			if n > 0 {
				graded = append(graded, k)
			}
			if err := h.Delete(ctx, store.Students, k); err != nil {
				return err
			}
		}
		return h.Delete(ctx, store.Classes, classID)
	})
	if err != nil {
		return err
	}
	for _, id := range graded {
		r.publish(ctx, eventbus.GradesUpdateEvent(id))
	}
	return nil
}
