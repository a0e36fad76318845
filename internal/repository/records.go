package repository

import (
	"context"

	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/store"
)

// SaveGrade upserts a grade and tells the student's tab to re-fetch.
func (r *Repository) SaveGrade(ctx context.Context, g models.GradeItem) (models.GradeItem, error) {
	if g.ID == "" {
		g.ID = r.newID()
	}
	if err := validate(g); err != nil {
		return models.GradeItem{}, err
	}
	if _, err := r.store.Put(ctx, store.Grades, g); err != nil {
		return models.GradeItem{}, err
	}
	r.publish(ctx, eventbus.GradesUpdateEvent(g.StudentID))
	return g, nil
}

// DeleteGrade removes a grade. Deleting an unknown id is a no-op and
// broadcasts nothing.
func (r *Repository) DeleteGrade(ctx context.Context, gradeID string) error {
	g, err := getOne[models.GradeItem](ctx, r.store, store.Grades, gradeID)
	if err != nil || g == nil {
		return err
	}
	if err := r.store.Delete(ctx, store.Grades, gradeID); err != nil {
		return err
	}
	r.publish(ctx, eventbus.GradesUpdateEvent(g.StudentID))
	return nil
}

func (r *Repository) SaveLesson(ctx context.Context, l models.Lesson) (models.Lesson, error) {
	if l.ID == "" {
		l.ID = r.newID()
	}
	return l, r.save(ctx, store.Lessons, l)
}

func (r *Repository) SaveNotice(ctx context.Context, n models.Notice) (models.Notice, error) {
	if n.ID == "" {
		n.ID = r.newID()
	}
	if n.Attachments == nil {
		n.Attachments = []models.Attachment{}
	}
	return n, r.save(ctx, store.Notices, n)
}

func (r *Repository) SaveMessage(ctx context.Context, m models.Message) (models.Message, error) {
	if m.ID == "" {
		m.ID = r.newID()
	}
	return m, r.save(ctx, store.Messages, m)
}

func (r *Repository) save(ctx context.Context, storeName string, record any) error {
	if err := validate(record); err != nil {
		return err
	}
	_, err := r.store.Put(ctx, storeName, record)
	return err
}

// CreateSession opens a new live session for a student. Broadcasting the
// login is up to the caller.
func (r *Repository) CreateSession(ctx context.Context, studentID, teacherID string) (models.SessionRecord, error) {
	s := models.SessionRecord{
		SessionID:      r.newID(),
		StudentID:      studentID,
		TeacherID:      teacherID,
		LoginTimestamp: r.now(),
	}
	if err := validate(s); err != nil {
		return models.SessionRecord{}, err
	}
	if _, err := r.store.Add(ctx, store.Sessions, s); err != nil {
		return models.SessionRecord{}, err
	}
	return s, nil
}

func (r *Repository) SaveSession(ctx context.Context, s models.SessionRecord) error {
	return r.save(ctx, store.Sessions, s)
}

// AppendActivity records one event in a session timeline and broadcasts it.
func (r *Repository) AppendActivity(ctx context.Context, sessionID, studentID string, t models.ActivityType, payload *models.ActivityPayload) (models.ActivityRecord, error) {
	a := models.ActivityRecord{
		ID:        r.newID(),
		SessionID: sessionID,
		StudentID: studentID,
		Timestamp: r.now(),
		Type:      t,
		Payload:   payload,
	}
	if err := validate(a); err != nil {
		return models.ActivityRecord{}, err
	}
	if _, err := r.Put(ctx, store.Activity, a); err != nil {
		return models.ActivityRecord{}, err
	}
	return a, nil
}
