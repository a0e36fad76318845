package repository

import (
	"context"
	"slices"
	"strings"

	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/store"
	"golang.org/x/sync/errgroup"
)

// TeacherData is everything a teacher's tab shows.
type TeacherData struct {
	Classes  []models.ClassInfo
	Students []models.Student
	Lessons  []models.Lesson
	Notices  []models.Notice
	Messages []models.Message
	Grades   []models.GradeItem
}

// StudentMatch is the result of an access-code lookup.
type StudentMatch struct {
	Student   models.Student
	TeacherID string
}

func scan[T any](ctx context.Context, h *store.Handle, storeName, teacherID string, dst *[]T) func() error {
	return func() error {
		v, err := store.AllByIndex[T](ctx, h, storeName, store.ByTeacher, teacherID)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// GetAllDataForTeacher runs the six per-teacher scans concurrently. If any
// of them fails the whole call fails; a partial aggregate is never returned.
func (r *Repository) GetAllDataForTeacher(ctx context.Context, teacherID string) (TeacherData, error) {
	var d TeacherData
	h := r.store.Handle()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(scan(gctx, h, store.Classes, teacherID, &d.Classes))
	g.Go(scan(gctx, h, store.Students, teacherID, &d.Students))
	g.Go(scan(gctx, h, store.Lessons, teacherID, &d.Lessons))
	g.Go(scan(gctx, h, store.Notices, teacherID, &d.Notices))
	g.Go(scan(gctx, h, store.Messages, teacherID, &d.Messages))
	g.Go(scan(gctx, h, store.Grades, teacherID, &d.Grades))

	if err := g.Wait(); err != nil {
		return TeacherData{}, err
	}
	return d, nil
}

func (r *Repository) GetGradesForTeacher(ctx context.Context, teacherID string) ([]models.GradeItem, error) {
	return store.AllByIndex[models.GradeItem](ctx, r.store.Handle(), store.Grades, store.ByTeacher, teacherID)
}

// GetGradesForStudent returns one student's grades, oldest first.
func (r *Repository) GetGradesForStudent(ctx context.Context, studentID string) ([]models.GradeItem, error) {
	grades, err := store.AllByIndex[models.GradeItem](ctx, r.store.Handle(), store.Grades, store.ByStudent, studentID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(grades, func(a, b models.GradeItem) int { return strings.Compare(a.Date, b.Date) })
	return grades, nil
}

// GetSessionsForTeacher returns the teacher's student sessions, newest first.
func (r *Repository) GetSessionsForTeacher(ctx context.Context, teacherID string) ([]models.SessionRecord, error) {
	sessions, err := store.AllByIndex[models.SessionRecord](ctx, r.store.Handle(), store.Sessions, store.ByTeacher, teacherID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(sessions, func(a, b models.SessionRecord) int {
		return b.LoginTimestamp.Compare(a.LoginTimestamp)
	})
	return sessions, nil
}

// GetActivityForSession returns a session's timeline, oldest first.
func (r *Repository) GetActivityForSession(ctx context.Context, sessionID string) ([]models.ActivityRecord, error) {
	activity, err := store.AllByIndex[models.ActivityRecord](ctx, r.store.Handle(), store.Activity, store.BySession, sessionID)
	if err != nil {
		return nil, err
	}
	SortActivity(activity)
	return activity, nil
}

// SortActivity orders a timeline by timestamp ascending, keeping the
// relative order of records with equal timestamps.
func SortActivity(a []models.ActivityRecord) {
	slices.SortStableFunc(a, func(x, y models.ActivityRecord) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
}

func (r *Repository) GetSessionByID(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	return getOne[models.SessionRecord](ctx, r.store, store.Sessions, sessionID)
}

func (r *Repository) GetStudentByID(ctx context.Context, id string) (*models.Student, error) {
	return getOne[models.Student](ctx, r.store, store.Students, id)
}

func (r *Repository) GetClassByID(ctx context.Context, id string) (*models.ClassInfo, error) {
	return getOne[models.ClassInfo](ctx, r.store, store.Classes, id)
}

// NormalizeAccessCode is the form access codes are stored and looked up in.
func NormalizeAccessCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GetStudentByAccessCode returns the first student holding code, compared
// after trimming and upper-casing, or nil when none does.
func (r *Repository) GetStudentByAccessCode(ctx context.Context, code string) (*StudentMatch, error) {
	code = NormalizeAccessCode(code)
	if code == "" {
		return nil, nil
	}

	students, err := store.AllByIndex[models.Student](ctx, r.store.Handle(), store.Students, store.ByAccessCode, code)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, nil
	}
	return &StudentMatch{Student: students[0], TeacherID: students[0].TeacherID}, nil
}
