// Package session holds the per-tab application state: who is logged in,
// the records that identity can see, and how events from other tabs patch
// them.
//
// A tab is either signed in as a teacher, as a student, or not at all; the
// two identities exclude each other. State is safe for concurrent use, as
// bus handlers run on their own goroutines.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/identity"
	"github.com/dmitrijs2005/registro/internal/logging"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/repository"
)

type Role int

const (
	RoleNone Role = iota
	RoleTeacher
	RoleStudent
)

func (r Role) String() string {
	switch r {
	case RoleTeacher:
		return "teacher"
	case RoleStudent:
		return "student"
	default:
		return "anonymous"
	}
}

// LoginOptions controls the side effects of a student login.
type LoginOptions struct {
	// Persist saves the identity for the next Restore.
	Persist bool
	// Broadcast publishes LOGIN for the session. Replays from storage do
	// not broadcast.
	Broadcast bool
}

type State struct {
	repo *repository.Repository
	ids  identity.Storage
	pub  eventbus.Publisher
	log  logging.Logger
	now  func() time.Time

	mu      sync.RWMutex
	teacher *identity.TeacherIdentity
	student *identity.StudentIdentity
	data    repository.TeacherData
	grades  []models.GradeItem
}

// New builds the state of one tab. pub is the tab's own channel; it may be
// nil when nothing should be broadcast.
func New(repo *repository.Repository, ids identity.Storage, pub eventbus.Publisher, log logging.Logger) *State {
	return &State{
		repo: repo,
		ids:  ids,
		pub:  pub,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *State) publish(ctx context.Context, e eventbus.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, e); err != nil {
		s.log.Warn(ctx, "broadcast failed", "type", e.Type, "error", err)
	}
}

// Role reports which identity is active.
func (s *State) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.teacher != nil:
		return RoleTeacher
	case s.student != nil:
		return RoleStudent
	default:
		return RoleNone
	}
}

// Teacher returns a copy of the active teacher identity, or nil.
func (s *State) Teacher() *identity.TeacherIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.teacher == nil {
		return nil
	}
	t := *s.teacher
	return &t
}

// Student returns a copy of the active student identity, or nil.
func (s *State) Student() *identity.StudentIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.student == nil {
		return nil
	}
	st := *s.student
	return &st
}

// Data returns a copy of the teacher collections held by the tab.
func (s *State) Data() repository.TeacherData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return repository.TeacherData{
		Classes:  slices.Clone(s.data.Classes),
		Students: slices.Clone(s.data.Students),
		Lessons:  slices.Clone(s.data.Lessons),
		Notices:  slices.Clone(s.data.Notices),
		Messages: slices.Clone(s.data.Messages),
		Grades:   slices.Clone(s.data.Grades),
	}
}

// StudentGrades returns the active student's own grades.
func (s *State) StudentGrades() []models.GradeItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.student == nil {
		return nil
	}
	out := make([]models.GradeItem, 0)
	for _, g := range s.grades {
		if g.StudentID == s.student.Student.ID {
			out = append(out, g)
		}
	}
	return out
}

// Listen applies every event received on ch until the returned function is
// called.
func (s *State) Listen(ch eventbus.Channel) (func(), error) {
	return ch.Subscribe(func(e eventbus.Event) {
		ctx := context.Background()
		if err := s.Apply(ctx, e); err != nil {
			s.log.Warn(ctx, "failed to apply event", "type", e.Type, "error", err)
		}
	})
}

// Apply patches the state with an event from another tab. Events that do
// not concern the active identity are ignored.
func (s *State) Apply(ctx context.Context, e eventbus.Event) error {
	switch e.Type {
	case eventbus.StudentUpdate:
		if e.Student != nil {
			return s.applyStudent(ctx, *e.Student)
		}
	case eventbus.GradesUpdate:
		return s.applyGrades(ctx, e.StudentID)
	}
	return nil
}

func (s *State) applyStudent(ctx context.Context, st models.Student) error {
	s.mu.Lock()
	switch {
	case s.teacher != nil:
		if st.TeacherID != s.teacher.User.ID {
			s.mu.Unlock()
			return nil
		}
		i := slices.IndexFunc(s.data.Students, func(x models.Student) bool { return x.ID == st.ID })
		if i >= 0 {
			s.data.Students[i] = st
		} else {
			s.data.Students = append(s.data.Students, st)
		}
		s.mu.Unlock()
		return nil

	case s.student != nil:
		if st.ID != s.student.Student.ID {
			s.mu.Unlock()
			return nil
		}
		s.student.Student = st
		current := *s.student
		s.mu.Unlock()
		return s.patchPersistedStudent(ctx, current)
	}
	s.mu.Unlock()
	return nil
}

// patchPersistedStudent rewrites the stored snapshot if it belongs to the
// same session.
func (s *State) patchPersistedStudent(ctx context.Context, current identity.StudentIdentity) error {
	saved, err := s.ids.LoadStudent(ctx)
	if err != nil || saved == nil || saved.SessionID != current.SessionID {
		return err
	}
	saved.Student = current.Student
	return s.ids.SaveStudent(ctx, *saved)
}

func (s *State) applyGrades(ctx context.Context, studentID string) error {
	s.mu.RLock()
	st := s.student
	var teacherID string
	if st != nil {
		teacherID = st.TeacherID
	}
	match := st != nil && st.Student.ID == studentID
	s.mu.RUnlock()
	if !match {
		return nil
	}

	grades, err := s.repo.GetGradesForTeacher(ctx, teacherID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.student != nil && s.student.Student.ID == studentID {
		s.grades = grades
	}
	s.mu.Unlock()
	return nil
}
