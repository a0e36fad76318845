package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/registro/internal/cryptox"
	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/identity"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/repository"
	"github.com/google/uuid"
)

// NormalizeEmail is applied before an address is hashed.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Restore brings back the identity persisted by an earlier run. A teacher
// identity wins over a student one and always comes back with dev mode
// off. A student identity is only restored while its session is live;
// otherwise it is discarded.
func (s *State) Restore(ctx context.Context) (Role, error) {
	t, err := s.ids.LoadTeacher(ctx)
	if err != nil {
		return RoleNone, err
	}
	if t != nil {
		t.User.IsDevMode = false
		if err := s.ids.SaveTeacher(ctx, *t); err != nil {
			return RoleNone, err
		}
		if err := s.LoginTeacher(ctx, *t, false); err != nil {
			return RoleNone, err
		}
		return RoleTeacher, nil
	}

	st, err := s.ids.LoadStudent(ctx)
	if err != nil || st == nil {
		return RoleNone, err
	}

	rec, err := s.repo.GetSessionByID(ctx, st.SessionID)
	if err != nil {
		return RoleNone, err
	}
	if rec == nil || !rec.Live() {
		s.log.Info(ctx, "discarding stale student session", "session_id", st.SessionID)
		return RoleNone, s.ids.ClearStudent(ctx)
	}

	if err := s.LoginStudent(ctx, *st, LoginOptions{}); err != nil {
		return RoleNone, err
	}
	return RoleStudent, nil
}

// LoginTeacher makes id the active identity and loads every collection the
// teacher owns. Any student identity is dropped first.
func (s *State) LoginTeacher(ctx context.Context, id identity.TeacherIdentity, persist bool) error {
	if err := s.dropStudent(ctx); err != nil {
		return err
	}

	data, err := s.repo.GetAllDataForTeacher(ctx, id.User.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.teacher = &id
	s.data = data
	s.mu.Unlock()

	if persist {
		return s.ids.SaveTeacher(ctx, id)
	}
	return nil
}

// AuthenticateTeacher checks an email and password against the stored
// digests and logs the teacher in.
func (s *State) AuthenticateTeacher(ctx context.Context, email, password string, remember bool) (models.User, error) {
	email = NormalizeEmail(email)
	u, err := s.repo.GetUserByHashedEmail(ctx, cryptox.Hash(email))
	if err != nil {
		return models.User{}, err
	}
	if u == nil || !cryptox.Matches(password, u.Password) {
		return models.User{}, ErrInvalidCredentials
	}

	if err := s.LoginTeacher(ctx, identity.TeacherIdentity{User: *u, Email: email}, remember); err != nil {
		return models.User{}, err
	}
	return *u, nil
}

// RegisterTeacher creates an account and logs it in. A taken email fails
// with store.ErrConstraint.
func (s *State) RegisterTeacher(ctx context.Context, firstName, lastName, email, password string, remember bool) (models.User, error) {
	email = NormalizeEmail(email)
	u := models.User{
		ID:        uuid.NewString(),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Email:     cryptox.Hash(email),
		Password:  cryptox.Hash(password),
	}
	if _, err := s.repo.AddUser(ctx, u); err != nil {
		return models.User{}, err
	}

	if err := s.LoginTeacher(ctx, identity.TeacherIdentity{User: u, Email: email}, remember); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// LoginStudent makes id the active identity and loads the grade set of the
// student's teacher. Any teacher identity is dropped first.
func (s *State) LoginStudent(ctx context.Context, id identity.StudentIdentity, opts LoginOptions) error {
	if err := s.dropTeacher(ctx); err != nil {
		return err
	}

	grades, err := s.repo.GetGradesForTeacher(ctx, id.TeacherID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.student = &id
	s.grades = grades
	s.mu.Unlock()

	if opts.Persist {
		if err := s.ids.SaveStudent(ctx, id); err != nil {
			return err
		}
	}

	if opts.Broadcast {
		rec, err := s.repo.GetSessionByID(ctx, id.SessionID)
		if err != nil {
			return err
		}
		if rec != nil {
			s.publish(ctx, eventbus.LoginEvent(*rec))
		}
	}
	return nil
}

// AccessCodeLogin signs a student in with the code their teacher gave
// them: it opens a new session, logs a LOGIN activity and broadcasts LOGIN.
func (s *State) AccessCodeLogin(ctx context.Context, code string, remember bool) (identity.StudentIdentity, error) {
	m, err := s.repo.GetStudentByAccessCode(ctx, code)
	if err != nil {
		return identity.StudentIdentity{}, err
	}
	if m == nil {
		return identity.StudentIdentity{}, ErrAccessCodeNotFound
	}

	rec, err := s.repo.CreateSession(ctx, m.Student.ID, m.TeacherID)
	if err != nil {
		return identity.StudentIdentity{}, fmt.Errorf("failed to open session: %w", err)
	}
	if _, err := s.repo.AppendActivity(ctx, rec.SessionID, m.Student.ID, models.ActivityLogin, nil); err != nil {
		return identity.StudentIdentity{}, err
	}

	id := identity.StudentIdentity{
		Student:   m.Student,
		TeacherID: m.TeacherID,
		SessionID: rec.SessionID,
		Email:     m.Student.Contact.Email,
	}
	if err := s.LoginStudent(ctx, id, LoginOptions{Persist: remember, Broadcast: true}); err != nil {
		return identity.StudentIdentity{}, err
	}
	return id, nil
}

// LogoutStudent closes the active student session: it stamps the logout
// time, broadcasts LOGOUT and logs a LOGOUT activity. The local identity is
// cleared even when one of those steps fails.
func (s *State) LogoutStudent(ctx context.Context) (err error) {
	s.mu.RLock()
	st := s.student
	s.mu.RUnlock()
	if st == nil {
		return ErrNoActiveSession
	}

	defer func() {
		err = errors.Join(err, s.dropStudent(ctx))
	}()

	rec, err := s.repo.GetSessionByID(ctx, st.SessionID)
	if err != nil {
		return err
	}
	if rec == nil || !rec.Live() {
		return nil
	}

	out := s.now()
	rec.LogoutTimestamp = &out
	if err := s.repo.SaveSession(ctx, *rec); err != nil {
		return err
	}
	s.publish(ctx, eventbus.LogoutEvent(*rec))

	_, err = s.repo.AppendActivity(ctx, rec.SessionID, st.Student.ID, models.ActivityLogout, nil)
	return err
}

// LogoutTeacher forgets the teacher and everything loaded for them.
// Student sessions in the store are left alone.
func (s *State) LogoutTeacher(ctx context.Context) error {
	return s.dropTeacher(ctx)
}

func (s *State) dropTeacher(ctx context.Context) error {
	s.mu.Lock()
	s.teacher = nil
	s.data = repository.TeacherData{}
	s.mu.Unlock()
	return s.ids.ClearTeacher(ctx)
}

func (s *State) dropStudent(ctx context.Context) error {
	s.mu.Lock()
	s.student = nil
	s.grades = nil
	s.mu.Unlock()
	return s.ids.ClearStudent(ctx)
}

// RecordView logs that the active student opened one of their pages.
func (s *State) RecordView(ctx context.Context, t models.ActivityType) error {
	if t != models.ActivityViewInfo && t != models.ActivityViewResults {
		return fmt.Errorf("%w: %s is not a view", repository.ErrInvalidRecord, t)
	}
	st := s.Student()
	if st == nil {
		return ErrNoActiveSession
	}
	_, err := s.repo.AppendActivity(ctx, st.SessionID, st.Student.ID, t, nil)
	return err
}

// UpdateProfile saves the active student's own profile edit and keeps the
// tab and the persisted snapshot in step.
func (s *State) UpdateProfile(ctx context.Context, p repository.StudentProfile) (models.Student, error) {
	st := s.Student()
	if st == nil {
		return models.Student{}, ErrNoActiveSession
	}

	updated, err := s.repo.UpdateStudentProfile(ctx, st.Student.ID, st.SessionID, p)
	if err != nil {
		return models.Student{}, err
	}
	if err := s.applyStudent(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// Reload re-reads the teacher's collections, e.g. after a local write.
func (s *State) Reload(ctx context.Context) error {
	t := s.Teacher()
	if t == nil {
		return ErrNotTeacher
	}
	data, err := s.repo.GetAllDataForTeacher(ctx, t.User.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.teacher != nil && s.teacher.User.ID == t.User.ID {
		s.data = data
	}
	s.mu.Unlock()
	return nil
}
