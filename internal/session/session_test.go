package session

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/registro/internal/cryptox"
	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/identity"
	"github.com/dmitrijs2005/registro/internal/logging"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/repository"
	"github.com/dmitrijs2005/registro/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	store  *store.Store
	broker *eventbus.MemoryBroker
	ids    *identity.SQLiteStorage
	// admin writes fixtures without broadcasting
	admin *repository.Repository
}

type tab struct {
	state *State
	repo  *repository.Repository
	ch    eventbus.Channel
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return &env{
		store:  s,
		broker: eventbus.NewMemoryBroker(),
		ids:    identity.NewSQLiteStorage(s.DB(), ""),
		admin:  repository.New(s, nil, logging.Discard()),
	}
}

func (e *env) openTab(t *testing.T) *tab {
	t.Helper()
	return e.openNamedTab(t, e.ids)
}

// openNamedTab opens a tab persisting its identity in ids.
func (e *env) openNamedTab(t *testing.T, ids *identity.SQLiteStorage) *tab {
	t.Helper()
	ch, err := e.broker.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	repo := repository.New(e.store, ch, logging.Discard())
	st := New(repo, ids, ch, logging.Discard())
	unsub, err := st.Listen(ch)
	require.NoError(t, err)
	t.Cleanup(unsub)

	return &tab{state: st, repo: repo, ch: ch}
}

func (e *env) teacher(t *testing.T, id, email string) models.User {
	t.Helper()
	u := models.User{ID: id, FirstName: "Anna", LastName: "Bianchi", Email: cryptox.Hash(email), Password: cryptox.Hash("segreto")}
	_, err := e.admin.AddUser(context.Background(), u)
	require.NoError(t, err)
	return u
}

func (e *env) student(t *testing.T, teacherID, name, code string) models.Student {
	t.Helper()
	ctx := context.Background()
	c, err := e.admin.SaveClass(ctx, models.ClassInfo{Name: "1" + name, TeacherID: teacherID})
	require.NoError(t, err)
	s, err := e.admin.SaveStudent(ctx, models.Student{Name: name, Age: 14, ClassID: c.ID, TeacherID: teacherID, AccessCode: code})
	require.NoError(t, err)
	return s
}

func TestRestore_StudentOnlyWhileSessionLive(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.teacher(t, "t1", "anna@scuola.it")
	s := e.student(t, "t1", "Luca", "LUCA-1")

	live, err := e.admin.CreateSession(ctx, s.ID, "t1")
	require.NoError(t, err)
	require.NoError(t, e.ids.SaveStudent(ctx, identity.StudentIdentity{Student: s, TeacherID: "t1", SessionID: live.SessionID}))

	tb := e.openTab(t)
	role, err := tb.state.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, role)
	require.NotNil(t, tb.state.Student())
	assert.Equal(t, live.SessionID, tb.state.Student().SessionID)

	out := time.Now().UTC()
	live.LogoutTimestamp = &out
	require.NoError(t, e.admin.SaveSession(ctx, live))

	again := e.openTab(t)
	role, err = again.state.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)
	assert.Nil(t, again.state.Student())

	persisted, err := e.ids.LoadStudent(ctx)
	require.NoError(t, err)
	assert.Nil(t, persisted, "stale identity is discarded")
}

func TestRestore_MissingSessionDiscarded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.ids.SaveStudent(ctx, identity.StudentIdentity{Student: models.Student{ID: "s1"}, TeacherID: "t1", SessionID: "gone"}))

	role, err := e.openTab(t).state.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)

	persisted, err := e.ids.LoadStudent(ctx)
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestRestore_TeacherDevModeReset(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.teacher(t, "t1", "anna@scuola.it")
	e.student(t, "t1", "Luca", "")

	u.IsDevMode = true
	require.NoError(t, e.ids.SaveTeacher(ctx, identity.TeacherIdentity{User: u, Email: "anna@scuola.it"}))

	tb := e.openTab(t)
	role, err := tb.state.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleTeacher, role)

	got := tb.state.Teacher()
	require.NotNil(t, got)
	assert.False(t, got.User.IsDevMode)
	assert.Equal(t, "anna@scuola.it", got.Email)
	assert.Len(t, tb.state.Data().Students, 1)

	persisted, err := e.ids.LoadTeacher(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.False(t, persisted.User.IsDevMode, "correction is persisted")
}

func TestRestore_Nothing(t *testing.T) {
	e := newEnv(t)
	role, err := e.openTab(t).state.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)
}

func TestStudentUpdate_Scoping(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	t1 := e.teacher(t, "t1", "t1@scuola.it")
	t2 := e.teacher(t, "t2", "t2@scuola.it")
	s1 := e.student(t, "t1", "Luca", "S1-CODE")
	e.student(t, "t1", "Sara", "S2-CODE")

	tabT1 := e.openTab(t)
	require.NoError(t, tabT1.state.LoginTeacher(ctx, identity.TeacherIdentity{User: t1}, false))
	tabT2 := e.openTab(t)
	require.NoError(t, tabT2.state.LoginTeacher(ctx, identity.TeacherIdentity{User: t2}, false))
	tabS2 := e.openTab(t)
	_, err := tabS2.state.AccessCodeLogin(ctx, "s2-code", false)
	require.NoError(t, err)

	beforeT2 := tabT2.state.Data()
	beforeS2 := tabS2.state.Student()

	editor := e.openTab(t)
	s1.AvatarURL = "luca.png"
	_, err = editor.repo.SaveStudent(ctx, s1)
	require.NoError(t, err)

	var patched *models.Student
	for _, st := range tabT1.state.Data().Students {
		if st.ID == s1.ID {
			patched = &st
		}
	}
	require.NotNil(t, patched)
	assert.Equal(t, "luca.png", patched.AvatarURL)

	assert.Equal(t, beforeT2, tabT2.state.Data())
	assert.Equal(t, beforeS2, tabS2.state.Student())
}

func TestStudentUpdate_PatchesStudentTabAndSnapshot(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.teacher(t, "t1", "t1@scuola.it")
	s := e.student(t, "t1", "Luca", "LUCA-1")

	studentTab := e.openTab(t)
	_, err := studentTab.state.AccessCodeLogin(ctx, "luca-1", true)
	require.NoError(t, err)

	teacherTab := e.openTab(t)
	s.Name = "Luca Verdi"
	_, err = teacherTab.repo.SaveStudent(ctx, s)
	require.NoError(t, err)

	assert.Equal(t, "Luca Verdi", studentTab.state.Student().Student.Name)

	persisted, err := e.ids.LoadStudent(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "Luca Verdi", persisted.Student.Name)
}

func TestGradesUpdate_StudentRefetches(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.teacher(t, "t1", "t1@scuola.it")
	s := e.student(t, "t1", "Luca", "LUCA-1")
	other := e.student(t, "t1", "Sara", "SARA-1")

	studentTab := e.openTab(t)
	_, err := studentTab.state.AccessCodeLogin(ctx, "LUCA-1", false)
	require.NoError(t, err)
	assert.Empty(t, studentTab.state.StudentGrades())

	teacherTab := e.openTab(t)
	_, err = teacherTab.repo.SaveGrade(ctx, models.GradeItem{StudentID: other.ID, Subject: "Storia", Type: models.GradeExam, Grade: 7, TeacherID: "t1"})
	require.NoError(t, err)
	assert.Empty(t, studentTab.state.StudentGrades(), "another student's grade is not refetched")

	_, err = teacherTab.repo.SaveGrade(ctx, models.GradeItem{StudentID: s.ID, Subject: "Storia", Type: models.GradeExam, Grade: 8, TeacherID: "t1"})
	require.NoError(t, err)

	grades := studentTab.state.StudentGrades()
	require.Len(t, grades, 1)
	assert.Equal(t, 8.0, grades[0].Grade)
}

func TestAccessCodeLogin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.teacher(t, "t1", "t1@scuola.it")
	s := e.student(t, "t1", "Luca", "LUCA-1")

	tb := e.openTab(t)
	_, err := tb.state.AccessCodeLogin(ctx, "nope", false)
	require.ErrorIs(t, err, ErrAccessCodeNotFound)
	assert.Equal(t, RoleNone, tb.state.Role())

	id, err := tb.state.AccessCodeLogin(ctx, " luca-1 ", true)
	require.NoError(t, err)
	assert.Equal(t, s.ID, id.Student.ID)
	assert.Equal(t, "t1", id.TeacherID)
	assert.Equal(t, RoleStudent, tb.state.Role())

	rec, err := tb.repo.GetSessionByID(ctx, id.SessionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Live())

	act, err := tb.repo.GetActivityForSession(ctx, id.SessionID)
	require.NoError(t, err)
	require.Len(t, act, 1)
	assert.Equal(t, models.ActivityLogin, act[0].Type)

	var types []eventbus.Type
	for _, ev := range e.broker.Published() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []eventbus.Type{eventbus.NewActivity, eventbus.Login}, types)

	persisted, err := e.ids.LoadStudent(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, id.SessionID, persisted.SessionID)
}

func TestRestore_TabsKeepTheirOwnIdentity(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.teacher(t, "t1", "anna@scuola.it")
	e.student(t, "t1", "Luca", "LUCA-1")

	teacherIDs := identity.NewSQLiteStorage(e.store.DB(), "registro")
	studentIDs := identity.NewSQLiteStorage(e.store.DB(), "luca")

	teacherTab := e.openNamedTab(t, teacherIDs)
	_, err := teacherTab.state.AuthenticateTeacher(ctx, "anna@scuola.it", "segreto", true)
	require.NoError(t, err)

	studentTab := e.openNamedTab(t, studentIDs)
	_, err = studentTab.state.AccessCodeLogin(ctx, "LUCA-1", true)
	require.NoError(t, err)

	role, err := e.openNamedTab(t, teacherIDs).state.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleTeacher, role, "student login elsewhere leaves the teacher tab alone")

	_, err = teacherTab.state.AuthenticateTeacher(ctx, "anna@scuola.it", "segreto", true)
	require.NoError(t, err)

	role, err = e.openNamedTab(t, studentIDs).state.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, role, "teacher login elsewhere leaves the student tab alone")
}

func TestLogoutStudent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.teacher(t, "t1", "t1@scuola.it")
	e.student(t, "t1", "Luca", "LUCA-1")

	tb := e.openTab(t)
	require.ErrorIs(t, tb.state.LogoutStudent(ctx), ErrNoActiveSession)

	id, err := tb.state.AccessCodeLogin(ctx, "LUCA-1", true)
	require.NoError(t, err)
	e.broker.Reset()

	require.NoError(t, tb.state.LogoutStudent(ctx))
	assert.Equal(t, RoleNone, tb.state.Role())

	rec, err := tb.repo.GetSessionByID(ctx, id.SessionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Live())

	events := e.broker.Published()
	require.Len(t, events, 2)
	assert.Equal(t, eventbus.Logout, events[0].Type)
	assert.NotNil(t, events[0].Session.LogoutTimestamp)
	assert.Equal(t, eventbus.NewActivity, events[1].Type)
	assert.Equal(t, models.ActivityLogout, events[1].Activity.Type)

	persisted, err := e.ids.LoadStudent(ctx)
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestLogoutStudent_ClosedSessionStillClearsLocal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.teacher(t, "t1", "t1@scuola.it")
	e.student(t, "t1", "Luca", "LUCA-1")

	tb := e.openTab(t)
	id, err := tb.state.AccessCodeLogin(ctx, "LUCA-1", true)
	require.NoError(t, err)
	require.NoError(t, e.admin.DeleteSessionsAndActivities(ctx, []string{id.SessionID}))
	e.broker.Reset()

	require.NoError(t, tb.state.LogoutStudent(ctx))
	assert.Equal(t, RoleNone, tb.state.Role())
	assert.Empty(t, e.broker.Published())
}

func TestTeacherAuthAndExclusivity(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.student(t, "t0", "Luca", "LUCA-1")

	tb := e.openTab(t)
	u, err := tb.state.RegisterTeacher(ctx, "Anna", "Bianchi", " Anna@Scuola.it ", "segreto", false)
	require.NoError(t, err)
	assert.Equal(t, cryptox.Hash("anna@scuola.it"), u.Email)

	_, err = tb.state.RegisterTeacher(ctx, "Altra", "Persona", "anna@scuola.it", "x", false)
	require.ErrorIs(t, err, store.ErrConstraint)

	require.NoError(t, tb.state.LogoutTeacher(ctx))
	assert.Equal(t, RoleNone, tb.state.Role())
	assert.Empty(t, tb.state.Data().Classes)

	_, err = tb.state.AuthenticateTeacher(ctx, "anna@scuola.it", "sbagliata", false)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = tb.state.AuthenticateTeacher(ctx, "nessuno@scuola.it", "segreto", false)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = tb.state.AccessCodeLogin(ctx, "LUCA-1", true)
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, tb.state.Role())

	got, err := tb.state.AuthenticateTeacher(ctx, "ANNA@scuola.it", "segreto", true)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, RoleTeacher, tb.state.Role())
	assert.Nil(t, tb.state.Student())

	persisted, err := e.ids.LoadStudent(ctx)
	require.NoError(t, err)
	assert.Nil(t, persisted, "student identity dropped on teacher login")
	pt, err := e.ids.LoadTeacher(ctx)
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.Equal(t, "anna@scuola.it", pt.Email)
}

func TestRecordViewAndProfile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.teacher(t, "t1", "t1@scuola.it")
	e.student(t, "t1", "Luca", "LUCA-1")

	tb := e.openTab(t)
	require.ErrorIs(t, tb.state.RecordView(ctx, models.ActivityViewInfo), ErrNoActiveSession)

	id, err := tb.state.AccessCodeLogin(ctx, "LUCA-1", true)
	require.NoError(t, err)

	require.NoError(t, tb.state.RecordView(ctx, models.ActivityViewResults))
	require.ErrorIs(t, tb.state.RecordView(ctx, models.ActivityLogout), repository.ErrInvalidRecord)

	updated, err := tb.state.UpdateProfile(ctx, repository.StudentProfile{AvatarURL: "me.png"})
	require.NoError(t, err)
	assert.Equal(t, "me.png", updated.AvatarURL)
	assert.Equal(t, "me.png", tb.state.Student().Student.AvatarURL)

	persisted, err := e.ids.LoadStudent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "me.png", persisted.Student.AvatarURL)

	act, err := tb.repo.GetActivityForSession(ctx, id.SessionID)
	require.NoError(t, err)
	var types []models.ActivityType
	for _, a := range act {
		types = append(types, a.Type)
	}
	assert.Equal(t, []models.ActivityType{models.ActivityLogin, models.ActivityViewResults, models.ActivityAvatarUpdate}, types)
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.teacher(t, "t1", "t1@scuola.it")

	tb := e.openTab(t)
	require.ErrorIs(t, tb.state.Reload(ctx), ErrNotTeacher)

	require.NoError(t, tb.state.LoginTeacher(ctx, identity.TeacherIdentity{User: u}, false))
	_, err := tb.repo.SaveLesson(ctx, models.Lesson{Subject: "Arte", Type: models.LessonLecture, TeacherID: "t1"})
	require.NoError(t, err)
	assert.Empty(t, tb.state.Data().Lessons)

	require.NoError(t, tb.state.Reload(ctx))
	assert.Len(t, tb.state.Data().Lessons, 1)
}
