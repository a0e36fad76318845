package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const digest = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func TestValidate_Grade(t *testing.T) {
	g := GradeItem{ID: "g1", StudentID: "s1", Subject: "Matematica", Type: GradeExam, Date: "2024-03-01", Grade: 7.5, TeacherID: "t1"}
	require.NoError(t, Validate(g))

	tooLow := g
	tooLow.Grade = 0.5
	require.Error(t, Validate(tooLow))

	tooHigh := g
	tooHigh.Grade = 10.5
	require.Error(t, Validate(tooHigh))

	badType := g
	badType.Type = "Interrogazione"
	err := Validate(badType)
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Type", verrs[0].Field())
}

func TestValidate_User(t *testing.T) {
	u := User{ID: "t1", FirstName: "Anna", LastName: "Bianchi", Email: digest, Password: digest}
	require.NoError(t, Validate(u))

	u.Email = "anna@scuola.it"
	require.Error(t, Validate(u), "plaintext email must not be stored")
}

func TestValidate_StudentParents(t *testing.T) {
	s := Student{ID: "s1", Name: "Luca", Age: 14, ClassID: "c1", TeacherID: "t1",
		Parents: []Parent{{Name: "Paola", Contact: Contact{Email: "paola@example.com"}}}}
	require.NoError(t, Validate(s))

	s.Parents = append(s.Parents, Parent{Name: ""})
	require.Error(t, Validate(s))
}

func TestValidate_NoticeAndLessonEnums(t *testing.T) {
	n := Notice{ID: "n1", Title: "Gita", Type: NoticeEvent, TeacherID: "t1",
		Attachments: []Attachment{{Name: "modulo.pdf", URL: "https://example.com/m.pdf", Type: "application/pdf"}}}
	require.NoError(t, Validate(n))
	n.Type = "Spam"
	require.Error(t, Validate(n))

	l := Lesson{ID: "l1", Subject: "Fisica", Type: LessonLab, TeacherID: "t1"}
	require.NoError(t, Validate(l))
	l.Type = ""
	require.Error(t, Validate(l))
}

func TestSessionRecord_LiveAndJSON(t *testing.T) {
	login := time.Date(2024, 9, 12, 8, 0, 0, 0, time.UTC)
	s := SessionRecord{SessionID: "x", StudentID: "s1", TeacherID: "t1", LoginTimestamp: login}
	assert.True(t, s.Live())

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "logoutTimestamp")

	out := login.Add(time.Hour)
	s.LogoutTimestamp = &out
	assert.False(t, s.Live())

	b, err = json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"logoutTimestamp":"2024-09-12T09:00:00Z"`)
}

func TestUser_FullName(t *testing.T) {
	assert.Equal(t, "Anna Bianchi", User{FirstName: "Anna", LastName: "Bianchi"}.FullName())
}
