// Package models defines the records kept in the local register: teachers,
// classes, students, timetable, notices, grades, student sessions and their
// activity log, biometric credentials and UI settings.
//
// JSON field names are the ones stored in the document collections, so
// renaming a tag is a data migration.
package models

import "time"

// User is a teacher account. Email and Password hold cryptox digests.
type User struct {
	ID          string `json:"id" validate:"required"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	Email       string `json:"email" validate:"required,len=64,hexadecimal"`
	Password    string `json:"password" validate:"required,len=64,hexadecimal"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	// IsDevMode marks a seeded demo account; it never survives a reload.
	IsDevMode bool `json:"isDevMode"`
}

// FullName returns "First Last".
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

type ClassInfo struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	TeacherID string `json:"teacherId" validate:"required"`
}

type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Address string `json:"address,omitempty"`
}

type Parent struct {
	Name    string  `json:"name" validate:"required"`
	Contact Contact `json:"contact"`
}

// Student belongs to one class of one teacher. ClassName is a copy of the
// class name and is rewritten whenever the class is renamed.
type Student struct {
	ID         string   `json:"id" validate:"required"`
	Name       string   `json:"name" validate:"required"`
	Age        int      `json:"age" validate:"gte=0,lte=120"`
	ClassID    string   `json:"classId" validate:"required"`
	ClassName  string   `json:"className"`
	AvatarURL  string   `json:"avatarUrl,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Contact    Contact  `json:"contact"`
	Parents    []Parent `json:"parents" validate:"dive"`
	AccessCode string   `json:"accessCode,omitempty"`
	TeacherID  string   `json:"teacherId" validate:"required"`
}

type LessonType string

const (
	LessonLecture  LessonType = "Lezione"
	LessonLab      LessonType = "Laboratorio"
	LessonTest     LessonType = "Verifica"
	LessonRemedial LessonType = "Recupero"
)

type Lesson struct {
	ID        string     `json:"id" validate:"required"`
	Subject   string     `json:"subject" validate:"required"`
	Time      string     `json:"time"`
	ClassName string     `json:"className"`
	Type      LessonType `json:"type" validate:"oneof=Lezione Laboratorio Verifica Recupero"`
	TeacherID string     `json:"teacherId" validate:"required"`
}

type NoticeType string

const (
	NoticeGeneral   NoticeType = "Generale"
	NoticeImportant NoticeType = "Importante"
	NoticeUrgent    NoticeType = "Urgente"
	NoticeEvent     NoticeType = "Evento"
)

type Attachment struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
	Type string `json:"type"`
}

type Notice struct {
	ID          string       `json:"id" validate:"required"`
	Title       string       `json:"title" validate:"required"`
	Date        string       `json:"date"`
	Description string       `json:"description,omitempty"`
	Type        NoticeType   `json:"type" validate:"oneof=Generale Importante Urgente Evento"`
	Attachments []Attachment `json:"attachments" validate:"dive"`
	TeacherID   string       `json:"teacherId" validate:"required"`
}

type Message struct {
	ID              string `json:"id" validate:"required"`
	ClassName       string `json:"className"`
	ClassID         string `json:"classId"`
	LastMessageTime string `json:"lastMessageTime"`
	AvatarURL       string `json:"avatarUrl,omitempty"`
	TeacherID       string `json:"teacherId" validate:"required"`
}

type GradeType string

const (
	GradeHomework GradeType = "Compito"
	GradeExam     GradeType = "Esame"
)

type GradeItem struct {
	ID        string    `json:"id" validate:"required"`
	StudentID string    `json:"studentId" validate:"required"`
	Subject   string    `json:"subject" validate:"required"`
	Type      GradeType `json:"type" validate:"oneof=Compito Esame"`
	Date      string    `json:"date"`
	Grade     float64   `json:"grade" validate:"gte=1,lte=10"`
	TeacherID string    `json:"teacherId" validate:"required"`
}

// SessionRecord is one student's login-to-logout window. A nil
// LogoutTimestamp means the session is still live.
type SessionRecord struct {
	SessionID       string     `json:"sessionId" validate:"required"`
	StudentID       string     `json:"studentId" validate:"required"`
	TeacherID       string     `json:"teacherId" validate:"required"`
	LoginTimestamp  time.Time  `json:"loginTimestamp"`
	LogoutTimestamp *time.Time `json:"logoutTimestamp,omitempty"`
}

// Live reports whether the session has not been closed.
func (s SessionRecord) Live() bool {
	return s.LogoutTimestamp == nil
}

type ActivityType string

const (
	ActivityLogin        ActivityType = "LOGIN"
	ActivityLogout       ActivityType = "LOGOUT"
	ActivityViewInfo     ActivityType = "VIEW_INFO"
	ActivityViewResults  ActivityType = "VIEW_RESULTS"
	ActivityAvatarUpdate ActivityType = "AVATAR_UPDATE"
)

type ActivityPayload struct {
	OldValue string `json:"oldValue,omitempty"`
	NewValue string `json:"newValue,omitempty"`
}

type ActivityRecord struct {
	ID        string           `json:"id" validate:"required"`
	SessionID string           `json:"sessionId" validate:"required"`
	StudentID string           `json:"studentId" validate:"required"`
	Timestamp time.Time        `json:"timestamp"`
	Type      ActivityType     `json:"type" validate:"oneof=LOGIN LOGOUT VIEW_INFO VIEW_RESULTS AVATAR_UPDATE"`
	Payload   *ActivityPayload `json:"payload,omitempty"`
}

type WebAuthnCredential struct {
	CredentialID string    `json:"credentialId" validate:"required"`
	UserID       string    `json:"userId" validate:"required"`
	PublicKey    string    `json:"publicKey" validate:"required"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Setting is a UI preference, not tied to a user.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
