// Package eventbus propagates store mutations to the other open tabs of the
// register. A tab opens a Channel on a Broker; everything published on it is
// delivered to every other Channel with the same name, never back to the
// publisher itself.
//
// Delivery is best effort and unordered: receivers treat each event as an
// independent patch and re-read the store where the payload is not enough.
package eventbus

import (
	"github.com/dmitrijs2005/registro/internal/models"
)

// DefaultChannelName is shared by every publisher and subscriber unless
// configured otherwise.
const DefaultChannelName = "registro-elettronico-sync"

type Type string

const (
	// Login carries the SessionRecord just created by an access-code login.
	Login Type = "LOGIN"
	// Logout carries the SessionRecord with its logout timestamp set.
	Logout Type = "LOGOUT"
	// StudentUpdate carries the full updated Student.
	StudentUpdate Type = "STUDENT_UPDATE"
	// GradesUpdate carries only the affected student id; receivers re-fetch.
	GradesUpdate Type = "GRADES_UPDATE"
	// NewActivity carries the appended ActivityRecord.
	NewActivity Type = "NEW_ACTIVITY"
)

// Event is a typed message. Only the payload field matching Type is set.
type Event struct {
	Type      Type                   `json:"type"`
	Session   *models.SessionRecord  `json:"session,omitempty"`
	Student   *models.Student        `json:"student,omitempty"`
	StudentID string                 `json:"studentId,omitempty"`
	Activity  *models.ActivityRecord `json:"activity,omitempty"`
}

func LoginEvent(s models.SessionRecord) Event {
	return Event{Type: Login, Session: &s}
}

func LogoutEvent(s models.SessionRecord) Event {
	return Event{Type: Logout, Session: &s}
}

func StudentUpdateEvent(s models.Student) Event {
	return Event{Type: StudentUpdate, Student: &s}
}

func GradesUpdateEvent(studentID string) Event {
	return Event{Type: GradesUpdate, StudentID: studentID}
}

func NewActivityEvent(a models.ActivityRecord) Event {
	return Event{Type: NewActivity, Activity: &a}
}
