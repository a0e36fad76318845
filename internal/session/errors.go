package session

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccessCodeNotFound = errors.New("access code not found")
	ErrNoActiveSession    = errors.New("no active student session")
	ErrSessionClosed      = errors.New("session view closed")
	ErrNotTeacher         = errors.New("no teacher logged in")
)
