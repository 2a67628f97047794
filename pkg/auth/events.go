package auth

import "time"

// Session is the authentication state published by the auth module.
type Session struct {
	UserID      string
	AccessToken string
	ExpiresAt   time.Time
}

func (s Session) Valid(now time.Time) bool {
	if s.UserID == "" || s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

type EventKind string

const (
	EventLogin  EventKind = "login"
	EventLogout EventKind = "logout"
)

// Event is one entry of the auth module's login/logout stream.
type Event struct {
	Kind    EventKind
	Session Session
}
