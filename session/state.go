package session

import "time"

// State is the lifecycle state of a Manager.
type State int

const (
	LoggedOut State = iota
	Restoring
	LoggedIn
	Refreshing
	Expired
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "LoggedOut"
	case Restoring:
		return "Restoring"
	case LoggedIn:
		return "LoggedIn"
	case Refreshing:
		return "Refreshing"
	case Expired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Reason says what caused a transition.
type Reason string

const (
	ReasonRestore       Reason = "restore"
	ReasonLogin         Reason = "login"
	ReasonLoginFailed   Reason = "login_failed"
	ReasonExpiring      Reason = "expiring"
	ReasonManual        Reason = "manual"
	ReasonUnauthorized  Reason = "unauthorized"
	ReasonRefreshed     Reason = "refreshed"
	ReasonRefreshFailed Reason = "refresh_failed"
	ReasonExpired       Reason = "expired"
	ReasonLogout        Reason = "logout"
)

// Session is the credential set of the signed-in user.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IsValid reports whether the access token is still usable at now.
func (s Session) IsValid(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.ExpiresAt)
}
