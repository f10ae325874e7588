package config

import "time"

const (
	refreshWindowVar = "SESSION_REFRESH_WINDOW"
	checkIntervalVar = "SESSION_CHECK_INTERVAL"
)

type Session struct {
	source
}

var _ SessionConfig = Session{}

// GetRefreshWindow is how long before expiry a session is renewed.
func (s Session) GetRefreshWindow() time.Duration {
	return s.duration(refreshWindowVar, 10*time.Minute)
}

// GetCheckInterval is the period of the background expiry check.
func (s Session) GetCheckInterval() time.Duration {
	return s.duration(checkIntervalVar, time.Second)
}
