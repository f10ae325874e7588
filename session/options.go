package session

import (
	"time"

	"github.com/bob-park/on-time-session/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	DefaultRefreshWindow = 10 * time.Minute
	DefaultCheckInterval = time.Second
)

// Ticker is the part of *time.Ticker the expiry check uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

type Option func(*Manager)

// WithNowFunc sets the clock the expiry check compares against.
func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithTicker replaces the factory of the periodic expiry check timer.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(m *Manager) {
		m.newTicker = newTicker
	}
}

// WithRefreshWindow sets how long before expiry a refresh starts.
func WithRefreshWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshWindow = d
		}
	}
}

// WithCheckInterval sets the period of the expiry check.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

// WithConfig applies the timing settings of cfg.
func WithConfig(cfg config.SessionConfig) Option {
	return func(m *Manager) {
		WithRefreshWindow(cfg.GetRefreshWindow())(m)
		WithCheckInterval(cfg.GetCheckInterval())(m)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDeviceRegistrar enables push registration and its removal on logout.
// newRegistrar gets the Manager as the token source for the registration API.
func WithDeviceRegistrar(newRegistrar func(oauth2.TokenSource) DeviceRegistrar) Option {
	return func(m *Manager) {
		m.registrar = newRegistrar(m)
	}
}
