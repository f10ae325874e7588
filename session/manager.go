// Package session owns the signed-in state of the app. A Manager restores the
// persisted credentials at start, renews the access token before it expires,
// and hands the current token to collaborators that call the On Time API.
//
// All lifecycle work runs on one goroutine per Manager. Readers only ever see
// a consistent snapshot, so while a refresh is in flight they keep getting the
// previous access token.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/bob-park/on-time-session/credstore"
	"github.com/bob-park/on-time-session/devicereg"
	"github.com/bob-park/on-time-session/exchange"
	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/bob-park/on-time-session/oauthmodel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Exchanger is the identity provider as the Manager uses it.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code, codeVerifier string) (exchange.TokenResult, error)
	Refresh(ctx context.Context, refreshToken string) (exchange.TokenResult, error)
	FetchIdentity(ctx context.Context, accessToken string) (exchange.Identity, error)
	Revoke(ctx context.Context, token string, hint oauthmodel.TokenTypeHint) error
}

// DeviceRegistrar manages the push registration held under the signed-in user.
type DeviceRegistrar interface {
	Register(ctx context.Context, userID string, platform devicereg.Platform, pushToken string) (string, error)
	Deregister(ctx context.Context, userID, registrationID string) error
}

var (
	_ Exchanger          = (*exchange.Client)(nil)
	_ DeviceRegistrar    = (*devicereg.Client)(nil)
	_ oauth2.TokenSource = (*Manager)(nil)
)

// Snapshot is a token-free view of the session for display.
type Snapshot struct {
	State           State
	ExpiresAt       time.Time
	HasRefreshToken bool
	Identity        exchange.Identity
	Registered      bool
}

// Manager owns one OAuth2 session: it restores, renews and ends it, and
// reports every state change to subscribers.
type Manager struct {
	exchanger Exchanger
	store     credstore.Store
	registrar DeviceRegistrar

	nowFunc       func() time.Time
	newTicker     func(time.Duration) Ticker
	refreshWindow time.Duration
	checkInterval time.Duration
	logger        zerolog.Logger

	// Written only by the loop, under mu.
	mu         sync.RWMutex
	state      State
	session    Session
	identity   exchange.Identity
	registered bool

	// Owned by the loop.
	started        bool
	registrationID string
	generation     uint64
	ticker         Ticker

	ops         chan func()
	refreshDone chan refreshOutcome
	events      *broadcaster

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Manager in the LoggedOut state and starts its loop. Call
// Start to restore a persisted session and Close to stop the loop.
func New(exchanger Exchanger, store credstore.Store, options ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		exchanger:     exchanger,
		store:         store,
		nowFunc:       time.Now,
		newTicker:     newTimeTicker,
		refreshWindow: DefaultRefreshWindow,
		checkInterval: DefaultCheckInterval,
		logger:        log.Logger,
		state:         LoggedOut,
		ops:           make(chan func()),
		refreshDone:   make(chan refreshOutcome),
		events:        newBroadcaster(),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	for _, opt := range options {
		opt(m)
	}

	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		var tick <-chan time.Time
		if m.ticker != nil {
			tick = m.ticker.C()
		}

		select {
		case <-m.ctx.Done():
			m.stopTicker()
			return
		case op := <-m.ops:
			op()
		case <-tick:
			m.checkExpiry()
		case out := <-m.refreshDone:
			m.finishRefresh(out)
		}
	}
}

// do runs op on the loop and waits for its result.
func (m *Manager) do(ctx context.Context, op func() error) error {
	reply := make(chan error, 1)
	select {
	case m.ops <- func() { reply <- op() }:
	case <-m.done:
		return apperrors.ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-reply
}

// Start restores the persisted session. It returns once the restored state
// is known; a refresh it starts completes in the background. Only the first
// call has an effect.
func (m *Manager) Start(ctx context.Context) error {
	return m.do(ctx, func() error {
		if m.started {
			return nil
		}
		m.started = true
		m.restore(ctx)
		return nil
	})
}

// Login redeems the authorization code of an interactive login and replaces
// any current session. A failure leaves the Manager logged out and matches
// ErrAuthExchange.
func (m *Manager) Login(ctx context.Context, code, codeVerifier string) error {
	return m.do(ctx, func() error {
		m.started = true
		return m.login(ctx, code, codeVerifier)
	})
}

// Logout ends the session. Remote cleanup is best effort; the local session
// is always cleared. Logging out while logged out is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	return m.do(ctx, func() error {
		m.logout(ctx)
		return nil
	})
}

// RefreshNow starts a refresh without waiting for the expiry window. It does
// nothing while a refresh is already running, when logged out, or when the
// session has no refresh token.
func (m *Manager) RefreshNow(ctx context.Context) error {
	return m.do(ctx, func() error {
		if m.state == LoggedIn {
			m.beginRefresh(ReasonManual)
		}
		return nil
	})
}

// RegisterDevice registers the device push token for the signed-in user and
// returns the registration id, which is removed again on logout.
func (m *Manager) RegisterDevice(ctx context.Context, platform devicereg.Platform, pushToken string) (string, error) {
	var id string
	err := m.do(ctx, func() error {
		var err error
		id, err = m.registerDevice(ctx, platform, pushToken)
		return err
	})
	return id, err
}

// Subscribe returns a channel receiving every state change and a func that
// ends the subscription. Events are dropped for a subscriber that falls
// behind.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}

// Close stops the loop and the expiry timer and closes all subscriptions.
// It does not log out.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.cancel()
		<-m.done
		m.events.close()
	})
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsLoggedIn reports whether a usable access token is held.
func (m *Manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loggedInLocked()
}

// CurrentAccessToken returns the access token to send to the On Time API, or
// "" when logged out.
func (m *Manager) CurrentAccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loggedInLocked() {
		return ""
	}
	return m.session.AccessToken
}

// Identity returns the signed-in user once userinfo has been resolved.
func (m *Manager) Identity() (exchange.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loggedInLocked() || m.identity.SubjectID == "" {
		return exchange.Identity{}, false
	}
	return m.identity, true
}

// Snapshot returns the session state without token values.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:           m.state,
		ExpiresAt:       m.session.ExpiresAt,
		HasRefreshToken: m.session.RefreshToken != "",
		Identity:        m.identity,
		Registered:      m.registered,
	}
}

// Token implements oauth2.TokenSource so the Manager can back an
// oauth2.Transport.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loggedInLocked() {
		return nil, apperrors.ErrNotLoggedIn
	}
	return &oauth2.Token{
		AccessToken: m.session.AccessToken,
		TokenType:   "Bearer",
		Expiry:      m.session.ExpiresAt,
	}, nil
}

func (m *Manager) loggedInLocked() bool {
	return (m.state == LoggedIn || m.state == Refreshing) && m.session.AccessToken != ""
}
