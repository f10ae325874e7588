package session

import (
	"context"
	"fmt"

	"github.com/bob-park/on-time-session/credstore"
	"github.com/bob-park/on-time-session/devicereg"
	"github.com/bob-park/on-time-session/exchange"
	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/bob-park/on-time-session/oauthmodel"
)

// Everything in this file runs on the loop goroutine, except refresh.

type refreshOutcome struct {
	generation  uint64
	result      exchange.TokenResult
	err         error
	identity    exchange.Identity
	identityErr error
}

func (m *Manager) restore(ctx context.Context) {
	m.transition(Restoring, ReasonRestore, nil)

	rec, err := credstore.LoadRecord(ctx, m.store)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Credential record partly unreadable, treating unreadable values as absent")
	}
	m.setRegistration(rec.RegistrationID)

	sess := Session{AccessToken: rec.AccessToken, RefreshToken: rec.RefreshToken, ExpiresAt: rec.ExpiresAt}
	m.logger.Debug().
		Bool("has_access_token", sess.AccessToken != "").
		Bool("has_refresh_token", sess.RefreshToken != "").
		Time("expires_at", sess.ExpiresAt).
		Msg("Loaded credential record")

	switch {
	case sess.IsValid(m.nowFunc()):
		m.setSession(sess, exchange.Identity{})
		m.transition(LoggedIn, ReasonRestore, nil)
		m.startTicker()
		if m.dueForRefresh() && m.beginRefresh(ReasonExpiring) {
			return
		}
		m.resolveIdentity(ctx)

	case sess.RefreshToken != "":
		m.setSession(sess, exchange.Identity{})
		m.beginRefresh(ReasonRestore)

	default:
		if !rec.Empty() || rec.RegistrationID != "" {
			m.purge(ctx)
		}
		m.transition(LoggedOut, ReasonRestore, nil)
	}
}

// resolveIdentity looks up the user of a restored session. A rejected token
// gets one refresh, or ends the session when it cannot be refreshed. Other
// failures leave the identity unresolved.
func (m *Manager) resolveIdentity(ctx context.Context) {
	identity, err := m.exchanger.FetchIdentity(ctx, m.session.AccessToken)
	switch {
	case err == nil:
		m.setSession(m.session, identity)
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		m.logger.Info().Msg("Restored access token rejected, refreshing")
		if !m.beginRefresh(ReasonUnauthorized) {
			m.expire(ReasonUnauthorized, err)
		}
	default:
		m.logger.Warn().Err(err).Msg("Resolving identity failed")
	}
}

func (m *Manager) login(ctx context.Context, code, codeVerifier string) error {
	m.generation++

	result, err := m.exchanger.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return m.loginFailed(ctx, err)
	}

	identity, err := m.exchanger.FetchIdentity(ctx, result.AccessToken)
	if apperrors.Is(err, apperrors.ErrUnauthorized) && result.RefreshToken != "" {
		m.logger.Info().Msg("New access token rejected by userinfo, refreshing once")
		result, err = m.exchanger.Refresh(ctx, result.RefreshToken)
		if err == nil {
			identity, err = m.exchanger.FetchIdentity(ctx, result.AccessToken)
		}
	}
	if err != nil {
		return m.loginFailed(ctx, err)
	}

	sess := sessionFrom(result)
	m.setSession(sess, identity)
	m.persist(ctx, sess)
	m.transition(LoggedIn, ReasonLogin, nil)
	m.startTicker()
	return nil
}

func (m *Manager) loginFailed(ctx context.Context, err error) error {
	if m.state != LoggedOut {
		m.purge(ctx)
		m.setSession(Session{}, exchange.Identity{})
		m.stopTicker()
		m.transition(LoggedOut, ReasonLoginFailed, err)
	} else {
		m.logger.Warn().Err(err).Msg("Login failed")
	}
	return apperrors.Wrapf(err, "login")
}

// checkExpiry renews a session inside the refresh window. A session without
// a refresh token runs until its access token expires and then ends.
func (m *Manager) checkExpiry() {
	if m.state != LoggedIn {
		return
	}
	if m.session.RefreshToken == "" {
		if !m.session.IsValid(m.nowFunc()) {
			m.expire(ReasonExpired, nil)
		}
		return
	}
	if m.dueForRefresh() {
		m.beginRefresh(ReasonExpiring)
	}
}

func (m *Manager) dueForRefresh() bool {
	return m.session.ExpiresAt.Sub(m.nowFunc()) < m.refreshWindow
}

// beginRefresh moves to Refreshing and starts the one refresh call. It
// reports whether a refresh is running afterwards; without a refresh token
// nothing is started.
func (m *Manager) beginRefresh(reason Reason) bool {
	if m.state == Refreshing {
		return true
	}
	if m.session.RefreshToken == "" {
		m.logger.Debug().Str("reason", string(reason)).Msg("No refresh token, skipping refresh")
		return false
	}
	m.generation++
	m.transition(Refreshing, reason, nil)
	m.startTicker()
	go m.refresh(m.generation, m.session.RefreshToken)
	return true
}

// refresh runs off the loop so logout is never held up by the provider.
func (m *Manager) refresh(generation uint64, refreshToken string) {
	out := refreshOutcome{generation: generation}
	out.result, out.err = m.exchanger.Refresh(m.ctx, refreshToken)
	if out.err == nil {
		out.identity, out.identityErr = m.exchanger.FetchIdentity(m.ctx, out.result.AccessToken)
	}

	select {
	case m.refreshDone <- out:
	case <-m.ctx.Done():
	}
}

func (m *Manager) finishRefresh(out refreshOutcome) {
	if out.generation != m.generation || m.state != Refreshing {
		m.logger.Debug().Uint64("generation", out.generation).Msg("Discarding superseded refresh result")
		return
	}
	if out.err != nil {
		m.expire(ReasonRefreshFailed, out.err)
		return
	}

	identity := out.identity
	if out.identityErr != nil {
		m.logger.Warn().Err(out.identityErr).Msg("Resolving identity after refresh failed, keeping previous identity")
		identity = m.identity
	}

	sess := sessionFrom(out.result)
	m.setSession(sess, identity)
	m.persist(m.ctx, sess)
	m.transition(LoggedIn, ReasonRefreshed, nil)
}

// expire ends a session that can no longer be renewed. Nothing is retried;
// only a new interactive login recovers.
func (m *Manager) expire(reason Reason, err error) {
	m.generation++
	m.transition(Expired, reason, err)
	m.purge(m.ctx)
	m.setSession(Session{}, exchange.Identity{})
	m.stopTicker()
	m.transition(LoggedOut, reason, err)
}

func (m *Manager) logout(ctx context.Context) {
	m.generation++
	previous := m.state

	m.deregisterDevice(ctx)
	m.revoke(ctx, m.session)
	m.purge(ctx)
	m.setSession(Session{}, exchange.Identity{})
	m.stopTicker()

	if previous != LoggedOut {
		m.transition(LoggedOut, ReasonLogout, nil)
	}
}

func (m *Manager) deregisterDevice(ctx context.Context) {
	if m.registrationID == "" || m.registrar == nil {
		return
	}
	if m.identity.UserID == "" {
		m.logger.Warn().Msg("Skipping device deregistration, identity unknown")
		return
	}
	if err := m.registrar.Deregister(ctx, m.identity.UserID, m.registrationID); err != nil {
		m.logger.Warn().Err(err).Msg("Device deregistration failed")
	}
}

func (m *Manager) revoke(ctx context.Context, sess Session) {
	if sess.RefreshToken != "" {
		if err := m.exchanger.Revoke(ctx, sess.RefreshToken, oauthmodel.RefreshTokenHint); err != nil {
			m.logger.Warn().Err(err).Msg("Refresh token revocation failed")
		}
	}
	if sess.AccessToken != "" {
		if err := m.exchanger.Revoke(ctx, sess.AccessToken, oauthmodel.AccessTokenHint); err != nil {
			m.logger.Warn().Err(err).Msg("Access token revocation failed")
		}
	}
}

func (m *Manager) registerDevice(ctx context.Context, platform devicereg.Platform, pushToken string) (string, error) {
	if m.registrar == nil {
		return "", fmt.Errorf("%w: device registration is not configured", apperrors.ErrInvalidRequest)
	}
	if m.state != LoggedIn && m.state != Refreshing {
		return "", apperrors.ErrNotLoggedIn
	}
	if m.identity.UserID == "" {
		return "", fmt.Errorf("%w: identity not resolved", apperrors.ErrNotLoggedIn)
	}

	id, err := m.registrar.Register(ctx, m.identity.UserID, platform, pushToken)
	if err != nil {
		return "", apperrors.Wrapf(err, "register device")
	}

	m.setRegistration(id)
	if err := credstore.SaveRegistrationID(context.WithoutCancel(ctx), m.store, id); err != nil {
		m.logger.Warn().Err(err).Msg("Persisting device registration failed")
	}
	return id, nil
}

// persist writes the session to the store. A failed write is logged and the
// in-memory session stays authoritative.
func (m *Manager) persist(ctx context.Context, sess Session) {
	err := credstore.SaveRecord(context.WithoutCancel(ctx), m.store, credstore.Record{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("Persisting session failed, keeping in-memory session")
	}
}

// purge deletes every credential key, including the registration id.
func (m *Manager) purge(ctx context.Context) {
	if err := credstore.PurgeRecord(context.WithoutCancel(ctx), m.store); err != nil {
		m.logger.Warn().Err(err).Msg("Purging credentials failed")
	}
	m.setRegistration("")
}

func (m *Manager) transition(to State, reason Reason, err error) {
	m.mu.Lock()
	previous := m.state
	m.state = to
	m.mu.Unlock()

	ev := m.logger.Info()
	if err != nil {
		ev = m.logger.Warn().Err(err).Bool("transient", apperrors.Is(err, apperrors.ErrNetwork))
	}
	ev.Stringer("state", to).Stringer("previous", previous).Str("reason", string(reason)).Msg("Session state changed")

	m.events.emit(Event{State: to, Previous: previous, Reason: reason, Err: err})
}

func (m *Manager) setSession(sess Session, identity exchange.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = sess
	m.identity = identity
}

func (m *Manager) setRegistration(id string) {
	m.registrationID = id
	m.mu.Lock()
	m.registered = id != ""
	m.mu.Unlock()
}

func (m *Manager) startTicker() {
	if m.ticker == nil {
		m.ticker = m.newTicker(m.checkInterval)
	}
}

func (m *Manager) stopTicker() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}

func sessionFrom(r exchange.TokenResult) Session {
	return Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt(),
	}
}
