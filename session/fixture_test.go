package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bob-park/on-time-session/credstore"
	"github.com/bob-park/on-time-session/credstore/storefake"
	"github.com/bob-park/on-time-session/devicereg"
	"github.com/bob-park/on-time-session/exchange"
	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/bob-park/on-time-session/internal/testing/fakeidp"
	"github.com/bob-park/on-time-session/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const eventTimeout = 5 * time.Second

var startTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// clock is a virtual clock shared by the manager and the identity provider.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

// tickers hands out fake tickers and fires the live one on demand.
type tickers struct {
	mu      sync.Mutex
	current *fakeTicker
	created int
}

func (f *tickers) newTicker(time.Duration) session.Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = &fakeTicker{c: make(chan time.Time)}
	f.created++
	return f.current
}

// running reports whether a ticker exists that has not been stopped.
func (f *tickers) running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current != nil && !f.current.stopped.Load()
}

// tick blocks until the manager loop has received the tick.
func (f *tickers) tick(t *testing.T, now time.Time) {
	t.Helper()
	f.mu.Lock()
	current := f.current
	f.mu.Unlock()
	require.NotNil(t, current, "no ticker was started")
	require.False(t, current.stopped.Load(), "ticker is stopped")

	select {
	case current.c <- now:
	case <-time.After(eventTimeout):
		t.Fatal("tick was not received")
	}
}

type fakeRegistrar struct {
	mu             sync.Mutex
	registered     []string
	deregistered   []string
	failDeregister bool
}

func (r *fakeRegistrar) Register(_ context.Context, userID string, platform devicereg.Platform, pushToken string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, userID+"/"+string(platform)+"/"+pushToken)
	return "reg-1", nil
}

func (r *fakeRegistrar) Deregister(_ context.Context, userID, registrationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deregistered = append(r.deregistered, userID+"/"+registrationID)
	if r.failDeregister {
		return apperrors.New("notification api unavailable")
	}
	return nil
}

func (r *fakeRegistrar) Deregistered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deregistered...)
}

// testFixture holds all test dependencies.
type testFixture struct {
	clock     *clock
	idp       *fakeidp.Server
	client    *exchange.Client
	store     *storefake.FakeStore
	tickers   *tickers
	registrar *fakeRegistrar
}

func newFixture(t *testing.T, options ...fakeidp.Option) *testFixture {
	t.Helper()

	clk := &clock{now: startTime}
	idp := fakeidp.New(t, append([]fakeidp.Option{fakeidp.WithNowFunc(clk.Now)}, options...)...)
	client, err := exchange.New(context.Background(), exchange.Config{
		AuthorizationServer: idp.URL,
		ClientID:            idp.ClientID,
		ClientSecret:        idp.ClientSecret,
		RedirectURI:         idp.RedirectURI,
	}, exchange.WithHTTPClient(idp.Client()), exchange.WithNowFunc(clk.Now), exchange.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	return &testFixture{
		clock:     clk,
		idp:       idp,
		client:    client,
		store:     storefake.NewFakeStore(),
		tickers:   &tickers{},
		registrar: &fakeRegistrar{},
	}
}

// newManager creates a manager subscribed from its first transition.
func (f *testFixture) newManager(t *testing.T, options ...session.Option) (*session.Manager, <-chan session.Event) {
	t.Helper()

	defaults := []session.Option{
		session.WithNowFunc(f.clock.Now),
		session.WithTicker(f.tickers.newTicker),
		session.WithLogger(zerolog.Nop()),
		session.WithDeviceRegistrar(func(oauth2.TokenSource) session.DeviceRegistrar { return f.registrar }),
	}
	m := session.New(f.client, f.store, append(defaults, options...)...)
	t.Cleanup(func() { _ = m.Close() })

	events, _ := m.Subscribe()
	return m, events
}

// seed writes a persisted record the way a previous process would have.
func (f *testFixture) seed(accessToken, refreshToken string, expiresAt time.Time) {
	for key, value := range map[string]string{
		credstore.KeyAccessToken:  accessToken,
		credstore.KeyRefreshToken: refreshToken,
		credstore.KeyExpiredAt:    credstore.FormatExpiredAt(expiresAt),
	} {
		if value != "" {
			_ = f.store.Put(context.Background(), key, value)
		}
	}
}

func (f *testFixture) login(t *testing.T, m *session.Manager) {
	t.Helper()
	authReq := f.client.AuthorizationRequest()
	require.NoError(t, m.Login(context.Background(), f.idp.IssueCode(authReq.CodeVerifier), authReq.CodeVerifier))
}

// flush waits until the manager loop has finished everything queued before
// it. Start is a no-op on a manager that has already started.
func flush(t *testing.T, m *session.Manager) {
	t.Helper()
	require.NoError(t, m.Start(context.Background()))
}

func waitForState(t *testing.T, events <-chan session.Event, want session.State) session.Event {
	t.Helper()
	timeout := time.After(eventTimeout)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed while waiting for %s", want)
			if ev.State == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// nextStates reads the next n transitions.
func nextStates(t *testing.T, events <-chan session.Event, n int) []session.State {
	t.Helper()
	states := make([]session.State, 0, n)
	timeout := time.After(eventTimeout)
	for len(states) < n {
		select {
		case ev := <-events:
			states = append(states, ev.State)
		case <-timeout:
			t.Fatalf("timed out after states %v", states)
		}
	}
	return states
}

func waitForRefreshArrival(t *testing.T, idp *fakeidp.Server) {
	t.Helper()
	select {
	case <-idp.RefreshArrived():
	case <-time.After(eventTimeout):
		t.Fatal("refresh never reached the provider")
	}
}

func drained(events <-chan session.Event) []session.Event {
	var out []session.Event
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
