package session

import (
	"fmt"
	"testing"
	"time"

	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDropsForSlowSubscribers(t *testing.T) {
	b := newBroadcaster()
	slow, _ := b.subscribe()
	fast, unsubscribe := b.subscribe()

	received := 0
	for i := 0; i < subscriberBuffer*2; i++ {
		b.emit(Event{State: LoggedIn, Reason: ReasonRefreshed})
		select {
		case <-fast:
			received++
		default:
		}
	}
	require.Equal(t, subscriberBuffer*2, received)
	require.Len(t, slow, subscriberBuffer)

	unsubscribe()
	unsubscribe()
	_, ok := <-fast
	require.False(t, ok)

	b.close()
	drainedCount := 0
	for range slow {
		drainedCount++
	}
	require.Equal(t, subscriberBuffer, drainedCount)
}

func TestEventTransient(t *testing.T) {
	network := &apperrors.ExchangeError{Op: "refresh", Err: fmt.Errorf("%w: dial tcp: connection refused", apperrors.ErrNetwork)}
	rejected := &apperrors.ExchangeError{Op: "refresh", StatusCode: 400, Code: "invalid_grant"}

	require.True(t, Event{State: Expired, Err: network}.Transient())
	require.False(t, Event{State: Expired, Err: rejected}.Transient())
	require.False(t, Event{State: LoggedIn}.Transient())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "LoggedOut", LoggedOut.String())
	require.Equal(t, "Restoring", Restoring.String())
	require.Equal(t, "LoggedIn", LoggedIn.String())
	require.Equal(t, "Refreshing", Refreshing.String())
	require.Equal(t, "Expired", Expired.String())
	require.Equal(t, "Unknown", State(42).String())
}

func TestSessionIsValid(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.True(t, Session{AccessToken: "at", ExpiresAt: now.Add(time.Second)}.IsValid(now))
	require.False(t, Session{AccessToken: "at", ExpiresAt: now}.IsValid(now))
	require.False(t, Session{ExpiresAt: now.Add(time.Hour)}.IsValid(now))
}
