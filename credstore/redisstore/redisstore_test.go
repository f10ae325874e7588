package redisstore_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bob-park/on-time-session/credstore"
	"github.com/bob-park/on-time-session/credstore/redisstore"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newStoreForTest(t *testing.T, namespace string) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redisstore.New(client, namespace), mini
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, mini := newStoreForTest(t, "device-1")

	require.NoError(t, s.Put(ctx, credstore.KeyAccessToken, "access-1"))
	require.Equal(t, "access-1", mini.HGet("ontime:credentials:device-1", credstore.KeyAccessToken))

	v, ok, err := s.Get(ctx, credstore.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access-1", v)

	require.NoError(t, s.Delete(ctx, credstore.KeyAccessToken))
	require.NoError(t, s.Delete(ctx, credstore.KeyAccessToken))

	_, ok, err = s.Get(ctx, credstore.KeyAccessToken)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	defer client.Close()

	a := redisstore.New(client, "a")
	b := redisstore.New(client, "b")

	require.NoError(t, a.Put(ctx, credstore.KeyRefreshToken, "refresh-a"))
	_, ok, err := b.Get(ctx, credstore.KeyRefreshToken)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newStoreForTest(t, "")
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	require.NoError(t, credstore.SaveRecord(ctx, s, credstore.Record{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    expiresAt,
	}))

	rec, err := credstore.LoadRecord(ctx, s)
	require.NoError(t, err)
	require.Equal(t, "a", rec.AccessToken)
	require.True(t, expiresAt.Equal(rec.ExpiresAt))

	require.NoError(t, credstore.PurgeRecord(ctx, s))
	rec, err = credstore.LoadRecord(ctx, s)
	require.NoError(t, err)
	require.True(t, rec.Empty())
}

func TestUnavailableServer(t *testing.T) {
	ctx := context.Background()
	s, mini := newStoreForTest(t, "device-1")
	mini.Close()

	err := s.Put(ctx, credstore.KeyAccessToken, "access")
	require.ErrorIs(t, err, credstore.ErrStorage)

	_, _, err = s.Get(ctx, credstore.KeyAccessToken)
	require.ErrorIs(t, err, credstore.ErrStorage)
}

func TestNilClient(t *testing.T) {
	s := redisstore.New(nil, "x")
	require.ErrorIs(t, s.Put(context.Background(), credstore.KeyAccessToken, "a"), credstore.ErrStorage)
}
