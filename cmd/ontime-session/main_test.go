package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/bob-park/on-time-session/credstore"
	"github.com/bob-park/on-time-session/internal/config"
	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	require.Equal(t, ExitCodeSuccess, exitCode(nil))
	require.Equal(t, ExitCodeAuthRequired, exitCode(fmt.Errorf("token: %w", apperrors.ErrNotLoggedIn)))
	require.Equal(t, ExitCodeAuthFailed, exitCode(&apperrors.ExchangeError{Op: "refresh", StatusCode: 400}))
	require.Equal(t, ExitCodeError, exitCode(apperrors.New("boom")))
}

func TestOpenStore(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		t.Setenv("CREDENTIAL_STORE", config.StoreFile)
		t.Setenv("CREDENTIAL_DIR", t.TempDir())
		t.Setenv("CREDENTIAL_PASSPHRASE", "correct horse")

		a := &app{}
		store, err := a.openStore(config.New())
		require.NoError(t, err)
		require.NoError(t, store.Put(context.Background(), credstore.KeyAccessToken, "at-1"))
		v, ok, err := store.Get(context.Background(), credstore.KeyAccessToken)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "at-1", v)
	})

	t.Run("file without passphrase", func(t *testing.T) {
		t.Setenv("CREDENTIAL_STORE", config.StoreFile)
		t.Setenv("CREDENTIAL_DIR", t.TempDir())
		t.Setenv("CREDENTIAL_PASSPHRASE", "")

		_, err := (&app{}).openStore(config.New())
		require.Error(t, err)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		t.Setenv("CREDENTIAL_STORE", config.StoreRedis)
		t.Setenv("REDIS_ADDR", mr.Addr())
		t.Setenv("REDIS_NAMESPACE", "cli-test")

		a := &app{}
		store, err := a.openStore(config.New())
		require.NoError(t, err)
		defer a.close()

		require.NoError(t, store.Put(context.Background(), credstore.KeyRefreshToken, "rt-1"))
		require.Equal(t, "rt-1", mr.HGet("ontime:credentials:cli-test", credstore.KeyRefreshToken))
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("CREDENTIAL_STORE", "sqlite")

		_, err := (&app{}).openStore(config.New())
		require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	})
}
