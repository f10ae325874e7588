package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestExchangeError(t *testing.T) {
	tests := []struct {
		name         string
		err          *apperrors.ExchangeError
		message      string
		unauthorized bool
		transient    bool
	}{
		{
			name:    "provider rejection",
			err:     &apperrors.ExchangeError{Op: "refresh", StatusCode: 400, Code: "invalid_grant"},
			message: "refresh: status 400: invalid_grant",
		},
		{
			name:         "unauthorized",
			err:          &apperrors.ExchangeError{Op: "userinfo", StatusCode: 401, Code: "invalid_token"},
			message:      "userinfo: status 401: invalid_token",
			unauthorized: true,
		},
		{
			name:      "network",
			err:       &apperrors.ExchangeError{Op: "refresh", Err: fmt.Errorf("%w: connection refused", apperrors.ErrNetwork)},
			message:   "refresh: network error: connection refused",
			transient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, tt.err, tt.message)
			require.ErrorIs(t, tt.err, apperrors.ErrAuthExchange)
			require.Equal(t, tt.unauthorized, apperrors.Is(tt.err, apperrors.ErrUnauthorized))
			require.Equal(t, tt.transient, tt.err.Transient())
			require.Equal(t, tt.transient, apperrors.Is(tt.err, apperrors.ErrNetwork))
		})
	}
}

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "login"))

	inner := &apperrors.ExchangeError{Op: "exchange_code", StatusCode: 400}
	err := apperrors.Wrapf(inner, "login for %s", "hong")
	require.EqualError(t, err, "login for hong: exchange_code: status 400")

	var exErr *apperrors.ExchangeError
	require.True(t, apperrors.As(err, &exErr))
	require.Equal(t, 400, exErr.StatusCode)
	require.True(t, apperrors.Is(err, apperrors.ErrAuthExchange))
}
