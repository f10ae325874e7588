// Package credstore persists the session credentials that must survive a
// process restart. Backends live in the sub-packages.
package credstore

import (
	"context"

	apperrors "github.com/bob-park/on-time-session/internal/errors"
)

// Keys of the persisted credential record.
const (
	KeyAccessToken    = "accessToken"
	KeyRefreshToken   = "refreshToken"
	KeyExpiredAt      = "expiredAt"
	KeyRegistrationID = "notificationProviderId"
)

// Keys lists every key written by this package, in purge order.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyExpiredAt, KeyRegistrationID}

// ErrStorage is returned when the storage medium cannot be used.
var ErrStorage = apperrors.ErrStorage

// Store is durable key-value storage for scalar credential strings.
//
// Get reports absent keys with ok == false and a nil error. Errors wrap
// ErrStorage and are reserved for an unavailable medium or a corrupt entry.
// Delete of an absent key is not an error.
type Store interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
}
