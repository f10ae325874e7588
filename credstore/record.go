package credstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/bob-park/on-time-session/internal/errors"
)

// Record is the durable projection of a session.
type Record struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	RegistrationID string // device push registration, empty when not registered
}

// Empty reports whether the record holds no usable credential.
func (r Record) Empty() bool {
	return r.AccessToken == "" && r.RefreshToken == ""
}

// SaveRecord writes the session scalars of rec. The registration id is left
// untouched; it has its own lifecycle (see SaveRegistrationID). Every key is
// attempted even when an earlier write fails.
func SaveRecord(ctx context.Context, s Store, rec Record) error {
	var errs []error
	if err := s.Put(ctx, KeyAccessToken, rec.AccessToken); err != nil {
		errs = append(errs, err)
	}
	if rec.RefreshToken != "" {
		if err := s.Put(ctx, KeyRefreshToken, rec.RefreshToken); err != nil {
			errs = append(errs, err)
		}
	} else if err := s.Delete(ctx, KeyRefreshToken); err != nil {
		errs = append(errs, err)
	}
	if err := s.Put(ctx, KeyExpiredAt, FormatExpiredAt(rec.ExpiresAt)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadRecord reads the persisted record. Entries that cannot be read or
// parsed are left zero and reported in the returned error, so the caller can
// still act on whatever was recovered.
func LoadRecord(ctx context.Context, s Store) (Record, error) {
	var (
		rec  Record
		errs []error
	)

	read := func(key string) string {
		v, _, err := s.Get(ctx, key)
		if err != nil {
			errs = append(errs, err)
			return ""
		}
		return v
	}

	rec.AccessToken = read(KeyAccessToken)
	rec.RefreshToken = read(KeyRefreshToken)
	rec.RegistrationID = read(KeyRegistrationID)

	if raw := read(KeyExpiredAt); raw != "" {
		t, err := ParseExpiredAt(raw)
		if err != nil {
			errs = append(errs, err)
		} else {
			rec.ExpiresAt = t
		}
	}

	return rec, errors.Join(errs...)
}

// PurgeRecord deletes every credential key.
func PurgeRecord(ctx context.Context, s Store) error {
	var errs []error
	for _, key := range Keys {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveRegistrationID persists the device registration correlation id. An empty
// id removes it.
func SaveRegistrationID(ctx context.Context, s Store, id string) error {
	if id == "" {
		return s.Delete(ctx, KeyRegistrationID)
	}
	return s.Put(ctx, KeyRegistrationID, id)
}

// FormatExpiredAt renders an expiry instant the way it is persisted.
func FormatExpiredAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseExpiredAt accepts RFC 3339 timestamps and, for records written by older
// app versions, unix seconds.
func ParseExpiredAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %w: expiredAt %q", apperrors.ErrStorage, apperrors.ErrInvalidRecord, raw)
}
