// Package redisstore keeps credential records in Redis, one hash per
// namespace. It suits shared or server-side deployments of the session
// library where device storage is not available.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bob-park/on-time-session/credstore"
	apperrors "github.com/bob-park/on-time-session/internal/errors"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "ontime:credentials:"

var _ credstore.Store = (*Store)(nil)

// Store keeps the credential record in a Redis hash.
type Store struct {
	client *goredis.Client
	hash   string
}

// New returns a store writing to the hash for namespace.
func New(client *goredis.Client, namespace string) *Store {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "default"
	}
	return &Store{client: client, hash: keyPrefix + namespace}
}

func (s *Store) Put(ctx context.Context, key, value string) error {
	if s.client == nil {
		return fmt.Errorf("%w: redis client is nil", apperrors.ErrStorage)
	}
	if err := s.client.HSet(ctx, s.hash, key, value).Err(); err != nil {
		return fmt.Errorf("%w: put %s: %w", apperrors.ErrStorage, key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s.client == nil {
		return "", false, fmt.Errorf("%w: redis client is nil", apperrors.ErrStorage)
	}
	v, err := s.client.HGet(ctx, s.hash, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %w", apperrors.ErrStorage, key, err)
	}
	return v, true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return fmt.Errorf("%w: redis client is nil", apperrors.ErrStorage)
	}
	if err := s.client.HDel(ctx, s.hash, key).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %w", apperrors.ErrStorage, key, err)
	}
	return nil
}
