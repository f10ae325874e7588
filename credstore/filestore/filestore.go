// Package filestore is an encrypted-at-rest credstore.Store backed by files in
// a private directory. Each key is sealed with XChaCha20-Poly1305, using the
// key name as associated data so entries cannot be swapped between keys.
package filestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/bob-park/on-time-session/credstore"
	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltFile   = ".salt"
	saltLength = 16
	fileSuffix = ".enc"
)

// KeySize is the length of a raw encryption key.
const KeySize = chacha20poly1305.KeySize

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var _ credstore.Store = (*Store)(nil)

// Store keeps the credential record in an encrypted file.
type Store struct {
	dir    string
	aead   cipher.AEAD
	mu     sync.Mutex
	logger zerolog.Logger
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New opens a store in dir sealed with a raw KeySize-byte key.
func New(dir string, key []byte, options ...Option) (*Store, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("filestore: key must be %d bytes, got %d", KeySize, len(key))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create credential directory: %w", apperrors.ErrStorage, err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("filestore: init cipher: %w", err)
	}

	s := &Store{
		dir:    dir,
		aead:   aead,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// NewWithPassphrase opens a store in dir whose key is derived from passphrase
// with Argon2id. The salt is generated on first use and kept in the directory.
func NewWithPassphrase(dir, passphrase string, options ...Option) (*Store, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("filestore: passphrase is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create credential directory: %w", apperrors.ErrStorage, err)
	}

	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, err
	}
	return New(dir, DeriveKey(passphrase, salt), options...)
}

// DeriveKey stretches a passphrase into a KeySize-byte key.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, KeySize)
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != saltLength {
			return nil, fmt.Errorf("%w: %w: salt file has %d bytes", apperrors.ErrStorage, apperrors.ErrInvalidRecord, len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: read salt: %w", apperrors.ErrStorage, err)
	}

	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("filestore: generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("%w: write salt: %w", apperrors.ErrStorage, err)
	}
	return salt, nil
}

// Put seals value and atomically replaces the file for key.
func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: put %s: %w", apperrors.ErrStorage, key, err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("%w: put %s: nonce: %w", apperrors.ErrStorage, key, err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFile(key, sealed); err != nil {
		s.logger.Warn().Str("key", key).Err(err).Msg("Credential write failed")
		return fmt.Errorf("%w: put %s: %w", apperrors.ErrStorage, key, err)
	}
	return nil
}

func (s *Store) writeFile(key string, data []byte) (err error) {
	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(key))
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("%w: get %s: %w", apperrors.ErrStorage, key, err)
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.path(key))
	s.mu.Unlock()

	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %w", apperrors.ErrStorage, key, err)
	}

	ns := s.aead.NonceSize()
	if len(data) < ns+s.aead.Overhead() {
		return "", false, fmt.Errorf("%w: %w: %s is truncated", apperrors.ErrStorage, apperrors.ErrInvalidRecord, key)
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("%w: %w: %s cannot be decrypted", apperrors.ErrStorage, apperrors.ErrInvalidRecord, key)
	}
	return string(plain), true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete %s: %w", apperrors.ErrStorage, key, err)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+fileSuffix)
}

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("%w: credential key %q", apperrors.ErrInvalidRequest, key)
	}
	return nil
}
