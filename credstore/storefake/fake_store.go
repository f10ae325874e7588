package storefake

import (
	"context"
	"fmt"
	"sync"

	"github.com/bob-park/on-time-session/credstore"
)

var _ credstore.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credstore.Store. Failures can be switched on to
// simulate unavailable device storage.
type FakeStore struct {
	values map[string]string
	lock   sync.RWMutex

	failPut bool
	failGet bool
	puts    int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values: make(map[string]string),
	}
}

// NewFakeStoreWith returns a FakeStore pre-populated with values.
func NewFakeStoreWith(values map[string]string) *FakeStore {
	s := NewFakeStore()
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *FakeStore) Put(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.failPut {
		return fmt.Errorf("%w: put %s: device storage offline", credstore.ErrStorage, key)
	}
	s.puts++
	s.values[key] = value
	return nil
}

func (s *FakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.failGet {
		return "", false, fmt.Errorf("%w: get %s: device storage offline", credstore.ErrStorage, key)
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FakeStore) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.values, key)
	return nil
}

// FailPuts makes subsequent Put calls fail with credstore.ErrStorage.
func (s *FakeStore) FailPuts(fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failPut = fail
}

// FailGets makes subsequent Get calls fail with credstore.ErrStorage.
func (s *FakeStore) FailGets(fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failGet = fail
}

// Value returns the raw stored value for key.
func (s *FakeStore) Value(key string) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of stored keys.
func (s *FakeStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.values)
}

// Puts returns the number of successful writes.
func (s *FakeStore) Puts() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.puts
}
